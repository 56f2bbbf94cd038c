package config

import (
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// SetupLogging настраивает apex/log: LOG_FORMAT=text|json, LOG_LEVEL=debug|info|warn|error.
func (c *Config) SetupLogging() {
	switch strings.ToLower(c.LogFormat) {
	case "json":
		log.SetHandler(json.New(os.Stderr))
	default:
		log.SetHandler(text.New(os.Stderr))
	}
	lvl, err := log.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("unknown LOG_LEVEL, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
