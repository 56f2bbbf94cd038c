package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8000"`

	GeminiAPIKey   string `env:"GEMINI_API_KEY"`
	GeminiModel    string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiEndpoint string `env:"GEMINI_ENDPOINT"`
	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`
	OpenAIModel    string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL  string `env:"OPENAI_BASE_URL"`
	DefaultEngine  string `env:"DEFAULT_ENGINE" envDefault:"gemini"`

	// RequireUserKey - ключ вводит пользователь; иначе используется серверный ключ движка.
	RequireUserKey bool          `env:"REQUIRE_USER_KEY" envDefault:"true"`
	PromptFile     string        `env:"PROMPT_FILE"`
	AnalyzeTimeout time.Duration `env:"ANALYZE_TIMEOUT" envDefault:"90s"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	MaxImageBytes  int64         `env:"MAX_IMAGE_BYTES" envDefault:"20971520"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"detector:session:"`

	DatabaseURL string        `env:"DATABASE_URL"`
	Postgres    Postgres
	CacheMaxAge time.Duration `env:"CACHE_MAX_AGE" envDefault:"720h"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	WebhookURL       string `env:"WEBHOOK_URL"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Postgres - раздельные POSTGRES_* / PG* переменные (single-container деплой).
type Postgres struct {
	User     string `env:"POSTGRES_USER"`
	Password string `env:"POSTGRES_PASSWORD"`
	Host     string `env:"PGHOST"`
	Port     string `env:"PGPORT" envDefault:"5432"`
	DB       string `env:"POSTGRES_DB"`
}

// Load reads .env (if any) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug(".env file not found, using process environment")
	}
	cfg, err := Parse(nil)
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	return cfg
}

// Parse builds the config from environ, or from the process environment when environ is nil.
func Parse(environ map[string]string) (*Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, err
	}
	cfg.DefaultEngine = strings.ToLower(strings.TrimSpace(cfg.DefaultEngine))
	switch cfg.DefaultEngine {
	case "gemini", "gpt", "openai":
	default:
		return nil, fmt.Errorf("DEFAULT_ENGINE: unknown engine %q", cfg.DefaultEngine)
	}
	if cfg.MaxImageBytes <= 0 {
		return nil, fmt.Errorf("MAX_IMAGE_BYTES must be > 0")
	}
	if !cfg.RequireUserKey && cfg.ServerKey(cfg.DefaultEngine) == "" {
		return nil, fmt.Errorf("REQUIRE_USER_KEY=false needs a server key for engine %q", cfg.DefaultEngine)
	}
	return &cfg, nil
}

// ServerKey - ключ из окружения для движка; пусто, если не задан.
func (c *Config) ServerKey(engine string) string {
	switch strings.ToLower(engine) {
	case "gpt", "openai":
		return strings.TrimSpace(c.OpenAIAPIKey)
	default:
		return strings.TrimSpace(c.GeminiAPIKey)
	}
}

// DSN prefers DATABASE_URL, then builds one from POSTGRES_*. Empty means no database.
func (c *Config) DSN() string {
	if v := strings.TrimSpace(c.DatabaseURL); v != "" {
		return v
	}
	p := c.Postgres
	if p.Host == "" || p.DB == "" {
		return ""
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, p.Port),
		Path:     "/" + p.DB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SafeDSNSummary - описание DSN для логов, без пароля.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
