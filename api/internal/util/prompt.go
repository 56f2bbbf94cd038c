package util

import (
	"fmt"
	"os"
	"strings"
)

// LoadPrompt читает инструкцию из файла; пустой путь - берём встроенную.
func LoadPrompt(path, fallback string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return fallback, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("prompt %q: %w", path, err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("prompt %q is empty", path)
	}
	return s, nil
}
