package detect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ai-detector/api/internal/detect/types"
)

// Engine - провайдер мультимодальной модели. Один вызов = один запрос, без ретраев.
// Analyze возвращает сырой текст ответа модели; ошибки транспорта - *types.TransportError.
type Engine interface {
	Name() string
	GetModel() string
	Analyze(ctx context.Context, in types.AnalyzeRequest) (string, error)
}

type Engines struct {
	Gemini Engine
	OpenAI Engine
	// Default is used for an empty llm_name; "gemini" when unset.
	Default string
}

var (
	ErrUnknownEngine       = errors.New("unknown llm_name; use 'gemini' or 'gpt'")
	ErrEngineNotConfigured = errors.New("engine is not configured")
)

func (e *Engines) GetEngine(llmName string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(llmName))
	if name == "" {
		name = e.Default
	}
	var eng Engine
	switch name {
	case "", "gemini":
		eng = e.Gemini
	case "gpt", "openai":
		eng = e.OpenAI
	default:
		return nil, ErrUnknownEngine
	}
	if eng == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrEngineNotConfigured)
	}
	return eng, nil
}
