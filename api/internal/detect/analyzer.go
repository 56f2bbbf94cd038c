package detect

import (
	"context"
	"strings"
	"time"

	"github.com/apex/log"

	"ai-detector/api/internal/detect/types"
	"ai-detector/api/internal/encode"
	"ai-detector/api/internal/util"
)

// Cache - кэш готовых вердиктов по (image_hash, engine, model).
type Cache interface {
	Find(ctx context.Context, imageHash, engine, model string) (types.AnalysisResult, error)
	Upsert(ctx context.Context, imageHash, engine, model string, res types.AnalysisResult) error
}

// Analyzer owns one outbound request per call: build request, call the engine once,
// parse and validate the response, classify failures.
type Analyzer struct {
	engine Engine
	prompt string
	cache  Cache
}

type Option func(*Analyzer)

func WithPrompt(p string) Option {
	return func(a *Analyzer) {
		if strings.TrimSpace(p) != "" {
			a.prompt = p
		}
	}
}

func WithCache(c Cache) Option {
	return func(a *Analyzer) { a.cache = c }
}

func NewAnalyzer(engine Engine, opts ...Option) *Analyzer {
	a := &Analyzer{engine: engine, prompt: types.ForensicPrompt}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Analyzer) Engine() Engine { return a.engine }

// EngineName - имя движка, по нему выбирается серверный ключ.
func (a *Analyzer) EngineName() string { return a.engine.Name() }

// Analyze returns the verdict for p or a *types.Error.
func (a *Analyzer) Analyze(ctx context.Context, p encode.EncodedPayload, credential string) (types.AnalysisResult, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return types.AnalysisResult{}, types.NewError(types.KindAuth, "no credential", nil)
	}
	if p.Data == "" || p.MIMEType == "" {
		return types.AnalysisResult{}, types.NewError(types.KindMalformedEncoding, "empty payload", nil)
	}

	name, model := a.engine.Name(), a.engine.GetModel()
	entry := log.WithFields(log.Fields{"engine": name, "model": model, "mime": p.MIMEType})

	var hash string
	if a.cache != nil {
		hash = util.SHA256Hex(p.MIMEType, p.Data)
		if res, err := a.cache.Find(ctx, hash, name, model); err == nil {
			entry.WithField("hash", hash[:12]).Debug("analysis cache hit")
			return res, nil
		}
	}

	start := time.Now()
	raw, err := a.engine.Analyze(ctx, types.AnalyzeRequest{
		APIKey:   credential,
		Prompt:   a.prompt,
		ImageB64: p.Data,
		MIMEType: p.MIMEType,
	})
	if err != nil {
		cerr := Classify(err)
		entry.WithError(err).WithField("kind", cerr.Kind.String()).Warn("analysis call failed")
		return types.AnalysisResult{}, cerr
	}

	res, err := ParseResult(raw)
	if err != nil {
		entry.WithError(err).WithField("raw", util.Truncate(raw, 300)).Warn("analysis response rejected")
		return types.AnalysisResult{}, err
	}
	if len(res.TelltaleSigns) < types.MinSigns {
		entry.WithField("signs", len(res.TelltaleSigns)).Info("fewer telltale signs than requested")
	}
	entry.WithFields(log.Fields{
		"ai":         res.IsAIGenerated,
		"confidence": res.ConfidenceScore,
		"took":       time.Since(start).String(),
	}).Info("analysis done")

	if a.cache != nil {
		if err := a.cache.Upsert(ctx, hash, name, model, res); err != nil {
			entry.WithError(err).Warn("analysis cache upsert failed")
		}
	}
	return res, nil
}
