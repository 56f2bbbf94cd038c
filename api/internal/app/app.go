package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/apex/log"

	"ai-detector/api/internal/config"
	"ai-detector/api/internal/credential"
	"ai-detector/api/internal/detect"
	"ai-detector/api/internal/detect/gemini"
	"ai-detector/api/internal/detect/openai"
	"ai-detector/api/internal/detect/types"
	"ai-detector/api/internal/httpserver"
	"ai-detector/api/internal/session"
	"ai-detector/api/internal/store"
	"ai-detector/api/internal/util"
)

// App - всё, что общее у HTTP-сервера и бота.
type App struct {
	Cfg      *config.Config
	Engines  *detect.Engines
	Pool     *detect.Pool
	Creds    credential.Store
	Sessions *session.Manager
	DB       *sql.DB // nil, если БД не настроена
	Cache    *store.AnalysisRepo
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Cfg: cfg}

	a.Engines = &detect.Engines{Default: cfg.DefaultEngine}
	// с серверными ключами обслуживаем только движки, для которых ключ задан
	if cfg.RequireUserKey || cfg.ServerKey("gemini") != "" {
		a.Engines.Gemini = gemini.New(cfg.GeminiModel, cfg.GeminiEndpoint)
	}
	if cfg.RequireUserKey || cfg.ServerKey("gpt") != "" {
		a.Engines.OpenAI = openai.New(cfg.OpenAIModel, cfg.OpenAIBaseURL)
	}

	prompt, err := util.LoadPrompt(cfg.PromptFile, types.ForensicPrompt)
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	opts := []detect.Option{detect.WithPrompt(prompt)}

	if dsn := cfg.DSN(); dsn != "" {
		db, err := store.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.Cache = store.NewAnalysisRepo(db, cfg.CacheMaxAge)
		if err := a.Cache.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		opts = append(opts, detect.WithCache(a.Cache))
		log.WithField("db", config.SafeDSNSummary(dsn)).Info("analysis cache enabled")
	}

	a.Pool = detect.NewPool(a.Engines, opts...)
	def, err := a.Pool.Get("")
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Creds, err = newCredentialStore(ctx, cfg, def.EngineName())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sessions = session.NewManager(def, a.Creds)
	return a, nil
}

func newCredentialStore(ctx context.Context, cfg *config.Config, defaultEngine string) (credential.Store, error) {
	switch {
	case !cfg.RequireUserKey:
		keys := map[string]string{}
		for _, name := range []string{"gemini", "gpt"} {
			if k := cfg.ServerKey(name); k != "" {
				keys[name] = k
			}
		}
		log.WithField("engine", defaultEngine).Info("using server api keys")
		return credential.Static{Keys: keys, Default: defaultEngine}, nil
	case cfg.RedisAddr != "":
		s, err := credential.NewRedis(ctx, credential.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			TTL:      cfg.SessionTTL,
		})
		if err != nil {
			return nil, err
		}
		log.WithField("addr", cfg.RedisAddr).Info("credentials in redis")
		return s, nil
	default:
		return credential.NewMemory(), nil
	}
}

// ServerKey отдаёт ключ из конфига для stateless-запросов, если пользовательский ключ не обязателен.
func (a *App) ServerKey() func(engine string) string {
	if a.Cfg.RequireUserKey {
		return nil
	}
	return a.Cfg.ServerKey
}

// RunMaintenance чистит протухшие сессии и старые записи кэша, пока ctx жив.
func (a *App) RunMaintenance(ctx context.Context) {
	go a.Sessions.RunSweeper(ctx, a.Cfg.SessionTTL, 0)
	if a.Cache == nil || a.Cfg.CacheMaxAge <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := a.Cache.PurgeOlderThan(ctx, a.Cfg.CacheMaxAge)
				if err != nil {
					log.WithError(err).Warn("cache purge failed")
					continue
				}
				if n > 0 {
					log.WithField("rows", n).Info("cache purged")
				}
			}
		}
	}()
}

// Checks - зависимости для /healthz.
func (a *App) Checks() map[string]httpserver.Check {
	checks := map[string]httpserver.Check{}
	if a.DB != nil {
		checks["db"] = a.DB.PingContext
	}
	if p, ok := a.Creds.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = p.Ping
	}
	return checks
}

func (a *App) Close() {
	if a.Creds != nil {
		_ = a.Creds.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
