package credential

import (
	"context"
	"errors"
	"strings"
)

// Key - фиксированный идентификатор, под которым лежит ключ в хранилище сессии.
const Key = "api_key"

var ErrEmpty = errors.New("credential is empty")

// Provider is the credential holder for one session.
// Get returns "" with a nil error when nothing is stored.
type Provider interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, secret string) error
	Clear(ctx context.Context) error
}

// Store hands out per-session providers.
type Store interface {
	For(sessionID string) Provider
	Close() error
}

// EngineKeyed is implemented by providers that hold a separate key per engine.
type EngineKeyed interface {
	KeyFor(ctx context.Context, engine string) (string, error)
}

// Lookup returns the key to use with engine.
func Lookup(ctx context.Context, p Provider, engine string) (string, error) {
	if ek, ok := p.(EngineKeyed); ok && engine != "" {
		return ek.KeyFor(ctx, engine)
	}
	return p.Get(ctx)
}

// UserSettable reports whether the user can replace or lose the key held by p.
func UserSettable(p Provider) bool {
	ro, ok := p.(interface{ ReadOnly() bool })
	return !ok || !ro.ReadOnly()
}

func normalize(secret string) (string, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return "", ErrEmpty
	}
	return s, nil
}
