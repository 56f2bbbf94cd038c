package credential

import (
	"context"
	"errors"
)

var ErrReadOnly = errors.New("server api key is used; it cannot be changed")

// Static - ключи сервера из конфига, по одному на движок. Пользователь их не вводит и не может стереть.
type Static struct {
	Keys    map[string]string // engine name -> key
	Default string            // движок для Get
}

func (s Static) For(string) Provider { return s }
func (s Static) Close() error        { return nil }

func (s Static) Get(ctx context.Context) (string, error) { return s.KeyFor(ctx, s.Default) }

func (s Static) KeyFor(_ context.Context, engine string) (string, error) {
	return s.Keys[engine], nil
}

func (s Static) Set(context.Context, string) error { return ErrReadOnly }
func (s Static) Clear(context.Context) error       { return nil }
func (s Static) ReadOnly() bool                    { return true }
