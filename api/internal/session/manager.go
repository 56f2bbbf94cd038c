package session

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"ai-detector/api/internal/credential"
)

// Manager keeps one Controller per session id.
type Manager struct {
	analyzer Analyzer
	creds    credential.Store
	sessions sync.Map // id -> *Controller

	hookMu sync.RWMutex
	onEnd  []func(id string)
}

func NewManager(a Analyzer, creds credential.Store) *Manager {
	return &Manager{analyzer: a, creds: creds}
}

// New starts a session with a fresh random id.
func (m *Manager) New() *Controller {
	id := uuid.NewString()
	c := NewController(id, m.analyzer, m.creds.For(id))
	m.sessions.Store(id, c)
	return c
}

func (m *Manager) Get(id string) (*Controller, bool) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Controller), true
}

// GetOrCreate - для чатов, где id задаёт внешний мир (chat_id в телеге).
func (m *Manager) GetOrCreate(id string) *Controller {
	if c, ok := m.Get(id); ok {
		return c
	}
	c := NewController(id, m.analyzer, m.creds.For(id))
	v, _ := m.sessions.LoadOrStore(id, c)
	return v.(*Controller)
}

// OnEnd registers fn to be called after a session is ended or swept.
func (m *Manager) OnEnd(fn func(id string)) {
	m.hookMu.Lock()
	m.onEnd = append(m.onEnd, fn)
	m.hookMu.Unlock()
}

// End drops the session together with its credential.
func (m *Manager) End(ctx context.Context, id string) {
	v, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return
	}
	c := v.(*Controller)
	c.Clear()
	if err := c.creds.Clear(ctx); err != nil {
		log.WithError(err).WithField("session", id).Warn("credential clear failed")
	}
	m.hookMu.RLock()
	hooks := append([]func(string){}, m.onEnd...)
	m.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
}

// Sweep ends sessions idle for longer than ttl and returns how many were dropped.
func (m *Manager) Sweep(ctx context.Context, ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	var stale []string
	m.sessions.Range(func(k, v any) bool {
		if v.(*Controller).lastActive().Before(cutoff) {
			stale = append(stale, k.(string))
		}
		return true
	})
	for _, id := range stale {
		m.End(ctx, id)
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = ttl / 2
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(ctx, ttl); n > 0 {
				log.WithField("count", n).Info("expired sessions swept")
			}
		}
	}
}
