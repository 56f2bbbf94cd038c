package credential

import (
	"context"
	"sync"
)

// MemoryStore держит ключи в памяти процесса; живут, пока жива сессия.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]string
}

func NewMemory() *MemoryStore {
	return &MemoryStore{keys: make(map[string]string)}
}

func (s *MemoryStore) For(sessionID string) Provider {
	return &memoryProvider{s: s, id: sessionID}
}

func (s *MemoryStore) Close() error { return nil }

type memoryProvider struct {
	s  *MemoryStore
	id string
}

func (p *memoryProvider) Get(context.Context) (string, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	return p.s.keys[p.id], nil
}

func (p *memoryProvider) Set(_ context.Context, secret string) error {
	v, err := normalize(secret)
	if err != nil {
		return err
	}
	p.s.mu.Lock()
	p.s.keys[p.id] = v
	p.s.mu.Unlock()
	return nil
}

func (p *memoryProvider) Clear(context.Context) error {
	p.s.mu.Lock()
	delete(p.s.keys, p.id)
	p.s.mu.Unlock()
	return nil
}
