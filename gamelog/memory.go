/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package gamelog

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in process. History is lost on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	meta    Meta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, e)

	return nil
}

func (s *MemoryStore) Entries(_ context.Context, table string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if table == "" || e.Table == table {
			out = append(out, e)
		}
	}

	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil

	return nil
}

func (s *MemoryStore) Meta(_ context.Context) (Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.meta, nil
}

func (s *MemoryStore) SaveMeta(_ context.Context, m Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.meta = m

	return nil
}

func (s *MemoryStore) Close() error { return nil }
