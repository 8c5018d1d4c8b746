package repository

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
)

// MemoryProjectStore keeps projects in a map. Reads and writes copy the
// project so callers never alias stored state.
type MemoryProjectStore struct {
	mu       sync.RWMutex
	projects map[uint64]*escrow.Project
	seq      atomic.Uint64
}

func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{projects: make(map[uint64]*escrow.Project)}
}

func (s *MemoryProjectStore) Get(ctx context.Context, id uint64) (*escrow.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, escrow.ErrProjectNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryProjectStore) Put(ctx context.Context, p *escrow.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p.Clone()
	return nil
}

func (s *MemoryProjectStore) Exists(ctx context.Context, id uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.projects[id]
	return ok, nil
}

func (s *MemoryProjectStore) NextID(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.seq.Add(1), nil
}

func (s *MemoryProjectStore) Count(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.seq.Load(), nil
}

var _ escrow.Store = (*MemoryProjectStore)(nil)
