// Package cache keeps a fast lookup of which blob each live exam serves.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// LiveIndex maps an exam ID to its live blob pointer. GetLive returns an error
// wrapping model.ErrNotFound when no pointer is cached.
type LiveIndex interface {
	SetLive(ctx context.Context, p model.LivePointer) error
	ClearLive(ctx context.Context, examID string) error
	GetLive(ctx context.Context, examID string) (model.LivePointer, error)
}

// Memory is an in-process LiveIndex.
type Memory struct {
	mu   sync.RWMutex
	live map[string]model.LivePointer
}

var _ LiveIndex = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{live: make(map[string]model.LivePointer)}
}

func (m *Memory) SetLive(_ context.Context, p model.LivePointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[p.ExamID] = p
	return nil
}

func (m *Memory) ClearLive(_ context.Context, examID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, examID)
	return nil
}

func (m *Memory) GetLive(_ context.Context, examID string) (model.LivePointer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.live[examID]
	if !ok {
		return model.LivePointer{}, fmt.Errorf("%w: live pointer for %s", model.ErrNotFound, examID)
	}
	return p, nil
}
