// Package locking provides an in-process upload.LockingService. It serialises
// requests within one process only; the disk engine's file lock still guards
// the data itself.
package locking

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/tusstore/internal/common"
	"github.com/dmitrijs2005/tusstore/internal/upload"
)

// Memory keeps one single-slot channel per locked upload id.
type Memory struct {
	ids upload.IDFactory

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ upload.LockingService = (*Memory)(nil)

func NewMemory(ids upload.IDFactory) *Memory {
	return &Memory{ids: ids, slots: make(map[string]*slot)}
}

// LockUploadByURI blocks until the upload addressed by uri is free or ctx is done.
func (m *Memory) LockUploadByURI(ctx context.Context, uri string) (upload.Lock, error) {
	id, err := m.ids.ReadUploadID(uri)
	if err != nil {
		return nil, err
	}

	s := m.acquireSlot(id)
	select {
	case s.ch <- struct{}{}:
		return &memoryLock{m: m, id: id, s: s}, nil
	case <-ctx.Done():
		m.releaseSlot(id, s)
		return nil, fmt.Errorf("lock upload %s: %w: %w", id, common.ErrorLocked, ctx.Err())
	}
}

// IsLocked reports whether some caller currently holds the lock of id.
func (m *Memory) IsLocked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	return ok && len(s.ch) > 0
}

func (m *Memory) acquireSlot(id string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[id] = s
	}
	s.refs++
	return s
}

func (m *Memory) releaseSlot(id string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, id)
	}
}

type memoryLock struct {
	m    *Memory
	id   string
	s    *slot
	once sync.Once
}

// Release frees the upload. Calling it more than once is harmless.
func (l *memoryLock) Release() error {
	l.once.Do(func() {
		<-l.s.ch
		l.m.releaseSlot(l.id, l.s)
	})
	return nil
}
