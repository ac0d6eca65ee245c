// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	bySID     map[string]map[string]struct{}
	bySubject map[string]map[string]struct{}

	now       func() time.Time
	retention time.Duration
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
//
// Supported options: WithNow, WithExpiredRetention
func NewMemoryStore(opt ...Option) *MemoryStore {
	opts := getStoreOpts(opt...)
	return &MemoryStore{
		sessions:  map[string]*Session{},
		bySID:     map[string]map[string]struct{}{},
		bySubject: map[string]map[string]struct{}{},
		now:       opts.withNow,
		retention: opts.withRetention,
	}
}

// Create stores s. Expired sessions past their retention are pruned.
func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	const op = "MemoryStore.Create"
	if err := s.validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("%s: %s: %w", op, s.ID, ErrAlreadyExists)
	}
	m.pruneLocked()
	c := *s
	m.sessions[c.ID] = &c
	addIndex(m.bySID, c.SID, c.ID)
	addIndex(m.bySubject, c.Subject, c.ID)
	return nil
}

// Read returns a copy of the session for id.
func (m *MemoryStore) Read(ctx context.Context, id string) (*Session, error) {
	const op = "MemoryStore.Read"
	if id == "" {
		return nil, fmt.Errorf("%s: missing id: %w", op, ErrInvalidParameter)
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if s.IsExpired(m.now()) {
		m.mu.Lock()
		m.deleteLocked(id)
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, ErrExpired)
	}
	c := *s
	return &c, nil
}

// Delete removes the session for id.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(id)
	return nil
}

// DeleteBySID removes the sessions with the provider session ID sid.
func (m *MemoryStore) DeleteBySID(ctx context.Context, sid string) ([]*Session, error) {
	const op = "MemoryStore.DeleteBySID"
	if sid == "" {
		return nil, fmt.Errorf("%s: missing sid: %w", op, ErrInvalidParameter)
	}
	return m.deleteIndexed(m.bySID, sid), nil
}

// DeleteBySubject removes the sessions of subject.
func (m *MemoryStore) DeleteBySubject(ctx context.Context, subject string) ([]*Session, error) {
	const op = "MemoryStore.DeleteBySubject"
	if subject == "" {
		return nil, fmt.Errorf("%s: missing subject: %w", op, ErrInvalidParameter)
	}
	return m.deleteIndexed(m.bySubject, subject), nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) deleteIndexed(index map[string]map[string]struct{}, key string) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted []*Session
	for id := range index[key] {
		if s := m.deleteLocked(id); s != nil {
			deleted = append(deleted, s)
		}
	}
	return deleted
}

func (m *MemoryStore) deleteLocked(id string) *Session {
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	removeIndex(m.bySID, s.SID, id)
	removeIndex(m.bySubject, s.Subject, id)
	return s
}

func (m *MemoryStore) pruneLocked() {
	cutoff := m.now().Add(-m.retention)
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(cutoff) {
			m.deleteLocked(id)
		}
	}
}

func addIndex(index map[string]map[string]struct{}, key, id string) {
	if key == "" {
		return
	}
	ids, ok := index[key]
	if !ok {
		ids = map[string]struct{}{}
		index[key] = ids
	}
	ids[id] = struct{}{}
}

func removeIndex(index map[string]map[string]struct{}, key, id string) {
	ids, ok := index[key]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(index, key)
	}
}
