// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"researchengine/internal/taskstore"
)

// memoryStore is a process-local taskstore.Store used when no
// DATABASE_URL is configured, so the API shim can run standalone for
// local demos without requiring Postgres.
type memoryStore struct {
	mu      sync.Mutex
	tasks   map[string]*taskstore.Task
	batches map[string]*taskstore.Batch
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		tasks:   make(map[string]*taskstore.Task),
		batches: make(map[string]*taskstore.Batch),
	}
}

func (m *memoryStore) SaveTask(_ context.Context, t *taskstore.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memoryStore) GetTask(_ context.Context, id string) (*taskstore.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	cp := *t
	return &cp, nil
}

func (m *memoryStore) UpdateTask(_ context.Context, t *taskstore.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return fmt.Errorf("task %s not found", t.ID)
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memoryStore) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *memoryStore) ListTasks(_ context.Context, filter taskstore.ListFilter) ([]*taskstore.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*taskstore.Task
	for _, t := range m.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Company != "" && t.Company != filter.Company {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memoryStore) CountTasks(_ context.Context, status taskstore.Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == "" {
		return len(m.tasks), nil
	}
	n := 0
	for _, t := range m.tasks {
		if t.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) SaveBatch(_ context.Context, b *taskstore.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *memoryStore) GetBatch(_ context.Context, id string) (*taskstore.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s not found", id)
	}
	cp := *b
	return &cp, nil
}

func (m *memoryStore) UpdateBatch(_ context.Context, b *taskstore.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[b.ID]; !ok {
		return fmt.Errorf("batch %s not found", b.ID)
	}
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *memoryStore) CleanupOldTasks(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for id, t := range m.tasks {
		if t.CreatedAt.Before(cutoff) {
			delete(m.tasks, id)
			n++
		}
	}
	return n, nil
}
