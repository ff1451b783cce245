package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/spendgate/pkg/custody"
	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

// Memory implements Store in memory. Thread-safe via RWMutex. Values are
// copied through JSON on the way in and out so callers never share mutable
// state with the store, matching the isolation a SQL backend gives.
type Memory struct {
	mu          sync.RWMutex
	controllers map[string][]byte
	builders    map[string][]byte
	delegations map[string][]byte
	requests    map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		controllers: make(map[string][]byte),
		builders:    make(map[string][]byte),
		delegations: make(map[string][]byte),
		requests:    make(map[string][]byte),
	}
}

func (m *Memory) put(table map[string][]byte, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	table[id] = raw
	return nil
}

func (m *Memory) get(table map[string][]byte, id string, v any) error {
	m.mu.RLock()
	raw, ok := table[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

func (m *Memory) delete(table map[string][]byte, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := table[id]; !ok {
		return ErrNotFound
	}
	delete(table, id)
	return nil
}

func (m *Memory) PutController(_ context.Context, c *custody.Controller) error {
	return m.put(m.controllers, c.ID, c)
}

func (m *Memory) GetController(_ context.Context, id string) (*custody.Controller, error) {
	var c custody.Controller
	if err := m.get(m.controllers, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *Memory) PutBuilder(_ context.Context, id string, b *spend.RuleSetBuilder) error {
	return m.put(m.builders, id, b)
}

func (m *Memory) GetBuilder(_ context.Context, id string) (*spend.RuleSetBuilder, error) {
	var b spend.RuleSetBuilder
	if err := m.get(m.builders, id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (m *Memory) DeleteBuilder(_ context.Context, id string) error {
	return m.delete(m.builders, id)
}

func (m *Memory) PutDelegation(_ context.Context, d *custody.Delegation) error {
	return m.put(m.delegations, d.ID, d)
}

func (m *Memory) GetDelegation(_ context.Context, id string) (*custody.Delegation, error) {
	var d custody.Delegation
	if err := m.get(m.delegations, id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *Memory) PutRequest(_ context.Context, id string, r *spend.Request) error {
	return m.put(m.requests, id, r)
}

func (m *Memory) GetRequest(_ context.Context, id string) (*spend.Request, error) {
	var r spend.Request
	if err := m.get(m.requests, id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *Memory) DeleteRequest(_ context.Context, id string) error {
	return m.delete(m.requests, id)
}

// MemoryLock implements RequestLock in-process.
type MemoryLock struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{tokens: make(map[string]string)}
}

func (l *MemoryLock) Lock(_ context.Context, requestID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.tokens[requestID]; held {
		return "", ErrLockHeld
	}
	token := uuid.New().String()
	l.tokens[requestID] = token
	return token, nil
}

func (l *MemoryLock) Unlock(_ context.Context, requestID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tokens[requestID] != token {
		return ErrLockHeld
	}
	delete(l.tokens, requestID)
	return nil
}
