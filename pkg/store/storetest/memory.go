// Package storetest provides an in-memory store.Conn for tests.
package storetest

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitriko/contactd/pkg/store"
)

// Memory is a store.Conn backed by a map.
type Memory struct {
	mu       sync.Mutex
	contacts map[string]*store.Contact
	closed   bool

	// SaveErr, when set, is returned by SaveContact.
	SaveErr error
}

func NewMemory() *Memory {
	return &Memory{contacts: map[string]*store.Contact{}}
}

func (m *Memory) SaveContact(_ context.Context, c *store.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *c
	m.contacts[c.ID] = &cp
	return nil
}

func (m *Memory) FetchContact(_ context.Context, id string) (*store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return nil, store.ErrNoSuchItem
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) ListContacts(_ context.Context, opts store.ListOptions) ([]*store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Contact
	for _, c := range m.contacts {
		if !opts.Since.IsZero() && c.CreatedAt.Before(opts.Since) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Memory) Backend() string { return "memory" }

// Len returns the number of stored contacts.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contacts)
}
