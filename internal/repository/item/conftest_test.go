package item

import (
	"context"
	"sync"
)

// mockStore is an in-memory stand-in for the Redis facade: hashes and
// sets backed by maps, with per-operation error injection.
type mockStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	sets   map[string]map[string]bool

	hsetErr     error
	hgetAllErr  error
	sAddErr     error
	sMembersErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]bool),
	}
}

func (m *mockStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if m.hsetErr != nil {
		return m.hsetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if m.hgetAllErr != nil {
		return nil, m.hgetAllErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, key := range keys {
		h, err := m.HGetAll(ctx, key)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func (m *mockStore) SAdd(_ context.Context, key string, members ...string) error {
	if m.sAddErr != nil {
		return m.sAddErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]bool)
		m.sets[key] = s
	}
	for _, member := range members {
		s[member] = true
	}
	return nil
}

func (m *mockStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range members {
		delete(m.sets[key], member)
	}
	return nil
}

func (m *mockStore) SMembers(_ context.Context, key string) ([]string, error) {
	if m.sMembersErr != nil {
		return nil, m.sMembersErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *mockStore) SMembersMulti(ctx context.Context, keys []string) ([][]string, error) {
	out := make([][]string, len(keys))
	for i, key := range keys {
		members, err := m.SMembers(ctx, key)
		if err != nil {
			return nil, err
		}
		out[i] = members
	}
	return out, nil
}

// setMembers returns the current members of one index set.
func (m *mockStore) setMembers(key string) map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.sets[key]))
	for member := range m.sets[key] {
		out[member] = true
	}
	return out
}
