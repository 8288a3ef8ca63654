package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"bgv/pkg/platform/sentinel"
)

// Memory keeps evidence bytes in process. Used by tests and local runs
// without an evidence directory.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = bytes.Clone(data)
}

func (m *Memory) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("evidence %q: %w", key, sentinel.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
