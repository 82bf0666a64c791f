package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"clawsync/internal/statesync"
)

// memObject is one stored object with its upload time.
type memObject struct {
	data     []byte
	modified time.Time
}

// MemoryTransport is an in-memory implementation of statesync.Transport,
// useful for testing. This implementation is safe for concurrent use.
type MemoryTransport struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

// NewMemoryTransport creates an empty in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{objects: make(map[string]memObject)}
}

// List returns all objects whose key starts with prefix, sorted by key.
func (m *MemoryTransport) List(_ context.Context, prefix string) ([]statesync.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var objects []statesync.Object
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, statesync.Object{
				Key:          key,
				Size:         int64(len(obj.data)),
				LastModified: obj.modified,
			})
		}
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Get retrieves the object at key.
func (m *MemoryTransport) Get(_ context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return fmt.Errorf("object not found: %s", key)
	}

	if _, err := io.Copy(w, bytes.NewReader(obj.data)); err != nil {
		return fmt.Errorf("writing object: %w", err)
	}
	return nil
}

// Put stores content at key, overwriting any existing object.
func (m *MemoryTransport) Put(_ context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = memObject{data: data, modified: time.Now()}
	return nil
}

// Delete removes the given keys. Missing keys are ignored.
func (m *MemoryTransport) Delete(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

// Bytes returns the stored content for key. Test helper.
func (m *MemoryTransport) Bytes(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte{}, obj.data...), true
}

// Keys returns every stored key, sorted. Test helper.
func (m *MemoryTransport) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Compile-time check that MemoryTransport implements statesync.Transport
var _ statesync.Transport = (*MemoryTransport)(nil)
