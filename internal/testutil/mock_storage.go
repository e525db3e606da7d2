// mock_storage.go - In-memory object store for testing
package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sprint-insights/backend/internal/storage"
)

// Call records one operation performed against MockStorage.
type Call struct {
	Op   string
	Keys []string
}

type mockObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MockStorage implements storage.ObjectStore in memory.
// Failures can be injected per operation and per key.
type MockStorage struct {
	mu      sync.RWMutex
	objects map[string]*mockObject
	calls   []Call
	clock   time.Time

	// FailOn maps "op" or "op:key" to the error returned for that call.
	FailOn map[string]error
}

// NewMockStorage creates a new empty mock storage.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		objects: make(map[string]*mockObject),
		FailOn:  make(map[string]error),
		clock:   time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *MockStorage) injected(op, key string) error {
	if err, ok := m.FailOn[op+":"+key]; ok {
		return err
	}
	if err, ok := m.FailOn[op]; ok {
		return err
	}
	return nil
}

// tick advances the mock clock so objects get distinct, ordered timestamps.
func (m *MockStorage) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *MockStorage) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: "list", Keys: []string{prefix}})
	if err := m.injected("list", prefix); err != nil {
		return nil, err
	}

	var objects []storage.ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, storage.ObjectInfo{
				Key:          key,
				Size:         int64(len(obj.data)),
				LastModified: obj.modified,
				ContentType:  obj.contentType,
			})
		}
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key < objects[j].Key
	})
	return objects, nil
}

func (m *MockStorage) Upload(ctx context.Context, key string, r io.Reader, contentType string) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: "upload", Keys: []string{key}})
	if err := m.injected("upload", key); err != nil {
		return storage.ObjectInfo{}, err
	}
	if _, exists := m.objects[key]; exists {
		return storage.ObjectInfo{}, fmt.Errorf("%s: %w", key, storage.ErrObjectExists)
	}

	obj := &mockObject{data: data, contentType: contentType, modified: m.tick()}
	m.objects[key] = obj
	return storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		LastModified: obj.modified,
		ContentType:  contentType,
	}, nil
}

func (m *MockStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: "download", Keys: []string{key}})
	if err := m.injected("download", key); err != nil {
		return nil, err
	}
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MockStorage) Copy(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: "copy", Keys: []string{src, dst}})
	if err := m.injected("copy", src); err != nil {
		return err
	}
	obj, ok := m.objects[src]
	if !ok {
		return fmt.Errorf("%s: %w", src, storage.ErrObjectNotFound)
	}
	if _, exists := m.objects[dst]; exists {
		return fmt.Errorf("%s: %w", dst, storage.ErrObjectExists)
	}
	m.objects[dst] = &mockObject{
		data:        append([]byte(nil), obj.data...),
		contentType: obj.contentType,
		modified:    m.tick(),
	}
	return nil
}

func (m *MockStorage) Remove(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: "remove", Keys: append([]string(nil), keys...)})
	for _, key := range keys {
		if err := m.injected("remove", key); err != nil {
			return err
		}
	}
	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

// Ensure MockStorage implements storage.ObjectStore
var _ storage.ObjectStore = (*MockStorage)(nil)

// Test Helper Methods

// AddObject stores data under key, bypassing failure injection.
func (m *MockStorage) AddObject(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &mockObject{data: data, contentType: "text/csv", modified: m.tick()}
}

// AddObjectAt stores data under key with an explicit modification time.
func (m *MockStorage) AddObjectAt(key string, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &mockObject{data: data, contentType: "text/csv", modified: modified}
}

// GetObject returns the content stored under key.
func (m *MockStorage) GetObject(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return obj.data, nil
}

// Keys returns every stored key in sorted order.
func (m *MockStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Calls returns the operations performed so far.
func (m *MockStorage) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times op was invoked.
func (m *MockStorage) CallCount(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Fail makes every future call of op on key return err. An empty key matches all keys.
func (m *MockStorage) Fail(op, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == "" {
		m.FailOn[op] = err
		return
	}
	m.FailOn[op+":"+key] = err
}

// Clear removes all objects and recorded calls
func (m *MockStorage) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects = make(map[string]*mockObject)
	m.calls = nil
	m.FailOn = make(map[string]error)
}
