// Package testsupport provides shared fakes for pipeline tests: a scripted
// query service, an in-memory object store and a recording sleeper.
package testsupport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tagstats/internal/query"
	"tagstats/internal/storage"
)

// Logger returns a quiet logger for tests.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FakeQueryService scripts a query service: every StartQuery returns the
// next generated id, GetStatus pops states from Script (repeating the last
// one), and FetchResult serves CSV from the Results map or the default CSV.
type FakeQueryService struct {
	mu sync.Mutex

	Script       []query.Status
	CSV          string
	Results      map[string]string
	StartErr     error
	BytesScanned int64

	Submitted []string
	Polls     int
	nextID    int
}

func (f *FakeQueryService) StartQuery(_ context.Context, sql string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return "", f.StartErr
	}
	f.nextID++
	f.Submitted = append(f.Submitted, sql)
	return fmt.Sprintf("exec-%d", f.nextID), nil
}

func (f *FakeQueryService) GetStatus(_ context.Context, _ string) (query.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.Polls
	if idx >= len(f.Script) {
		idx = len(f.Script) - 1
	}
	f.Polls++
	status := f.Script[idx]
	if status.BytesScanned == 0 {
		status.BytesScanned = f.BytesScanned
	}
	return status, nil
}

func (f *FakeQueryService) FetchResult(_ context.Context, executionID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	csv := f.CSV
	if body, ok := f.Results[executionID]; ok {
		csv = body
	}
	return io.NopCloser(strings.NewReader(csv)), nil
}

// Succeeded returns a single-step script that succeeds immediately.
func Succeeded() []query.Status {
	return []query.Status{{State: query.StateSucceeded}}
}

// MemoryObjectStore is an in-memory storage.ObjectStore.
type MemoryObjectStore struct {
	mu           sync.Mutex
	Objects      map[string][]byte
	ContentTypes map[string]string
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{
		Objects:      map[string][]byte{},
		ContentTypes: map[string]string{},
	}
}

func (m *MemoryObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.Objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, storage.ErrNotFound)
	}
	return body, nil
}

func (m *MemoryObjectStore) Put(_ context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[key] = body
	m.ContentTypes[key] = contentType
	return nil
}

func (m *MemoryObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, key)
	delete(m.ContentTypes, key)
	return nil
}

func (m *MemoryObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.Objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *MemoryObjectStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

// Keys returns the stored keys containing a substring, for assertions.
func (m *MemoryObjectStore) Keys(substr string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.Objects {
		if strings.Contains(k, substr) {
			keys = append(keys, k)
		}
	}
	return keys
}

// RecordingSleeper records requested delays and returns immediately.
type RecordingSleeper struct {
	mu    sync.Mutex
	Slept []time.Duration
}

func (s *RecordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Slept = append(s.Slept, d)
	return nil
}
