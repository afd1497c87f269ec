package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryBackend keeps documents in process memory. It is used for local
// development and as the store double in tests, and can be told to fail
// individual batch operations or new connections.
type MemoryBackend struct {
	mu         sync.Mutex
	docs       map[string]*memoryDoc
	sessions   int
	failOp     int
	connectErr error
}

type memoryDoc struct {
	value any
	rev   int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]*memoryDoc)}
}

func (m *MemoryBackend) Name() string { return BackendMemory }

func (m *MemoryBackend) Connect(_ context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, m.connectErr)
	}
	m.sessions++
	return &memorySession{backend: m}, nil
}

func (m *MemoryBackend) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, m.connectErr)
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// FailBatchOp makes the k-th operation (1-based) of the next executed batch
// report a write failure. Zero disables the injection.
func (m *MemoryBackend) FailBatchOp(k int) {
	m.mu.Lock()
	m.failOp = k
	m.mu.Unlock()
}

// FailConnect makes every Connect and Ping fail with err until reset with nil.
func (m *MemoryBackend) FailConnect(err error) {
	m.mu.Lock()
	m.connectErr = err
	m.mu.Unlock()
}

// OpenSessions returns the number of sessions not yet closed.
func (m *MemoryBackend) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions
}

// setLocked writes value at path. m.mu must be held.
func (m *MemoryBackend) setLocked(key, path string, value any) error {
	field, err := Field(path)
	if err != nil {
		return err
	}
	data, err := encode(value)
	if err != nil {
		return err
	}
	v, err := decode(data)
	if err != nil {
		return err
	}

	doc, ok := m.docs[key]
	if field == "" {
		if !ok {
			m.docs[key] = &memoryDoc{value: v, rev: 1}
			return nil
		}
		doc.value = v
		doc.rev++
		return nil
	}
	if !ok {
		return ErrNotFound
	}
	obj, ok := doc.value.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: document %s is not an object", ErrWriteIncomplete, key)
	}
	obj[field] = v
	doc.rev++
	return nil
}

// getLocked returns the encoded value at path and the document revision.
// m.mu must be held.
func (m *MemoryBackend) getLocked(key, path string) (json.RawMessage, int64, error) {
	field, err := Field(path)
	if err != nil {
		return nil, 0, err
	}
	doc, ok := m.docs[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	v := doc.value
	if field != "" {
		obj, isObj := doc.value.(map[string]any)
		if !isObj {
			return nil, 0, ErrNotFound
		}
		if v, ok = obj[field]; !ok {
			return nil, 0, ErrNotFound
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s: %w", key, err)
	}
	return data, doc.rev, nil
}

type memorySession struct {
	backend *MemoryBackend
	closed  bool
}

func (s *memorySession) check() error {
	if s.closed {
		return fmt.Errorf("%w: session closed", ErrUnavailable)
	}
	return nil
}

func (s *memorySession) Get(_ context.Context, key, path string) (json.RawMessage, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	data, _, err := s.backend.getLocked(key, path)
	return data, err
}

func (s *memorySession) Set(_ context.Context, key, path string, value any) error {
	if err := s.check(); err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	return s.backend.setLocked(key, path, value)
}

func (s *memorySession) Delete(_ context.Context, key string) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if _, ok := s.backend.docs[key]; !ok {
		return 0, nil
	}
	delete(s.backend.docs, key)
	return 1, nil
}

func (s *memorySession) Batch(key string) Batch {
	return &memoryBatch{session: s, key: key}
}

func (s *memorySession) Modify(_ context.Context, key, path string, fn ModifyFunc) error {
	if err := s.check(); err != nil {
		return err
	}
	m := s.backend

	m.mu.Lock()
	current, rev, err := m.getLocked(key, path)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok || doc.rev != rev {
		return ErrConflict
	}
	return m.setLocked(key, path, next)
}

func (s *memorySession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.backend.mu.Lock()
	s.backend.sessions--
	s.backend.mu.Unlock()
	return nil
}

type memoryBatch struct {
	session *memorySession
	key     string
	ops     []pendingSet
}

func (b *memoryBatch) Set(path string, value any) {
	b.ops = append(b.ops, pendingSet{path: path, value: value})
}

func (b *memoryBatch) Len() int { return len(b.ops) }

func (b *memoryBatch) Exec(_ context.Context) ([]error, error) {
	if err := b.session.check(); err != nil {
		return nil, err
	}
	m := b.session.backend
	m.mu.Lock()
	defer m.mu.Unlock()

	failOp := m.failOp
	m.failOp = 0

	if _, ok := m.docs[b.key]; !ok {
		return nil, ErrNotFound
	}
	outcomes := make([]error, len(b.ops))
	for i, op := range b.ops {
		if failOp == i+1 {
			outcomes[i] = fmt.Errorf("%w: injected failure on %s", ErrWriteIncomplete, op.path)
			continue
		}
		outcomes[i] = m.setLocked(b.key, op.path, op.value)
	}
	return outcomes, nil
}
