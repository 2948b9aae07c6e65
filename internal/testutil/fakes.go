package testutil

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ConfabulousDev/confab-insights/internal/llm"
	"github.com/ConfabulousDev/confab-insights/internal/storage"
)

// MemStore is an in-memory blob store. Set Err to make every call fail, or
// Block to make every call wait until its context ends.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	clock   time.Time

	Err   error
	Block bool
	Puts  int
}

type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string]memObject),
		clock:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// wait blocks until ctx ends when Block is set.
func (m *MemStore) wait(ctx context.Context) error {
	m.mu.Lock()
	block := m.Block
	m.mu.Unlock()
	if !block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

// Put stores a copy of data. Each write is one second after the previous one.
func (m *MemStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Puts++
	m.clock = m.clock.Add(time.Second)
	m.objects[key] = memObject{data: bytes.Clone(data), contentType: contentType, modified: m.clock}
	return nil
}

// Get returns a copy of the stored bytes.
func (m *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	obj, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return bytes.Clone(obj.data), nil
}

// List returns objects under prefix in key order.
func (m *MemStore) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []storage.ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(obj.data)), LastModified: obj.modified})
		}
	}
	sortObjects(out)
	return out, nil
}

// ContentType returns the content type recorded for key.
func (m *MemStore) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key].contentType
}

// Len returns the number of stored objects.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func sortObjects(objects []storage.ObjectInfo) {
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
}

// StubRequester records every call and answers with Reply, or fails with Err.
// With Block set, a call waits until its context ends and fails the way a
// real client does when the connection is cut.
type StubRequester struct {
	mu    sync.Mutex
	Calls []RequesterCall

	Reply string
	Model string
	Err   error
	Block bool
}

// RequesterCall is one recorded Complete call.
type RequesterCall struct {
	System string
	User   string
}

// Complete records the call.
func (s *StubRequester) Complete(ctx context.Context, system, user string) (*llm.Completion, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, RequesterCall{System: system, User: user})
	block := s.Block
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, llm.Transport("stub", ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, llm.Transport("stub", err)
	}
	model := s.Model
	if model == "" {
		model = "claude-haiku-4-5"
	}
	return &llm.Completion{
		Text:         s.Reply,
		Model:        model,
		InputTokens:  int64(len(user) / 4),
		OutputTokens: int64(len(s.Reply) / 4),
	}, nil
}

// LastCall returns the most recent call, or false if there was none.
func (s *StubRequester) LastCall() (RequesterCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Calls) == 0 {
		return RequesterCall{}, false
	}
	return s.Calls[len(s.Calls)-1], true
}

// CallCount returns the number of Complete calls.
func (s *StubRequester) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}
