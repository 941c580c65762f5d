package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type memDoc struct {
	data    []byte
	seq     uint64
	created time.Time
	updated time.Time
}

type memState struct {
	cols map[string]map[string]memDoc
	seq  uint64
}

func (s *memState) clone() *memState {
	out := &memState{cols: make(map[string]map[string]memDoc, len(s.cols)), seq: s.seq}
	for name, docs := range s.cols {
		cp := make(map[string]memDoc, len(docs))
		for id, d := range docs {
			cp[id] = d
		}
		out.cols[name] = cp
	}
	return out
}

// Memory is an in-process Store for development and tests.
// Transactions hold a single lock and apply on a copy of the state.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: &memState{cols: map[string]map[string]memDoc{}}}
}

func (m *Memory) Create(ctx context.Context, collection, id string, data any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.create(collection, id, data)
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.get(collection, id)
}

func (m *Memory) List(ctx context.Context, collection string, filters ...Filter) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.list(collection, filters)
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.update(collection, id, fields)
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.delete(collection, id)
}

// RunInTx runs fn against a snapshot and swaps it in when fn succeeds.
func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(ctx, memTx{work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) Close() error { return nil }

type memTx struct{ s *memState }

func (t memTx) Create(ctx context.Context, collection, id string, data any) (string, error) {
	return t.s.create(collection, id, data)
}

func (t memTx) Get(ctx context.Context, collection, id string) (Doc, error) {
	return t.s.get(collection, id)
}

func (t memTx) List(ctx context.Context, collection string, filters ...Filter) ([]Doc, error) {
	return t.s.list(collection, filters)
}

func (t memTx) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return t.s.update(collection, id, fields)
}

func (t memTx) Delete(ctx context.Context, collection, id string) error {
	return t.s.delete(collection, id)
}

func (s *memState) create(collection, id string, data any) (string, error) {
	body, err := encode(data)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	docs, ok := s.cols[collection]
	if !ok {
		docs = map[string]memDoc{}
		s.cols[collection] = docs
	}
	if _, taken := docs[id]; taken {
		return "", errors.Wrapf(ErrExists, "%s/%s", collection, id)
	}
	s.seq++
	now := time.Now().UTC()
	docs[id] = memDoc{data: body, seq: s.seq, created: now, updated: now}
	return id, nil
}

func (s *memState) get(collection, id string) (Doc, error) {
	d, ok := s.cols[collection][id]
	if !ok {
		return Doc{}, errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	return toDoc(id, d), nil
}

func (s *memState) list(collection string, filters []Filter) ([]Doc, error) {
	for _, f := range filters {
		if err := f.validate(); err != nil {
			return nil, err
		}
	}
	out := make([]Doc, 0, len(s.cols[collection]))
	seqs := map[string]uint64{}
	for id, d := range s.cols[collection] {
		ok, err := matches(d.data, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, toDoc(id, d))
			seqs[id] = d.seq
		}
	}
	sort.Slice(out, func(i, j int) bool { return seqs[out[i].ID] < seqs[out[j].ID] })
	return out, nil
}

func (s *memState) update(collection, id string, fields map[string]any) error {
	d, ok := s.cols[collection][id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	body, err := merge(d.data, fields)
	if err != nil {
		return err
	}
	d.data = body
	d.updated = time.Now().UTC()
	s.cols[collection][id] = d
	return nil
}

func (s *memState) delete(collection, id string) error {
	if _, ok := s.cols[collection][id]; !ok {
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	delete(s.cols[collection], id)
	return nil
}

func toDoc(id string, d memDoc) Doc {
	data := make([]byte, len(d.data))
	copy(data, d.data)
	return Doc{ID: id, Data: data, CreatedAt: d.created, UpdatedAt: d.updated}
}
