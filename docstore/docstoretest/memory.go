// Package docstoretest provides an in-memory docstore.Store for tests, with
// call recording and fault injection.
package docstoretest

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"

	"attractions/docstore"
)

// Operation names used in Call.Op and for fault injection.
const (
	OpListAll = "ListAll"
	OpAdd     = "Add"
	OpUpdate  = "Update"
	OpDelete  = "Delete"
)

// Call records one store operation.
type Call struct {
	Op   string
	Path string
}

// Memory is a docstore.Store held in memory.  Listings are ordered by
// document ID, like Firestore.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	nextID      int
	calls       []Call
	failures    map[Call]error
	hooks       map[Call]func()
}

var _ docstore.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		collections: map[string]map[string]map[string]any{},
		failures:    map[Call]error{},
		hooks:       map[Call]func(){},
	}
}

// Seed stores a document with a fixed ID without recording a call.
func (m *Memory) Seed(collectionPath, id string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(collectionPath, id, fields)
}

// FailOn makes every op on p return err until cleared with a nil err.
func (m *Memory) FailOn(op, p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, Call{op, p})
		return
	}
	m.failures[Call{op, p}] = err
}

// BeforeCall runs fn (outside the store lock) whenever op is invoked on p,
// before the op takes effect.  Tests use it to block or observe a call.
func (m *Memory) BeforeCall(op, p string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[Call{op, p}] = fn
}

// Calls returns every recorded call in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Writes returns the recorded Add, Update and Delete calls.
func (m *Memory) Writes() []Call {
	writes := []Call{}
	for _, c := range m.Calls() {
		if c.Op != OpListAll {
			writes = append(writes, c)
		}
	}
	return writes
}

// ResetCalls forgets the recorded calls.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *Memory) ListAll(ctx context.Context, collectionPath string) ([]docstore.Document, error) {
	if err := m.enter(ctx, OpListAll, collectionPath); err != nil {
		return nil, err
	}
	if err := docstore.CheckCollectionPath(collectionPath); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collections[collectionPath]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, docstore.Document{ID: id, Fields: copyFields(coll[id])})
	}
	return docs, nil
}

func (m *Memory) Add(ctx context.Context, collectionPath string, fields map[string]any) (string, error) {
	if err := m.enter(ctx, OpAdd, collectionPath); err != nil {
		return "", err
	}
	if err := docstore.CheckCollectionPath(collectionPath); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := fmt.Sprintf("doc-%04d", m.nextID)
	m.put(collectionPath, id, fields)
	return id, nil
}

func (m *Memory) Update(ctx context.Context, docPath string, fields map[string]any) error {
	if err := m.enter(ctx, OpUpdate, docPath); err != nil {
		return err
	}
	if err := docstore.CheckDocumentPath(docPath); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	collectionPath, id := path.Split(docPath)
	existing, ok := m.collections[path.Clean(collectionPath)][id]
	if !ok {
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, docPath)
	}
	for k, v := range fields {
		existing[k] = v
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, docPath string) error {
	if err := m.enter(ctx, OpDelete, docPath); err != nil {
		return err
	}
	if err := docstore.CheckDocumentPath(docPath); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	collectionPath, id := path.Split(docPath)
	delete(m.collections[path.Clean(collectionPath)], id)
	return nil
}

// enter records the call, runs any hook, and returns any injected failure.
func (m *Memory) enter(ctx context.Context, op, p string) error {
	key := Call{op, p}

	m.mu.Lock()
	m.calls = append(m.calls, key)
	hook := m.hooks[key]
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[key]
}

func (m *Memory) put(collectionPath, id string, fields map[string]any) {
	coll, ok := m.collections[collectionPath]
	if !ok {
		coll = map[string]map[string]any{}
		m.collections[collectionPath] = coll
	}
	coll[id] = copyFields(fields)
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
