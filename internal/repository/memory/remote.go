// Package memory is an in-process RemoteDataSource used by tests and the sandbox CLI mode.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/model"
	"github.com/and161185/growing-together/internal/repository"
)

var _ repository.RemoteDataSource = (*Remote)(nil)

// Hook may fail a call before it touches the tables.
type Hook func(op string, kind model.Kind, id uuid.UUID) error

// Remote keeps one map per kind and fills joined fields on read like a LEFT JOIN.
type Remote struct {
	mu     sync.Mutex
	tables map[model.Kind]map[uuid.UUID]model.Row
	down   bool
	hook   Hook
	calls  map[string]int
	now    func() time.Time
}

// New returns an empty remote.
func New() *Remote {
	return &Remote{
		tables: map[model.Kind]map[uuid.UUID]model.Row{},
		calls:  map[string]int{},
		now:    time.Now,
	}
}

// SetDown makes every call fail as unavailable until reset.
func (m *Remote) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// SetHook installs h; nil removes it.
func (m *Remote) SetHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = h
}

// Calls returns how many times op ran against the tables.
func (m *Remote) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Ping fails while the remote is down.
func (m *Remote) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return &errs.RemoteError{Op: "ping", Err: fmt.Errorf("memory remote is down")}
	}
	return nil
}

func (m *Remote) enter(op string, spec *model.KindSpec, id uuid.UUID) error {
	if m.down {
		return &errs.RemoteError{Op: op, Table: spec.RemoteTable, Err: fmt.Errorf("memory remote is down")}
	}
	if m.hook != nil {
		if err := m.hook(op, spec.Kind, id); err != nil {
			return err
		}
	}
	m.calls[op]++
	return nil
}

func (m *Remote) table(k model.Kind) map[uuid.UUID]model.Row {
	t, ok := m.tables[k]
	if !ok {
		t = map[uuid.UUID]model.Row{}
		m.tables[k] = t
	}
	return t
}

// joined returns a copy of row with joined fields resolved from the target table.
func (m *Remote) joined(spec *model.KindSpec, row model.Row) model.Row {
	out := row.Clone()
	j := spec.Join
	if j == nil {
		return out
	}
	target := m.tables[j.Target][out.UUID(j.On)]
	for _, f := range j.Fields {
		if target == nil {
			out[f.Name] = nil
			continue
		}
		out[f.Name] = target[f.Source]
	}
	return out
}

// Select returns rows matching f.
func (m *Remote) Select(_ context.Context, spec *model.KindSpec, f model.Filter) ([]model.Row, error) {
	f.Where = slices.Clone(f.Where)
	if err := f.Validate(spec); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("select", spec, uuid.Nil); err != nil {
		return nil, err
	}
	rows := make([]model.Row, 0, len(m.tables[spec.Kind]))
	for _, r := range m.tables[spec.Kind] {
		rows = append(rows, m.joined(spec, r))
	}
	return f.Apply(rows, spec.DefaultOrder), nil
}

// Get returns one row by id.
func (m *Remote) Get(_ context.Context, spec *model.KindSpec, id uuid.UUID) (model.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("get", spec, id); err != nil {
		return nil, err
	}
	r, ok := m.tables[spec.Kind][id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return m.joined(spec, r), nil
}

// Insert stores row by id, overwriting an existing row with the same id.
func (m *Remote) Insert(_ context.Context, spec *model.KindSpec, row model.Row) (model.Row, error) {
	w := spec.Writable(row)
	id := w.ID()
	if id.IsNil() {
		return nil, fmt.Errorf("%w: insert %s without id", errs.ErrInvalid, spec.Kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("insert", spec, id); err != nil {
		return nil, err
	}
	now := m.now().UTC()
	if spec.StampCreated && w["created_at"] == nil {
		w["created_at"] = now
	}
	if spec.StampUpdated && w["updated_at"] == nil {
		w["updated_at"] = now
	}
	if err := spec.ValidateRow(w); err != nil {
		return nil, &errs.RemoteError{Op: "insert", Table: spec.RemoteTable, Rejected: true, Err: err}
	}
	m.table(spec.Kind)[id] = w.Clone()
	return m.joined(spec, w), nil
}

// Update merges patch into the row with id.
func (m *Remote) Update(_ context.Context, spec *model.KindSpec, id uuid.UUID, patch model.Row) (model.Row, error) {
	w := spec.Writable(patch)
	delete(w, "id")
	if err := spec.ValidatePatch(w); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("update", spec, id); err != nil {
		return nil, err
	}
	cur, ok := m.tables[spec.Kind][id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	next := cur.Merge(w)
	m.tables[spec.Kind][id] = next
	return m.joined(spec, next), nil
}

// Delete removes the row with id.
func (m *Remote) Delete(_ context.Context, spec *model.KindSpec, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete", spec, id); err != nil {
		return err
	}
	if _, ok := m.tables[spec.Kind][id]; !ok {
		return errs.ErrNotFound
	}
	delete(m.tables[spec.Kind], id)
	return nil
}

// Put seeds a row directly, bypassing hooks and counters.
func (m *Remote) Put(spec *model.KindSpec, row model.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table(spec.Kind)[row.ID()] = spec.Writable(row)
}

// Len returns the number of stored rows of kind.
func (m *Remote) Len(kind model.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[kind])
}
