package entitystore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

// CodeEntityNotFound is the catalog response code for a missing entity
const CodeEntityNotFound = 1101

// Call records one client call made against a Memory store
type Call struct {
	Op       Op
	Category topology.Category
	ID       int64
	Body     *Entity
}

type faultKey struct {
	op       Op
	category topology.Category
	id       int64
}

// Memory is an in-process Client. It assigns ids and monotonic timestamps
// like the catalog does, records every call, and can be told to fail
// specific calls.
type Memory struct {
	mu       sync.Mutex
	scope    Scope
	entities map[topology.Category]map[int64]*Entity
	order    map[topology.Category][]int64
	bundles  map[string][]*Bundle
	meta     *MetaInfoEnvelope
	nextID   int64
	lastTS   int64
	calls    []Call
	faults   map[faultKey]error
	hook     func(Call)
}

// NewMemory creates an empty store bound to scope
func NewMemory(scope Scope) *Memory {
	return &Memory{
		scope:    scope,
		entities: map[topology.Category]map[int64]*Entity{},
		order:    map[topology.Category][]int64{},
		bundles:  map[string][]*Bundle{},
		faults:   map[faultKey]error{},
	}
}

// Scope returns the topology version the store is bound to
func (m *Memory) Scope() Scope {
	return m.scope
}

// Fail makes calls matching (op, category, id) return err. An id of 0
// matches every id; an empty category matches every category.
func (m *Memory) Fail(op Op, category topology.Category, id int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[faultKey{op, category, id}] = err
}

// Reject makes matching calls return a store rejection carrying message
func (m *Memory) Reject(op Op, category topology.Category, id int64, message string) {
	m.Fail(op, category, id, &errors.RemoteError{
		Code:     1000,
		Message:  message,
		Status:   500,
		Category: string(category),
		Op:       string(op),
	})
}

// ClearFaults removes every injected failure
func (m *Memory) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = map[faultKey]error{}
}

// OnCall registers fn to run before every call is served. fn runs outside
// the store lock and may block.
func (m *Memory) OnCall(fn func(Call)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// Calls returns the calls served so far
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallsFor returns the calls matching op and category
func (m *Memory) CallsFor(op Op, category topology.Category) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Op == op && c.Category == category {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Seed stores e as is, keeping its id. A zero id is assigned. It returns
// the stored copy.
func (m *Memory) Seed(category topology.Category, e *Entity) *Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := e.Clone()
	if stored.ID == 0 {
		m.nextID++
		stored.ID = m.nextID
	} else if stored.ID > m.nextID {
		m.nextID = stored.ID
	}
	if stored.Timestamp == 0 {
		stored.Timestamp = m.tick()
	}
	m.putLocked(category, stored)
	return stored.Clone()
}

// SetBundles replaces the bundles of a bundle type
func (m *Memory) SetBundles(bundleType string, bundles ...*Bundle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[bundleType] = bundles
}

// Entity returns the stored entity without recording a call
func (m *Memory) Entity(category topology.Category, id int64) (*Entity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[category][id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Count returns the number of entities in category
func (m *Memory) Count(category topology.Category) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities[category])
}

// Meta returns the stored metadata envelope without recording a call
func (m *Memory) Meta() *MetaInfoEnvelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta == nil {
		return nil
	}
	cp := *m.meta
	return &cp
}

func (m *Memory) tick() int64 {
	ts := time.Now().UnixMilli()
	if ts <= m.lastTS {
		ts = m.lastTS + 1
	}
	m.lastTS = ts
	return ts
}

func (m *Memory) putLocked(category topology.Category, e *Entity) {
	bucket, ok := m.entities[category]
	if !ok {
		bucket = map[int64]*Entity{}
		m.entities[category] = bucket
	}
	if _, exists := bucket[e.ID]; !exists {
		m.order[category] = append(m.order[category], e.ID)
	}
	bucket[e.ID] = e
}

// begin records the call, runs the hook and returns any injected fault
func (m *Memory) begin(ctx context.Context, c Call) error {
	m.mu.Lock()
	if c.Body != nil {
		c.Body = c.Body.Clone()
	}
	m.calls = append(m.calls, c)
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		hook(c)
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "Memory", string(c.Op), "serve call")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range []faultKey{
		{c.Op, c.Category, c.ID},
		{c.Op, c.Category, 0},
		{c.Op, "", 0},
	} {
		if err, ok := m.faults[k]; ok {
			return err
		}
	}
	return nil
}

func notFound(op Op, category topology.Category, id int64) error {
	return &errors.RemoteError{
		Code:     CodeEntityNotFound,
		Message:  fmt.Sprintf("Entity with id [%d] not found", id),
		Status:   404,
		Category: string(category),
		Op:       string(op),
	}
}

// CreateNode stores body under a new id
func (m *Memory) CreateNode(ctx context.Context, category topology.Category, body *Entity) (*Entity, error) {
	if err := m.begin(ctx, Call{Op: OpCreate, Category: category, Body: body}); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Memory", "CreateNode", "body cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := body.Clone()
	m.nextID++
	stored.ID = m.nextID
	stored.Timestamp = m.tick()
	m.putLocked(category, stored)
	return stored.Clone(), nil
}

// GetNode returns a copy of the entity
func (m *Memory) GetNode(ctx context.Context, category topology.Category, id int64) (*Entity, error) {
	if err := m.begin(ctx, Call{Op: OpGet, Category: category, ID: id}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[category][id]
	if !ok {
		return nil, notFound(OpGet, category, id)
	}
	return e.Clone(), nil
}

// ListNodes returns copies of every entity in category in creation order
func (m *Memory) ListNodes(ctx context.Context, category topology.Category) ([]*Entity, error) {
	if err := m.begin(ctx, Call{Op: OpList, Category: category}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Entity, 0, len(m.order[category]))
	for _, id := range m.order[category] {
		if e, ok := m.entities[category][id]; ok {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// UpdateNode replaces the entity, stamping a new timestamp
func (m *Memory) UpdateNode(ctx context.Context, category topology.Category, id int64, body *Entity) (*Entity, error) {
	if err := m.begin(ctx, Call{Op: OpUpdate, Category: category, ID: id, Body: body}); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Memory", "UpdateNode", "body cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[category][id]; !ok {
		return nil, notFound(OpUpdate, category, id)
	}
	stored := body.Clone()
	stored.ID = id
	stored.Timestamp = m.tick()
	m.putLocked(category, stored)
	return stored.Clone(), nil
}

// DeleteNode removes the entity and returns it
func (m *Memory) DeleteNode(ctx context.Context, category topology.Category, id int64) (*Entity, error) {
	if err := m.begin(ctx, Call{Op: OpDelete, Category: category, ID: id}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[category][id]
	if !ok {
		return nil, notFound(OpDelete, category, id)
	}
	delete(m.entities[category], id)
	m.order[category] = slices.DeleteFunc(m.order[category], func(x int64) bool { return x == id })
	e.Timestamp = m.tick()
	return e.Clone(), nil
}

// PutMetaInfo stores the metadata envelope
func (m *Memory) PutMetaInfo(ctx context.Context, meta *MetaInfoEnvelope) (*MetaInfoEnvelope, error) {
	if err := m.begin(ctx, Call{Op: OpPutMeta, Category: "metadata"}); err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Memory", "PutMetaInfo", "metadata cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *meta
	if stored.TopologyID == 0 {
		stored.TopologyID = m.scope.TopologyID
	}
	stored.VersionID = m.scope.VersionID
	stored.Timestamp = m.tick()
	m.meta = &stored
	out := stored
	return &out, nil
}

// GetMetaInfo returns the stored metadata envelope. A topology without
// metadata yields an empty envelope.
func (m *Memory) GetMetaInfo(ctx context.Context) (*MetaInfoEnvelope, error) {
	if err := m.begin(ctx, Call{Op: OpGetMeta, Category: "metadata"}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta == nil {
		return &MetaInfoEnvelope{TopologyID: m.scope.TopologyID, VersionID: m.scope.VersionID}, nil
	}
	out := *m.meta
	return &out, nil
}

// ListBundles returns the bundles registered for bundleType
func (m *Memory) ListBundles(ctx context.Context, bundleType string) ([]*Bundle, error) {
	if err := m.begin(ctx, Call{Op: OpListBundles, Category: topology.Category(bundleType)}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.bundles[bundleType]), nil
}
