package model

import (
	"sort"
	"strconv"
	"sync"
)

// Memory is an in-memory Store. Mutations notify subscribers.
type Memory struct {
	mu       sync.RWMutex
	elements map[string]*Element
	order    []string

	indexed     bool
	owners      map[string]string
	ownedRanges map[string]string

	subMu       sync.Mutex
	subscribers []func(Change)
}

// NewMemory creates a Memory holding elems.
func NewMemory(elems ...*Element) *Memory {
	m := &Memory{elements: make(map[string]*Element)}
	m.put(elems)
	return m
}

// Subscribe registers fn to be called after every Put or Delete.
func (m *Memory) Subscribe(fn func(Change)) {
	m.subMu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.subMu.Unlock()
}

func (m *Memory) notify(c Change) {
	m.subMu.Lock()
	subs := make([]func(Change), len(m.subscribers))
	copy(subs, m.subscribers)
	m.subMu.Unlock()
	for _, fn := range subs {
		fn(c)
	}
}

// Put inserts or replaces elements.
func (m *Memory) Put(elems ...*Element) {
	if len(elems) == 0 {
		return
	}
	ids := m.put(elems)
	m.notify(Change{Kind: ChangePut, IDs: ids})
}

func (m *Memory) put(elems []*Element) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(elems))
	for _, e := range elems {
		if e == nil || e.ID == "" {
			continue
		}
		if e.Metatype == MetatypeUnknown {
			e.Metatype = ParseMetatype(e.Type)
		}
		if e.Attributes == nil {
			e.Attributes = map[string]any{}
		}
		if _, exists := m.elements[e.ID]; !exists {
			m.order = append(m.order, e.ID)
		}
		m.elements[e.ID] = e
		ids = append(ids, e.ID)
	}
	m.indexed = false
	return ids
}

// Delete removes elements by id.
func (m *Memory) Delete(ids ...string) {
	m.mu.Lock()
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.elements[id]; ok {
			delete(m.elements, id)
			removed[id] = true
		}
	}
	if len(removed) > 0 {
		kept := m.order[:0]
		for _, id := range m.order {
			if !removed[id] {
				kept = append(kept, id)
			}
		}
		m.order = kept
		m.indexed = false
	}
	m.mu.Unlock()
	if len(removed) > 0 {
		m.notify(Change{Kind: ChangeDelete, IDs: ids})
	}
}

// Len returns the number of elements.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.elements)
}

// Element returns the element with the given id.
func (m *Memory) Element(id string) (*Element, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.elements[id]
	return e, ok
}

// Elements returns all elements in insertion order.
func (m *Memory) Elements() []*Element {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Element, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.elements[id])
	}
	return out
}

// ByMetatype returns the ids of all elements of the given metatype, sorted.
func (m *Memory) ByMetatype(mt Metatype) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, e := range m.elements {
		if e.Metatype == mt {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *Memory) Metatype(id string) Metatype {
	if e, ok := m.Element(id); ok {
		return e.Metatype
	}
	return MetatypeUnknown
}

func (m *Memory) IsAbstract(id string) bool {
	e, ok := m.Element(id)
	return ok && e.BoolAttr("isAbstract")
}

// Owner returns the owning element: the "owner" attribute when present,
// otherwise the source of a membership targeting id.
func (m *Memory) Owner(id string) (string, bool) {
	e, ok := m.Element(id)
	if !ok {
		return "", false
	}
	if o := e.StringAttr("owner"); o != "" {
		return o, true
	}
	m.ensureIndex()
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.owners[id]
	return o, ok
}

// IsInPackage reports whether packageID is id itself or one of its owners.
func (m *Memory) IsInPackage(id, packageID string) bool {
	seen := map[string]bool{}
	for cur := id; cur != "" && !seen[cur]; {
		if cur == packageID {
			return true
		}
		seen[cur] = true
		next, ok := m.Owner(cur)
		if !ok {
			break
		}
		cur = next
	}
	return false
}

// MultiplicityBound resolves the declared bound of id. Elements without a
// multiplicity are 1..1.
func (m *Memory) MultiplicityBound(id string, b Bound) int {
	e, ok := m.Element(id)
	if !ok {
		return 1
	}
	lo, hasLo, hi, hasHi := m.declaredRange(e)
	switch {
	case !hasLo && !hasHi:
		lo, hi = 1, 1
	case !hasLo:
		lo = hi
		if hi == Unbounded {
			lo = 0
		}
	case !hasHi:
		hi = lo
	}
	if b == Lower {
		return lo
	}
	return hi
}

func (m *Memory) declaredRange(e *Element) (lo int, hasLo bool, hi int, hasHi bool) {
	if ref := e.StringAttr("multiplicity"); ref != "" {
		if r, ok := m.Element(ref); ok {
			return m.rangeBounds(r)
		}
	}
	m.ensureIndex()
	m.mu.RLock()
	owned, ok := m.ownedRanges[e.ID]
	m.mu.RUnlock()
	if ok {
		if r, ok := m.Element(owned); ok {
			return m.rangeBounds(r)
		}
	}
	return m.rangeBounds(e)
}

func (m *Memory) rangeBounds(r *Element) (lo int, hasLo bool, hi int, hasHi bool) {
	if v, ok := r.Attr("lowerBound"); ok {
		lo, hasLo = m.boundValue(v)
	}
	if v, ok := r.Attr("upperBound"); ok {
		hi, hasHi = m.boundValue(v)
	}
	if hasLo && lo == Unbounded {
		lo = 0
	}
	return
}

// boundValue accepts numbers, "*", numeric strings and references to
// literal elements.
func (m *Memory) boundValue(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if x < 0 {
			return Unbounded, true
		}
		return int(x), true
	case int:
		if x < 0 {
			return Unbounded, true
		}
		return x, true
	case string:
		if x == "*" {
			return Unbounded, true
		}
		if n, err := strconv.Atoi(x); err == nil {
			return m.boundValue(n)
		}
		lit, ok := m.Element(x)
		if !ok {
			return 0, false
		}
		if lit.Metatype == LiteralInfinity {
			return Unbounded, true
		}
		if f, ok := lit.Value().(float64); ok {
			return m.boundValue(f)
		}
	}
	return 0, false
}

func (m *Memory) ensureIndex() {
	m.mu.RLock()
	ready := m.indexed
	m.mu.RUnlock()
	if ready {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexed {
		return
	}
	m.owners = make(map[string]string)
	m.ownedRanges = make(map[string]string)
	for _, id := range m.order {
		e := m.elements[id]
		if e.Metatype.IsMembership() && len(e.Source) > 0 {
			for _, t := range e.Target {
				if _, taken := m.owners[t]; !taken {
					m.owners[t] = e.Source[0]
				}
			}
		}
	}
	for _, id := range m.order {
		e := m.elements[id]
		if e.Metatype != MultiplicityRange {
			continue
		}
		owner := e.StringAttr("owner")
		if owner == "" {
			owner = m.owners[id]
		}
		if owner != "" {
			m.ownedRanges[owner] = id
		}
	}
	m.indexed = true
}
