package mib

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/geekxflood/proteus/internal/oid"
)

// Errors returned by tree operations. They are expected outcomes of
// well-formed requests and are mapped to protocol error kinds by the
// operation engine.
var (
	ErrNotFound     = errors.New("oid not found")
	ErrAccessDenied = errors.New("access denied")
	ErrTypeMismatch = errors.New("type mismatch")
)

// Tree is an ordered mapping from OID to Node. Retrieval order is
// determined by OID comparison, not insertion order. The tree is the
// single shared mutable resource of the engine: lookups and traversals
// take the read lock, value mutations take the write lock, so readers
// never observe a half-written value. A walk is a sequence of
// independent successor lookups, not an atomic snapshot; a SET landing
// mid-walk may or may not be visible to the not-yet-reached part of
// the walk, matching real-device GETNEXT semantics.
type Tree struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	// keys holds every stored OID in ascending order and is the basis
	// for successor lookup. Structure is fixed after load, so keys is
	// only rebuilt during construction.
	keys []oid.OID
}

// Entry pairs a stored OID with a copy of its node.
type Entry struct {
	OID  oid.OID
	Node Node
}

// NewTree builds a tree from a set of definitions. Duplicate OIDs and
// nodes whose stored value does not match the declared type are
// configuration errors and fail construction; the engine treats them
// as fatal at load time.
func NewTree(entries []Entry) (*Tree, error) {
	t := &Tree{nodes: make(map[string]*Node, len(entries))}

	for i := range entries {
		e := &entries[i]
		if len(e.OID) == 0 {
			return nil, fmt.Errorf("entry %d: empty OID", i)
		}

		key := e.OID.String()
		if _, dup := t.nodes[key]; dup {
			return nil, fmt.Errorf("duplicate OID %s", key)
		}

		node := e.Node
		if err := node.validate(); err != nil {
			return nil, fmt.Errorf("oid %s: %w", key, err)
		}

		t.nodes[key] = &node
		t.keys = append(t.keys, e.OID.Clone())
	}

	sort.Slice(t.keys, func(i, j int) bool {
		return oid.Compare(t.keys[i], t.keys[j]) < 0
	})

	return t, nil
}

// Len returns the number of stored nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys)
}

// Get returns a copy of the node stored at exactly the given OID.
func (t *Tree) Get(o oid.OID) (Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[o.String()]
	if !ok {
		return Node{}, ErrNotFound
	}

	return *node, nil
}

// NextAfter returns the entry whose OID is the smallest stored OID
// strictly greater than the given one. The given OID does not need to
// be present: successor lookup works identically for stored and
// in-between OIDs. The second return value is false at end of tree.
func (t *Tree) NextAfter(o oid.OID) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := sort.Search(len(t.keys), func(i int) bool {
		return oid.Compare(t.keys[i], o) > 0
	})
	if idx == len(t.keys) {
		return Entry{}, false
	}

	key := t.keys[idx]
	return Entry{OID: key.Clone(), Node: *t.nodes[key.String()]}, true
}

// SetValue replaces the value of a read-write leaf. It fails with
// ErrNotFound for absent OIDs, ErrAccessDenied for nodes that are not
// read-write, and ErrTypeMismatch when the new value's runtime type
// does not match the node's declared type. A failed SetValue leaves
// the tree unchanged.
func (t *Tree) SetValue(o oid.OID, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[o.String()]
	if !ok {
		return ErrNotFound
	}

	if node.Access != ReadWrite {
		return ErrAccessDenied
	}

	if err := CheckValue(node.Type, value); err != nil {
		return fmt.Errorf("%w: %s", ErrTypeMismatch, err)
	}

	node.Value = value

	return nil
}

// UpdateValue replaces a leaf value regardless of access policy. It is
// the path for internal agent logic such as uptime ticks and counter
// updates; declared-type consistency is still enforced.
func (t *Tree) UpdateValue(o oid.OID, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[o.String()]
	if !ok {
		return ErrNotFound
	}

	if !node.Leaf {
		return ErrAccessDenied
	}

	if err := CheckValue(node.Type, value); err != nil {
		return fmt.Errorf("%w: %s", ErrTypeMismatch, err)
	}

	node.Value = value

	return nil
}

// Subtree calls fn for every stored entry within the root's subtree,
// in ascending OID order, starting strictly after the root itself.
// Enumeration stops early when fn returns false. Each step is an
// independent successor lookup, so the weak-consistency note on Tree
// applies.
func (t *Tree) Subtree(root oid.OID, fn func(Entry) bool) {
	cursor := root

	for {
		entry, ok := t.NextAfter(cursor)
		if !ok || !root.IsPrefixOf(entry.OID) {
			return
		}

		if !fn(entry) {
			return
		}

		cursor = entry.OID
	}
}

// First returns the smallest stored entry, used by validation tooling.
func (t *Tree) First() (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.keys) == 0 {
		return Entry{}, false
	}

	key := t.keys[0]
	return Entry{OID: key.Clone(), Node: *t.nodes[key.String()]}, true
}
