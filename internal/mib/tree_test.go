package mib

import (
	"testing"

	"github.com/geekxflood/proteus/internal/oid"
)

func buildTree(t *testing.T) *Tree {
	t.Helper()

	tree, err := NewTree(BuiltinEntries())
	if err != nil {
		t.Fatalf("Failed to build tree: %v", err)
	}

	return tree
}

func TestNewTreeRejectsDuplicates(t *testing.T) {
	entries := []Entry{
		{OID: oid.MustParse("1.3.6.1"), Node: Node{Name: "a", Type: TypeInteger, Access: ReadOnly, Value: 1, Leaf: true}},
		{OID: oid.MustParse("1.3.6.1"), Node: Node{Name: "b", Type: TypeInteger, Access: ReadOnly, Value: 2, Leaf: true}},
	}

	if _, err := NewTree(entries); err == nil {
		t.Error("Expected error for duplicate OIDs")
	}
}

func TestNewTreeRejectsTypeMismatch(t *testing.T) {
	entries := []Entry{
		{OID: oid.MustParse("1.3.6.1"), Node: Node{Name: "bad", Type: TypeInteger, Access: ReadOnly, Value: "text", Leaf: true}},
	}

	if _, err := NewTree(entries); err == nil {
		t.Error("Expected error for value not matching declared type")
	}
}

func TestNewTreeRejectsValuedBranch(t *testing.T) {
	entries := []Entry{
		{OID: oid.MustParse("1.3.6.1"), Node: Node{Name: "branch", Access: NotAccessible, Value: 1}},
	}

	if _, err := NewTree(entries); err == nil {
		t.Error("Expected error for not-accessible node carrying a value")
	}
}

func TestGet(t *testing.T) {
	tree := buildTree(t)

	node, err := tree.Get(oid.MustParse(SysDescrOID))
	if err != nil {
		t.Fatalf("Failed to get sysDescr: %v", err)
	}

	if node.Name != "sysDescr" {
		t.Errorf("Expected sysDescr, got %s", node.Name)
	}

	if node.Type != TypeOctetString {
		t.Errorf("Expected OCTET STRING, got %s", node.Type)
	}
}

func TestGetAbsent(t *testing.T) {
	tree := buildTree(t)

	if _, err := tree.Get(oid.MustParse("1.2.3.4.5")); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestNextAfter(t *testing.T) {
	tree := buildTree(t)

	// The successor of the system branch is sysDescr, a child: next-OID
	// comes from tree order, not arithmetic on the final arc.
	entry, ok := tree.NextAfter(oid.MustParse("1.3.6.1.2.1.1"))
	if !ok {
		t.Fatal("Expected a successor")
	}

	if entry.OID.String() != SysDescrOID {
		t.Errorf("Expected %s, got %s", SysDescrOID, entry.OID.String())
	}
}

func TestNextAfterAbsentCursor(t *testing.T) {
	tree := buildTree(t)

	// Successor lookup from an OID not stored in the tree.
	entry, ok := tree.NextAfter(oid.MustParse("1.3.6.1.2.1.1.1.5"))
	if !ok {
		t.Fatal("Expected a successor")
	}

	if entry.OID.String() != SysObjectIDOID {
		t.Errorf("Expected %s, got %s", SysObjectIDOID, entry.OID.String())
	}
}

func TestNextAfterEnd(t *testing.T) {
	tree := buildTree(t)

	if _, ok := tree.NextAfter(oid.MustParse("9.9.9")); ok {
		t.Error("Expected no successor past the last stored OID")
	}
}

func TestNextAfterIsMonotonic(t *testing.T) {
	tree := buildTree(t)

	cursor := oid.MustParse("0")
	var count int

	for {
		entry, ok := tree.NextAfter(cursor)
		if !ok {
			break
		}

		if oid.Compare(entry.OID, cursor) <= 0 {
			t.Fatalf("Successor %s is not greater than cursor %s", entry.OID, cursor)
		}

		cursor = entry.OID
		count++
	}

	if count != tree.Len() {
		t.Errorf("Chained successor lookups visited %d of %d nodes", count, tree.Len())
	}
}

func TestSetValue(t *testing.T) {
	tree := buildTree(t)
	contact := oid.MustParse(SysContactOID)

	if err := tree.SetValue(contact, "ops@example.com"); err != nil {
		t.Fatalf("Failed to set read-write leaf: %v", err)
	}

	node, err := tree.Get(contact)
	if err != nil {
		t.Fatalf("Failed to re-read node: %v", err)
	}

	if node.Value != "ops@example.com" {
		t.Errorf("Expected new value to be visible, got %v", node.Value)
	}
}

func TestSetValueReadOnly(t *testing.T) {
	tree := buildTree(t)
	descr := oid.MustParse(SysDescrOID)

	before, _ := tree.Get(descr)

	if err := tree.SetValue(descr, "changed"); err != ErrAccessDenied {
		t.Errorf("Expected ErrAccessDenied, got %v", err)
	}

	after, _ := tree.Get(descr)
	if after.Value != before.Value {
		t.Error("Failed set mutated the tree")
	}
}

func TestSetValueTypeMismatch(t *testing.T) {
	tree := buildTree(t)
	contact := oid.MustParse(SysContactOID)

	before, _ := tree.Get(contact)

	err := tree.SetValue(contact, 42)
	if err == nil {
		t.Fatal("Expected type mismatch error")
	}

	after, _ := tree.Get(contact)
	if after.Value != before.Value {
		t.Error("Failed set mutated the tree")
	}
}

func TestSetValueAbsent(t *testing.T) {
	tree := buildTree(t)

	if err := tree.SetValue(oid.MustParse("1.2.3"), "x"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateValueBypassesAccess(t *testing.T) {
	tree := buildTree(t)
	uptime := oid.MustParse(SysUpTimeOID)

	// sysUpTime is read-only for SET but writable through the internal
	// update path.
	if err := tree.SetValue(uptime, uint32(100)); err != ErrAccessDenied {
		t.Errorf("Expected ErrAccessDenied from SetValue, got %v", err)
	}

	if err := tree.UpdateValue(uptime, uint32(100)); err != nil {
		t.Fatalf("UpdateValue failed: %v", err)
	}

	node, _ := tree.Get(uptime)
	if node.Value != uint32(100) {
		t.Errorf("Expected 100, got %v", node.Value)
	}
}

func TestSubtree(t *testing.T) {
	tree := buildTree(t)

	var visited []string
	tree.Subtree(oid.MustParse("1.3.6.1.2.1.1"), func(entry Entry) bool {
		visited = append(visited, entry.OID.String())
		return true
	})

	want := []string{
		SysDescrOID,
		SysObjectIDOID,
		SysUpTimeOID,
		SysContactOID,
		SysNameOID,
		SysLocationOID,
	}

	if len(visited) != len(want) {
		t.Fatalf("Expected %d entries, got %d: %v", len(want), len(visited), visited)
	}

	for i, w := range want {
		if visited[i] != w {
			t.Errorf("Position %d: got %s, want %s", i, visited[i], w)
		}
	}
}

func TestSubtreeExcludesRoot(t *testing.T) {
	tree := buildTree(t)
	root := oid.MustParse(SysDescrOID)

	tree.Subtree(root, func(entry Entry) bool {
		if entry.OID.Equal(root) {
			t.Error("Subtree enumeration included the root itself")
		}
		return true
	})
}

func TestSubtreeStopsEarly(t *testing.T) {
	tree := buildTree(t)

	var count int
	tree.Subtree(oid.MustParse("1.3.6.1.2.1.1"), func(entry Entry) bool {
		count++
		return count < 2
	})

	if count != 2 {
		t.Errorf("Expected enumeration to stop after 2 entries, got %d", count)
	}
}

func TestFirst(t *testing.T) {
	tree := buildTree(t)

	entry, ok := tree.First()
	if !ok {
		t.Fatal("Expected a first entry")
	}

	if entry.OID.String() != "1.3.6.1.2.1.1" {
		t.Errorf("Expected system branch first, got %s", entry.OID.String())
	}
}

func TestCheckValue(t *testing.T) {
	tests := []struct {
		t     ValueType
		v     any
		valid bool
	}{
		{TypeInteger, 5, true},
		{TypeInteger, "5", false},
		{TypeOctetString, "text", true},
		{TypeOctetString, 5, false},
		{TypeObjectIdentifier, "1.3.6.1", true},
		{TypeObjectIdentifier, "not an oid", false},
		{TypeTimeTicks, uint32(10), true},
		{TypeTimeTicks, 10, false},
		{TypeCounter32, uint32(0), true},
		{TypeNull, nil, true},
		{TypeNull, 0, false},
	}

	for _, tt := range tests {
		err := CheckValue(tt.t, tt.v)
		if tt.valid && err != nil {
			t.Errorf("CheckValue(%s, %v): unexpected error %v", tt.t, tt.v, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("CheckValue(%s, %v): expected error", tt.t, tt.v)
		}
	}
}
