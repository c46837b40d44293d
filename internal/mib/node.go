// Package mib provides the managed object tree: an ordered mapping from
// OID to node supporting exact lookup, strict-successor lookup, and
// subtree enumeration. The tree is built once at startup from a MIB
// definition source; structure is fixed after load and only leaf values
// change afterwards.
package mib

import (
	"fmt"

	"github.com/geekxflood/proteus/internal/oid"
)

// ValueType identifies the declared SNMP syntax of a node's value.
type ValueType int

// Supported value types.
const (
	TypeInteger ValueType = iota
	TypeOctetString
	TypeObjectIdentifier
	TypeTimeTicks
	TypeCounter32
	TypeNull
)

// String returns the conventional SNMP name of the type.
func (t ValueType) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeOctetString:
		return "OCTET STRING"
	case TypeObjectIdentifier:
		return "OBJECT IDENTIFIER"
	case TypeTimeTicks:
		return "TimeTicks"
	case TypeCounter32:
		return "Counter32"
	case TypeNull:
		return "NULL"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// ParseValueType converts a definition-file type name into a ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "INTEGER", "integer":
		return TypeInteger, nil
	case "OCTET STRING", "string", "octetstring":
		return TypeOctetString, nil
	case "OBJECT IDENTIFIER", "oid":
		return TypeObjectIdentifier, nil
	case "TimeTicks", "timeticks":
		return TypeTimeTicks, nil
	case "Counter32", "counter32":
		return TypeCounter32, nil
	case "NULL", "null":
		return TypeNull, nil
	default:
		return 0, fmt.Errorf("unknown value type %q", s)
	}
}

// Access identifies the access policy of a node.
type Access int

// Access policies. Internal (non-leaf) nodes are always NotAccessible.
const (
	ReadOnly Access = iota
	ReadWrite
	NotAccessible
)

// String returns the conventional MIB access keyword.
func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	case NotAccessible:
		return "not-accessible"
	default:
		return fmt.Sprintf("Unknown(%d)", int(a))
	}
}

// ParseAccess converts a definition-file access keyword into an Access.
func ParseAccess(s string) (Access, error) {
	switch s {
	case "read-only":
		return ReadOnly, nil
	case "read-write":
		return ReadWrite, nil
	case "not-accessible":
		return NotAccessible, nil
	default:
		return 0, fmt.Errorf("unknown access %q", s)
	}
}

// Node is a single entry in the tree: either a leaf carrying a typed
// value, or an internal node that bounds a subtree and is never
// directly gettable or settable.
type Node struct {
	Name        string
	Description string
	Type        ValueType
	Access      Access
	Value       any
	Leaf        bool
}

// CheckValue verifies that a runtime value matches the declared type.
// Integer values are int, OctetString and ObjectIdentifier are string,
// TimeTicks and Counter32 are uint32, Null is nil.
func CheckValue(t ValueType, v any) error {
	switch t {
	case TypeInteger:
		if _, ok := v.(int); !ok {
			return fmt.Errorf("INTEGER value must be int, got %T", v)
		}
	case TypeOctetString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("OCTET STRING value must be string, got %T", v)
		}
	case TypeObjectIdentifier:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("OBJECT IDENTIFIER value must be a dotted-decimal string, got %T", v)
		}
		if _, err := oid.Parse(s); err != nil {
			return fmt.Errorf("OBJECT IDENTIFIER value: %w", err)
		}
	case TypeTimeTicks, TypeCounter32:
		if _, ok := v.(uint32); !ok {
			return fmt.Errorf("%s value must be uint32, got %T", t, v)
		}
	case TypeNull:
		if v != nil {
			return fmt.Errorf("NULL value must be nil, got %T", v)
		}
	default:
		return fmt.Errorf("unknown value type %d", int(t))
	}

	return nil
}

// validate checks the node invariants enforced at load time: a leaf's
// stored value must match its declared type, and a not-accessible node
// carries no value.
func (n *Node) validate() error {
	if n.Access == NotAccessible {
		if n.Value != nil {
			return fmt.Errorf("not-accessible node %q carries a value", n.Name)
		}
		return nil
	}

	if !n.Leaf {
		return fmt.Errorf("internal node %q must be not-accessible", n.Name)
	}

	if err := CheckValue(n.Type, n.Value); err != nil {
		return fmt.Errorf("node %q: %w", n.Name, err)
	}

	return nil
}
