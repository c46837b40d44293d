// Package engine implements the SNMP primitives (GET, SET, GETNEXT,
// WALK) as stateless operations over a managed object tree. Protocol
// and transport failures are returned as result data, never as raised
// errors, so one device's failure cannot disrupt operations against
// others.
package engine

import "github.com/geekxflood/proteus/internal/mib"

// FailureKind classifies an unsuccessful operation outcome.
type FailureKind string

// Protocol failure kinds are expected outcomes of a well-formed
// request against tree state. Transport failure kinds surface from the
// network layer beneath remote operations.
const (
	NoSuchObject      FailureKind = "noSuchObject"
	NotWritable       FailureKind = "notWritable"
	WrongType         FailureKind = "wrongType"
	EndOfMibView      FailureKind = "endOfMibView"
	Timeout           FailureKind = "timeout"
	DeviceUnreachable FailureKind = "deviceUnreachable"
)

// OperationResult is the discriminated result of a single GET, SET, or
// GETNEXT. Exactly one of the two arms is populated: a success carries
// the OID, declared type, and value; a failure carries its kind.
type OperationResult struct {
	Success bool        `json:"success"`
	OID     string      `json:"oid,omitempty"`
	Type    string      `json:"type,omitempty"`
	Value   any         `json:"value,omitempty"`
	Failure FailureKind `json:"failure,omitempty"`
}

// VarBind is one OID/value pair collected by a walk.
type VarBind struct {
	OID   string `json:"oid"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// WalkResult carries the ordered sequence collected by a walk and
// whether the walk stopped at the result cap rather than at natural
// subtree exhaustion; callers use the flag to decide whether to
// continue walking.
type WalkResult struct {
	VarBinds  []VarBind `json:"varbinds"`
	Truncated bool      `json:"truncated"`
}

// SuccessResult builds a success arm.
func SuccessResult(oidText string, t mib.ValueType, value any) OperationResult {
	return OperationResult{
		Success: true,
		OID:     oidText,
		Type:    t.String(),
		Value:   value,
	}
}

// FailureResult builds a failure arm.
func FailureResult(kind FailureKind) OperationResult {
	return OperationResult{Failure: kind}
}
