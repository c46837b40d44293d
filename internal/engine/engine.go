package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"

	"github.com/geekxflood/proteus/internal/mib"
	"github.com/geekxflood/proteus/internal/oid"
)

// EngineConfig holds configuration for the operation engine.
type EngineConfig struct {
	MaxWalkResults int `json:"max_walk_results"`
}

// DefaultEngineConfig returns a default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxWalkResults: 1000,
	}
}

// TreeSource yields the current live tree for each operation.
type TreeSource interface {
	Tree() *mib.Tree
}

// Engine dispatches the SNMP primitives over a tree. It holds no
// mutable state of its own, so any number of operations may run
// concurrently; the tree's own lock discipline serializes SET against
// in-flight reads.
type Engine struct {
	config *EngineConfig
	source TreeSource
	logger logging.Logger
}

// NewEngine creates an operation engine over the given tree source.
func NewEngine(cfg config.Provider, source TreeSource, logger logging.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("tree source cannot be nil")
	}

	engineConfig := DefaultEngineConfig()

	if maxResults, err := cfg.GetInt("engine.max_walk_results", engineConfig.MaxWalkResults); err == nil && maxResults > 0 {
		engineConfig.MaxWalkResults = maxResults
	}

	return &Engine{
		config: engineConfig,
		source: source,
		logger: logger.With("component", "engine"),
	}, nil
}

// Get performs an exact lookup. Only accessible leaves are returned;
// an absent OID and a present-but-not-accessible node both yield
// NoSuchObject, since GET never substitutes a different OID.
func (e *Engine) Get(o oid.OID) OperationResult {
	node, err := e.source.Tree().Get(o)
	if err != nil {
		return FailureResult(NoSuchObject)
	}

	if !node.Leaf || node.Access == mib.NotAccessible {
		return FailureResult(NoSuchObject)
	}

	return SuccessResult(o.String(), node.Type, node.Value)
}

// Set validates the declared type against the supplied value's shape,
// then delegates to the tree. A failed set leaves the tree unchanged,
// and a successful one is immediately visible to subsequent gets.
func (e *Engine) Set(o oid.OID, value any, declared mib.ValueType) OperationResult {
	if err := mib.CheckValue(declared, value); err != nil {
		return FailureResult(WrongType)
	}

	tree := e.source.Tree()

	node, err := tree.Get(o)
	if err != nil {
		return FailureResult(NoSuchObject)
	}

	if node.Type != declared {
		return FailureResult(WrongType)
	}

	if err := tree.SetValue(o, value); err != nil {
		switch {
		case errors.Is(err, mib.ErrNotFound):
			return FailureResult(NoSuchObject)
		case errors.Is(err, mib.ErrAccessDenied):
			return FailureResult(NotWritable)
		case errors.Is(err, mib.ErrTypeMismatch):
			return FailureResult(WrongType)
		default:
			e.logger.Error("Unexpected set failure", "oid", o.String(), "error", err.Error())
			return FailureResult(NoSuchObject)
		}
	}

	e.logger.Debug("Value set", "oid", o.String())

	return SuccessResult(o.String(), declared, value)
}

// GetNext returns the first accessible leaf whose OID is strictly
// greater in tree order than the given one. Next-OID semantics come
// from tree order, never from arithmetic on the last arc: the
// successor may differ in any arc or descend to a child. Internal and
// not-accessible nodes are skipped, so a not-accessible node is never
// returned to the caller. End of tree yields EndOfMibView.
func (e *Engine) GetNext(o oid.OID) OperationResult {
	entry, ok := nextLeaf(e.source.Tree(), o)
	if !ok {
		return FailureResult(EndOfMibView)
	}

	return SuccessResult(entry.OID.String(), entry.Node.Type, entry.Node.Value)
}

// nextLeaf advances past internal and not-accessible nodes to the
// first accessible leaf strictly after the cursor.
func nextLeaf(tree *mib.Tree, cursor oid.OID) (mib.Entry, bool) {
	for {
		entry, ok := tree.NextAfter(cursor)
		if !ok {
			return mib.Entry{}, false
		}

		if entry.Node.Leaf && entry.Node.Access != mib.NotAccessible {
			return entry, true
		}

		cursor = entry.OID
	}
}

// Walk collects accessible leaves strictly after root, in OID order,
// stopping at the first OID outside root's subtree, at end of tree, or
// at maxResults. The root itself is never included, even when it is an
// accessible leaf. maxResults of zero or less applies the configured
// cap. Each step is an independent read: a concurrent SET may or may
// not be visible to the not-yet-reached part of the walk. Cancellation
// is checked between steps and surfaces the context error with the
// results collected so far.
func (e *Engine) Walk(ctx context.Context, root oid.OID, maxResults int) (WalkResult, error) {
	if maxResults <= 0 || maxResults > e.config.MaxWalkResults {
		maxResults = e.config.MaxWalkResults
	}

	var result WalkResult
	cursor := root

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if len(result.VarBinds) >= maxResults {
			result.Truncated = true
			return result, nil
		}

		entry, ok := nextLeaf(e.source.Tree(), cursor)
		if !ok || !root.IsPrefixOf(entry.OID) {
			// End of tree or first OID outside the subtree: natural
			// exhaustion, not truncation.
			return result, nil
		}

		result.VarBinds = append(result.VarBinds, VarBind{
			OID:   entry.OID.String(),
			Type:  entry.Node.Type.String(),
			Value: entry.Node.Value,
		})

		cursor = entry.OID
	}
}
