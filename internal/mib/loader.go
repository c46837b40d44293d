package mib

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"

	"github.com/geekxflood/proteus/internal/oid"
)

// LoaderConfig holds configuration for the MIB definition loader.
type LoaderConfig struct {
	DefinitionFile string        `json:"definition_file"`
	IncludeBuiltin bool          `json:"include_builtin"`
	WatchFile      bool          `json:"watch_file"`
	DebounceDelay  time.Duration `json:"debounce_delay"`
}

// DefaultLoaderConfig returns a default loader configuration.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		DefinitionFile: "",
		IncludeBuiltin: true,
		WatchFile:      false,
		DebounceDelay:  500 * time.Millisecond,
	}
}

// Definition is a single entry in a JSON MIB definition file.
type Definition struct {
	OID         string `json:"oid"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Access      string `json:"access"`
	Value       any    `json:"value,omitempty"`
}

// Loader builds the managed object tree from the built-in MIB-II seed
// and an optional JSON definition file, and optionally watches the
// file for changes. A reload builds a complete replacement tree and
// swaps it in atomically; in-flight operations finish against the tree
// they started with.
type Loader struct {
	config *LoaderConfig
	logger logging.Logger

	mu   sync.RWMutex
	tree *Tree

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLoader creates a loader and performs the initial load. Definition
// errors are fatal here: a tree with malformed or duplicate entries
// never becomes live.
func NewLoader(cfg config.Provider, logger logging.Logger) (*Loader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}

	loaderConfig := DefaultLoaderConfig()

	if file, err := cfg.GetString("mib.definition_file", loaderConfig.DefinitionFile); err == nil {
		loaderConfig.DefinitionFile = file
	}

	if builtin, err := cfg.GetBool("mib.include_builtin", loaderConfig.IncludeBuiltin); err == nil {
		loaderConfig.IncludeBuiltin = builtin
	}

	if watch, err := cfg.GetBool("mib.watch_file", loaderConfig.WatchFile); err == nil {
		loaderConfig.WatchFile = watch
	}

	if debounce, err := cfg.GetDuration("mib.debounce_delay", loaderConfig.DebounceDelay); err == nil {
		loaderConfig.DebounceDelay = debounce
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := &Loader{
		config: loaderConfig,
		logger: logger.With("component", "mib-loader"),
		ctx:    ctx,
		cancel: cancel,
	}

	tree, err := l.build()
	if err != nil {
		cancel()
		return nil, err
	}

	l.tree = tree
	l.logger.Info("MIB tree loaded", "nodes", tree.Len())

	if loaderConfig.WatchFile && loaderConfig.DefinitionFile != "" {
		if err := l.startWatcher(); err != nil {
			cancel()
			return nil, err
		}
	}

	return l, nil
}

// Tree returns the current live tree.
func (l *Loader) Tree() *Tree {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree
}

// Close stops the file watcher.
func (l *Loader) Close() error {
	l.cancel()
	l.wg.Wait()
	return nil
}

// build assembles the entry list and constructs a tree from it.
func (l *Loader) build() (*Tree, error) {
	var entries []Entry

	if l.config.IncludeBuiltin {
		entries = append(entries, BuiltinEntries()...)
	}

	if l.config.DefinitionFile != "" {
		fileEntries, err := LoadDefinitionFile(l.config.DefinitionFile)
		if err != nil {
			return nil, fmt.Errorf("definition file %s: %w", l.config.DefinitionFile, err)
		}
		entries = append(entries, fileEntries...)
	}

	return NewTree(entries)
}

// LoadDefinitionFile parses a JSON MIB definition file into entries.
func LoadDefinitionFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}

	entries := make([]Entry, 0, len(defs))
	for i, def := range defs {
		entry, err := def.toEntry()
		if err != nil {
			return nil, fmt.Errorf("definition %d (%s): %w", i, def.OID, err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// toEntry converts a file definition into a tree entry, coercing JSON
// number values into the declared type's runtime representation.
func (d Definition) toEntry() (Entry, error) {
	parsed, err := oid.Parse(d.OID)
	if err != nil {
		return Entry{}, err
	}

	access, err := ParseAccess(d.Access)
	if err != nil {
		return Entry{}, err
	}

	node := Node{
		Name:        d.Name,
		Description: d.Description,
		Access:      access,
	}

	if access == NotAccessible {
		return Entry{OID: parsed, Node: node}, nil
	}

	node.Leaf = true

	node.Type, err = ParseValueType(d.Type)
	if err != nil {
		return Entry{}, err
	}

	node.Value, err = CoerceValue(node.Type, d.Value)
	if err != nil {
		return Entry{}, err
	}

	return Entry{OID: parsed, Node: node}, nil
}

// CoerceValue maps JSON-decoded values onto the runtime representation
// required by the declared type. JSON numbers arrive as float64.
func CoerceValue(t ValueType, v any) (any, error) {
	switch t {
	case TypeInteger:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("INTEGER value must be numeric, got %T", v)
		}
		return int(f), nil
	case TypeTimeTicks, TypeCounter32:
		f, ok := v.(float64)
		if !ok || f < 0 {
			return nil, fmt.Errorf("%s value must be a non-negative number, got %v", t, v)
		}
		return uint32(f), nil
	case TypeOctetString, TypeObjectIdentifier:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s value must be a string, got %T", t, v)
		}
		return s, nil
	case TypeNull:
		if v != nil {
			return nil, fmt.Errorf("NULL value must be absent")
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown value type %d", int(t))
	}
}

// startWatcher begins watching the definition file directory for
// changes and rebuilds the tree on modification, debounced so editors
// that write in several steps trigger a single reload.
func (l *Loader) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory rather than the file: many editors replace
	// the file on save, which drops a direct file watch.
	dir := filepath.Dir(l.config.DefinitionFile)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	l.wg.Add(1)
	go l.watchLoop(watcher)

	l.logger.Info("Watching MIB definition file", "file", l.config.DefinitionFile)

	return nil
}

func (l *Loader) watchLoop(watcher *fsnotify.Watcher) {
	defer l.wg.Done()
	defer watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	target := filepath.Clean(l.config.DefinitionFile)

	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != target {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(l.config.DebounceDelay, l.reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("File watcher error", "error", err.Error())
		}
	}
}

// reload rebuilds the tree and swaps it in. A failed rebuild keeps the
// previous tree live.
func (l *Loader) reload() {
	tree, err := l.build()
	if err != nil {
		l.logger.Error("MIB reload failed, keeping previous tree", "error", err.Error())
		return
	}

	l.mu.Lock()
	l.tree = tree
	l.mu.Unlock()

	l.logger.Info("MIB tree reloaded", "nodes", tree.Len())
}
