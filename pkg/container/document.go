// Package container hosts a collaborative container document: the object
// graph the garbage collector observes, plus the session harness wiring
// the document, the collector, and summary persistence together.
package container

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/dittodoc/internal/logger"
	"github.com/marmos91/dittodoc/pkg/gc"
)

// ErrDocumentClosed is returned by document operations after Close.
var ErrDocumentClosed = errors.New("document is closed")

// ErrNodeExists is returned when adding a node at an occupied path.
var ErrNodeExists = errors.New("node already exists")

// ErrNodeNotFound is returned when a referenced node path is unknown.
var ErrNodeNotFound = errors.New("node not found")

// RouteState is the reclaimer-visible state of a node.
type RouteState int

const (
	RouteStateUsed RouteState = iota
	RouteStateUnused
	RouteStateTombstoned
)

func (s RouteState) String() string {
	switch s {
	case RouteStateUsed:
		return "used"
	case RouteStateUnused:
		return "unused"
	case RouteStateTombstoned:
		return "tombstoned"
	default:
		return "unknown"
	}
}

// Node is one GC-visible object in the document graph.
type Node struct {
	Type        gc.NodeType
	Routes      []string
	PackagePath []string

	// Loaded reports whether the node's subtree has been fetched this
	// session. Unloaded nodes are invisible to non-full GC data.
	Loaded bool

	// State is the latest reclaimer-reported state.
	State RouteState
}

// ReferenceListener observes reference additions, e.g. to feed the
// collector's transient-touch hints.
type ReferenceListener func(fromPath, toPath string)

// UpdateListener observes node loads and changes and may deny them, e.g.
// the collector's tombstone enforcement.
type UpdateListener func(path string, reason gc.UpdateReason, timestampMs int64, packagePath []string) error

// Document is the in-memory object graph of one container. The reference
// timestamp is sequenced container time: it advances once per mutating
// operation, never with the wall clock.
type Document struct {
	mu sync.RWMutex

	id    string
	nodes map[string]*Node
	roots map[string]struct{}

	refTimeMs int64
	deleted   map[string]struct{}

	onReference ReferenceListener
	onUpdate    UpdateListener

	closed   bool
	closeErr error
}

// NewDocument creates an empty document.
func NewDocument(id string) *Document {
	return &Document{
		id:      id,
		nodes:   make(map[string]*Node),
		roots:   make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}
}

// ID returns the container document identifier.
func (d *Document) ID() string {
	return d.id
}

// OnReferenceAdded registers the reference listener. One listener only.
func (d *Document) OnReferenceAdded(fn ReferenceListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onReference = fn
}

// OnNodeUpdated registers the update listener. One listener only.
func (d *Document) OnNodeUpdated(fn UpdateListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUpdate = fn
}

// AddNode creates a node at path. The new node starts loaded and
// unrooted; it is reachable only once something references it.
func (d *Document) AddNode(path string, nodeType gc.NodeType, packagePath []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDocumentClosed
	}
	if _, ok := d.nodes[path]; ok {
		return fmt.Errorf("%w: %s", ErrNodeExists, path)
	}

	d.refTimeMs++
	d.nodes[path] = &Node{
		Type:        nodeType,
		PackagePath: packagePath,
		Loaded:      true,
	}
	return nil
}

// AddRoot marks path as a container root. Roots are always reachable.
func (d *Document) AddRoot(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDocumentClosed
	}
	if _, ok := d.nodes[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, path)
	}

	d.roots[path] = struct{}{}
	return nil
}

// AddReference adds an outbound route from one node to another and
// notifies the reference listener. The target may be unknown: references
// can arrive before the referenced subtree is loaded.
func (d *Document) AddReference(fromPath, toPath string) error {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		return ErrDocumentClosed
	}
	from, ok := d.nodes[fromPath]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, fromPath)
	}

	d.refTimeMs++
	from.Routes = append(from.Routes, toPath)
	tsMs := d.refTimeMs
	refFn := d.onReference
	updateFn := d.onUpdate
	pkg := from.PackagePath
	d.mu.Unlock()

	// Listeners run outside the document lock.
	if refFn != nil {
		refFn(fromPath, toPath)
	}
	if updateFn != nil {
		if err := updateFn(fromPath, gc.ReasonChanged, tsMs, pkg); err != nil {
			return err
		}
	}
	return nil
}

// RemoveReference removes one outbound route.
func (d *Document) RemoveReference(fromPath, toPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDocumentClosed
	}
	from, ok := d.nodes[fromPath]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, fromPath)
	}

	d.refTimeMs++
	for i, route := range from.Routes {
		if route == toPath {
			from.Routes = append(from.Routes[:i], from.Routes[i+1:]...)
			return nil
		}
	}
	return nil
}

// LoadNode marks a node's subtree as fetched and notifies the update
// listener, which may deny the load for tombstoned or deleted nodes.
func (d *Document) LoadNode(path string) error {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		return ErrDocumentClosed
	}
	node, ok := d.nodes[path]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, path)
	}

	tsMs := d.refTimeMs
	updateFn := d.onUpdate
	pkg := node.PackagePath
	d.mu.Unlock()

	if updateFn != nil {
		if err := updateFn(path, gc.ReasonLoaded, tsMs, pkg); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if node, ok := d.nodes[path]; ok {
		node.Loaded = true
	}
	return nil
}

// UnloadNode marks a node's subtree as not fetched, as after eviction.
func (d *Document) UnloadNode(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDocumentClosed
	}
	node, ok := d.nodes[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, path)
	}
	node.Loaded = false
	return nil
}

// MutateNode records a content change on a node and notifies the update
// listener.
func (d *Document) MutateNode(path string) error {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		return ErrDocumentClosed
	}
	node, ok := d.nodes[path]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, path)
	}

	d.refTimeMs++
	tsMs := d.refTimeMs
	updateFn := d.onUpdate
	pkg := node.PackagePath
	d.mu.Unlock()

	if updateFn != nil {
		return updateFn(path, gc.ReasonChanged, tsMs, pkg)
	}
	return nil
}

// Node returns a copy of the node at path.
func (d *Document) Node(path string) (Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	node, ok := d.nodes[path]
	if !ok {
		return Node{}, false
	}
	cp := *node
	cp.Routes = append([]string(nil), node.Routes...)
	return cp, true
}

// Paths returns all node paths, sorted.
func (d *Document) Paths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	paths := make([]string, 0, len(d.nodes))
	for path := range d.nodes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// ReferenceTimestampMs returns the current sequenced container time.
func (d *Document) ReferenceTimestampMs() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.refTimeMs
}

// AdvanceTime moves the reference clock forward by ms, as a stream of
// remote ops would.
func (d *Document) AdvanceTime(ms int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refTimeMs += ms
}

// gcData assembles the reference data for one GC run. Without fullGC only
// loaded nodes are reported; with fullGC every node is realized first.
func (d *Document) gcData(fullGC bool) *gc.GCData {
	d.mu.Lock()
	defer d.mu.Unlock()

	nodes := make(map[string][]string)
	for path, node := range d.nodes {
		if fullGC {
			node.Loaded = true
		}
		if !node.Loaded {
			continue
		}
		nodes[path] = append([]string(nil), node.Routes...)
	}

	roots := make([]string, 0, len(d.roots))
	for path := range d.roots {
		roots = append(roots, path)
	}
	sort.Strings(roots)

	return &gc.GCData{Nodes: nodes, Roots: roots}
}

// setRouteState applies a reclaimer state update to the given paths.
func (d *Document) setRouteState(paths []string, state RouteState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, path := range paths {
		if node, ok := d.nodes[path]; ok {
			node.State = state
		}
	}
}

// deleteNodes removes the given nodes from the graph, skipping paths
// already deleted or unknown. Returns the paths actually removed.
func (d *Document) deleteNodes(paths []string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var removed []string
	for _, path := range paths {
		if _, ok := d.nodes[path]; !ok {
			continue
		}
		delete(d.nodes, path)
		delete(d.roots, path)
		d.deleted[path] = struct{}{}
		removed = append(removed, path)
	}
	sort.Strings(removed)
	return removed
}

// DeletedPaths returns the paths removed by sweeps, sorted.
func (d *Document) DeletedPaths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	paths := make([]string, 0, len(d.deleted))
	for path := range d.deleted {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Close marks the document closed, recording the reason.
func (d *Document) Close(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.closeErr = err

	logger.Info("document closed",
		logger.KeyContainer, d.id,
		logger.KeyReason, fmt.Sprint(err))
}

// Closed reports whether the document is closed and why.
func (d *Document) Closed() (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed, d.closeErr
}
