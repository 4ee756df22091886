package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"

	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/inaetics/node-wiring-go/metrics"
	"go.uber.org/atomic"
)

// ListenerID identifies a listener registration.
type ListenerID uint64

type listenerEntry struct {
	id       ListenerID
	filter   *Filter
	listener interfaces.WiringEndpointListener
	self     bool
}

// ListenerOption configures a listener registration.
type ListenerOption func(*listenerEntry)

// WithSelfRegistration marks the listener as the local wiring admin: it is
// not told about added endpoints, only about removed ones.
func WithSelfRegistration() ListenerOption {
	return func(e *listenerEntry) {
		e.self = true
	}
}

type nodeEntry struct {
	mu   sync.Mutex
	node *interfaces.NodeDescription
}

// Registry is the in-memory directory of discovered nodes and their wiring
// endpoints.
//
// Locking: nodesMu guards the node map and is taken before a node's own mutex.
// listenersMu guards the listener list and is never held while calling a
// listener. Mutations are applied one at a time in arrival order; a mutation
// requested while another one is delivering notifications, including from a
// listener callback, is queued and applied by the goroutine already
// delivering.
type Registry struct {
	log *slog.Logger

	nodesMu sync.RWMutex
	nodes   map[string]*nodeEntry

	listenersMu sync.RWMutex
	listeners   []*listenerEntry
	nextID      ListenerID

	queueMu  sync.Mutex
	queue    []func()
	draining bool

	// callbackG is the goroutine currently running a listener callback, 0
	// when none is.
	callbackG atomic.Uint64
	closed    atomic.Bool
}

// New creates an empty registry.
func New(log *slog.Logger) *Registry {
	return &Registry{
		log:   log,
		nodes: map[string]*nodeEntry{},
	}
}

// AddNode merges node into the registry. An unknown node is inserted with all
// its endpoints; for a known node only endpoints with a new wire id are added,
// the first description of a wire id wins. Listeners are told about every
// endpoint that was actually added.
func (r *Registry) AddNode(node *interfaces.NodeDescription) error {
	if err := r.checkNode(node); err != nil {
		return err
	}
	node = node.Clone()
	r.serialize(func() { r.addNode(node) })
	return nil
}

// RemoveNode removes the endpoints of node, matched by wire id, and tells
// listeners about each one that was present. The node entry itself stays,
// possibly without endpoints.
func (r *Registry) RemoveNode(node *interfaces.NodeDescription) error {
	if err := r.checkNode(node); err != nil {
		return err
	}
	node = node.Clone()
	r.serialize(func() { r.removeNode(node) })
	return nil
}

func (r *Registry) checkNode(node *interfaces.NodeDescription) error {
	if r.closed.Load() {
		return interfaces.ErrRegistryClosed
	}
	if node == nil || node.NodeID == "" {
		return errors.New("node description without node id")
	}
	return nil
}

func (r *Registry) addNode(node *interfaces.NodeDescription) {
	if r.closed.Load() {
		return
	}

	var added []*interfaces.WiringEndpointDescription

	r.nodesMu.Lock()
	entry, ok := r.nodes[node.NodeID]
	if !ok {
		entry = &nodeEntry{node: interfaces.NewNodeDescription(node.NodeID, node.ZoneID, node.Properties)}
		r.nodes[node.NodeID] = entry
	}
	entry.mu.Lock()
	zoneID := entry.node.ZoneID
	for _, ep := range node.Endpoints {
		wireID := ep.WireID()
		if wireID == "" {
			r.log.Warn("Ignoring endpoint without wire id", "node", node.NodeID)
			continue
		}
		if entry.node.Endpoint(wireID) != nil {
			continue
		}
		entry.node.Endpoints = append(entry.node.Endpoints, ep)
		added = append(added, ep)
	}
	for k, v := range node.Properties {
		if _, exists := entry.node.Properties[k]; !exists {
			if entry.node.Properties == nil {
				entry.node.Properties = map[string]string{}
			}
			entry.node.Properties[k] = v
		}
	}
	entry.mu.Unlock()
	r.nodesMu.Unlock()

	if len(added) > 0 {
		r.log.Debug("Endpoints added", "node", node.NodeID, "zone", zoneID, "count", len(added))
	}
	for _, ep := range added {
		r.notify(ep, zoneID, node.NodeID, true)
	}
	r.updateMetrics()
}

func (r *Registry) removeNode(node *interfaces.NodeDescription) {
	if r.closed.Load() {
		return
	}

	var removed []*interfaces.WiringEndpointDescription

	r.nodesMu.Lock()
	entry, ok := r.nodes[node.NodeID]
	if !ok {
		r.nodesMu.Unlock()
		return
	}
	entry.mu.Lock()
	zoneID := entry.node.ZoneID
	for _, ep := range node.Endpoints {
		wireID := ep.WireID()
		kept := entry.node.Endpoints[:0]
		for _, existing := range entry.node.Endpoints {
			if existing.WireID() == wireID {
				removed = append(removed, existing)
				continue
			}
			kept = append(kept, existing)
		}
		entry.node.Endpoints = kept
	}
	entry.mu.Unlock()
	r.nodesMu.Unlock()

	if len(removed) > 0 {
		r.log.Debug("Endpoints removed", "node", node.NodeID, "zone", zoneID, "count", len(removed))
	}
	for _, ep := range removed {
		r.notify(ep, zoneID, node.NodeID, false)
	}
	r.updateMetrics()
}

// RegisterListener adds a listener for endpoints matching filter and replays
// every matching endpoint already known as added (unless the listener is a
// self registration). It fails with ErrReentrantListenerCall when called from
// inside a listener callback. Calls from other goroutines while a callback
// runs are queued behind it.
func (r *Registry) RegisterListener(filter string, listener interfaces.WiringEndpointListener, opts ...ListenerOption) (ListenerID, error) {
	if r.insideCallback() {
		return 0, interfaces.ErrReentrantListenerCall
	}
	if r.closed.Load() {
		return 0, interfaces.ErrRegistryClosed
	}
	if listener == nil {
		return 0, errors.New("nil listener")
	}

	f, err := ParseFilter(filter)
	if err != nil {
		return 0, err
	}

	entry := &listenerEntry{filter: f, listener: listener}
	for _, opt := range opts {
		opt(entry)
	}

	r.listenersMu.Lock()
	r.nextID++
	entry.id = r.nextID
	r.listenersMu.Unlock()

	r.serialize(func() {
		r.listenersMu.Lock()
		r.listeners = append(r.listeners, entry)
		r.listenersMu.Unlock()

		r.log.Debug("Listener registered", "id", entry.id, "filter", f.String(), "self", entry.self)
		if entry.self {
			return
		}
		for _, node := range r.Nodes() {
			for _, ep := range node.Endpoints {
				r.deliver(entry, ep, node.ZoneID, node.NodeID, true)
			}
		}
	})
	return entry.id, nil
}

// UnregisterListener removes a registration. It fails with
// ErrReentrantListenerCall when called from inside a listener callback.
func (r *Registry) UnregisterListener(id ListenerID) error {
	if r.insideCallback() {
		return interfaces.ErrReentrantListenerCall
	}

	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()

	for i, entry := range r.listeners {
		if entry.id == id {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			r.log.Debug("Listener unregistered", "id", id)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", interfaces.ErrListenerNotFound, id)
}

// Nodes returns copies of all known nodes ordered by node id.
func (r *Registry) Nodes() []*interfaces.NodeDescription {
	r.nodesMu.RLock()
	defer r.nodesMu.RUnlock()

	out := make([]*interfaces.NodeDescription, 0, len(r.nodes))
	for _, entry := range r.nodes {
		entry.mu.Lock()
		out = append(out, entry.node.Clone())
		entry.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Node returns a copy of the node with id, or ErrNotFound.
func (r *Registry) Node(id string) (*interfaces.NodeDescription, error) {
	r.nodesMu.RLock()
	defer r.nodesMu.RUnlock()

	entry, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %s", interfaces.ErrNotFound, id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.node.Clone(), nil
}

// Close tells listeners about the removal of every endpoint and empties the
// registry. Later mutations fail with ErrRegistryClosed.
func (r *Registry) Close() {
	if r.closed.Load() {
		return
	}

	r.serialize(func() {
		if r.closed.Swap(true) {
			return
		}

		r.nodesMu.Lock()
		nodes := r.nodes
		r.nodes = map[string]*nodeEntry{}
		r.nodesMu.Unlock()

		ids := make([]string, 0, len(nodes))
		for id := range nodes {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			entry := nodes[id]
			entry.mu.Lock()
			endpoints := entry.node.Endpoints
			zoneID := entry.node.ZoneID
			entry.mu.Unlock()

			for _, ep := range endpoints {
				r.notify(ep, zoneID, id, false)
			}
		}
		r.updateMetrics()
		r.log.Info("Registry closed", "nodes", len(ids))
	})
}

// serialize runs op after all previously requested mutations. When another
// goroutine (or a callback further up this goroutine's stack) is already
// applying mutations, op is queued for it and serialize returns immediately.
func (r *Registry) serialize(op func()) {
	r.queueMu.Lock()
	if r.draining {
		r.queue = append(r.queue, op)
		r.queueMu.Unlock()
		return
	}
	r.draining = true
	r.queueMu.Unlock()

	for {
		op()

		r.queueMu.Lock()
		if len(r.queue) == 0 {
			r.draining = false
			r.queueMu.Unlock()
			return
		}
		op = r.queue[0]
		r.queue = r.queue[1:]
		r.queueMu.Unlock()
	}
}

// insideCallback reports whether the caller is the goroutine running a
// listener callback.
func (r *Registry) insideCallback() bool {
	g := r.callbackG.Load()
	return g != 0 && g == goroutineID()
}

func (r *Registry) notify(ep *interfaces.WiringEndpointDescription, zoneID, nodeID string, added bool) {
	r.listenersMu.RLock()
	listeners := append([]*listenerEntry(nil), r.listeners...)
	r.listenersMu.RUnlock()

	for _, entry := range listeners {
		if added && entry.self {
			continue
		}
		r.deliver(entry, ep, zoneID, nodeID, added)
	}
}

func (r *Registry) deliver(entry *listenerEntry, ep *interfaces.WiringEndpointDescription, zoneID, nodeID string, added bool) {
	if !entry.filter.Match(matchAttributes(ep, zoneID, nodeID)) {
		return
	}

	// Deliveries never nest: mutations requested by a callback are queued.
	r.callbackG.Store(goroutineID())
	defer r.callbackG.Store(0)
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Listener panicked", "id", entry.id, "wireId", ep.WireID(), "panic", p)
		}
	}()

	var err error
	if added {
		err = entry.listener.WiringEndpointAdded(ep.Clone(), entry.filter.String())
	} else {
		err = entry.listener.WiringEndpointRemoved(ep.Clone(), entry.filter.String())
	}
	if err != nil {
		r.log.Warn("Listener failed", "id", entry.id, "wireId", ep.WireID(), "added", added, "err", err)
	}
}

// matchAttributes is what filters see: the node's zone and id overlaid by the
// endpoint properties.
func matchAttributes(ep *interfaces.WiringEndpointDescription, zoneID, nodeID string) map[string]string {
	attrs := make(map[string]string, len(ep.Properties)+2)
	attrs[interfaces.ZoneAttribute] = zoneID
	attrs[interfaces.NodeAttribute] = nodeID
	maps.Copy(attrs, ep.Properties)
	return attrs
}

func (r *Registry) updateMetrics() {
	r.nodesMu.RLock()
	defer r.nodesMu.RUnlock()

	endpoints := 0
	for _, entry := range r.nodes {
		entry.mu.Lock()
		endpoints += len(entry.node.Endpoints)
		entry.mu.Unlock()
	}
	metrics.SetRegistrySize(len(r.nodes), endpoints)
}
