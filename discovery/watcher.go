package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/inaetics/node-wiring-go/etcd"
	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/inaetics/node-wiring-go/metrics"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

const (
	DefaultRoot = "inaetics/discovery"
	DefaultZone = "inaetics-testing"
	DefaultTTL  = 30 * time.Second

	// stopTimeout bounds the removal of the own node directory on Stop.
	stopTimeout = 5 * time.Second
)

// Store is the part of the etcd client the watcher uses.
type Store interface {
	Get(ctx context.Context, key string) (*etcd.Response, error)
	Set(ctx context.Context, key, value string, ttl int, requireExists bool) error
	Delete(ctx context.Context, key string) error
	Watch(ctx context.Context, key string, fromIndex uint64) (*etcd.DiscoveryEvent, error)
	ListSubtree(ctx context.Context, dir string) ([]etcd.KeyValue, error)
}

// NodeRegistry receives the nodes the watcher discovers.
type NodeRegistry interface {
	AddNode(node *interfaces.NodeDescription) error
	RemoveNode(node *interfaces.NodeDescription) error
}

// Config describes where this node lives in the discovery tree.
type Config struct {
	Root   string
	Zone   string
	NodeID string
	// TTL of advertised keys. Own endpoints are re-advertised and the tree
	// is fully resynced every TTL/4.
	TTL time.Duration
}

func (c *Config) applyDefaults() {
	c.Root = strings.Trim(c.Root, "/")
	if c.Root == "" {
		c.Root = DefaultRoot
	}
	if c.Zone == "" {
		c.Zone = DefaultZone
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
}

// Watcher mirrors the discovery tree into a NodeRegistry.
//
// Start seeds the registry from a full listing and advertises the own
// endpoints, then a single goroutine long-polls the store from the highest
// index seen so far. Every TTL/4 the own endpoints are re-advertised and the
// tree is listed again; endpoints that vanished without an event are removed.
type Watcher struct {
	cfg      Config
	store    Store
	registry NodeRegistry
	log      *slog.Logger
	now      func() time.Time

	cursor  atomic.Uint64
	running atomic.Bool
	limiter *rate.Limiter

	ownMu sync.Mutex
	own   map[string]*interfaces.WiringEndpointDescription

	// known is only touched by the goroutine that owns the loop.
	known    map[string]*knownNode
	lastPass time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type knownNode struct {
	zone  string
	wires map[string]struct{}
}

// NewWatcher wires a watcher. It does nothing until Start.
func NewWatcher(cfg Config, store Store, registry NodeRegistry, log *slog.Logger) (*Watcher, error) {
	cfg.applyDefaults()
	if cfg.NodeID == "" {
		return nil, errors.New("discovery watcher without node id")
	}
	return &Watcher{
		cfg:      cfg,
		store:    store,
		registry: registry,
		log:      log.With("zone", cfg.Zone, "node", cfg.NodeID),
		now:      time.Now,
		limiter:  rate.NewLimiter(rate.Every(cfg.TTL/4), 1),
		own:      map[string]*interfaces.WiringEndpointDescription{},
		known:    map[string]*knownNode{},
	}, nil
}

// Config returns the effective configuration.
func (w *Watcher) Config() Config {
	return w.cfg
}

// Cursor returns the highest modifiedIndex seen so far.
func (w *Watcher) Cursor() uint64 {
	return w.cursor.Load()
}

// Running reports whether the watch loop is active.
func (w *Watcher) Running() bool {
	return w.running.Load()
}

// interval is the re-advertise and resync period.
func (w *Watcher) interval() time.Duration {
	return w.cfg.TTL / 4
}

func (w *Watcher) ttlSeconds() int {
	secs := int(w.cfg.TTL / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// advance moves the cursor forward, never backwards.
func (w *Watcher) advance(index uint64) {
	for {
		cur := w.cursor.Load()
		if index <= cur {
			return
		}
		if w.cursor.CompareAndSwap(cur, index) {
			metrics.DiscoveryWatchIndex.Set(float64(index))
			return
		}
	}
}

// Start bootstraps the registry, advertises the own endpoints and starts the
// watch loop. Store failures during bootstrap are logged; the loop retries
// them on its next pass.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil {
		return errors.New("discovery watcher already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	if err := w.resync(ctx); err != nil {
		w.log.Warn("Discovery bootstrap incomplete", "err", err)
	}
	w.advertise(ctx)
	w.lastPass = w.now()
	w.running.Store(true)
	w.log.Info("Discovery watcher started", "root", w.cfg.Root, "cursor", w.Cursor(), "nodes", len(w.known))

	go func() {
		defer close(w.done)
		defer w.running.Store(false)
		w.loop(ctx)
	}()
	return nil
}

// Stop cancels the watch loop, waits for it and removes the own node
// directory from the store. The registry is not touched after Stop returns.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	ctx, cancelDelete := context.WithTimeout(ctx, stopTimeout)
	defer cancelDelete()

	key := NodeKey(w.cfg.Root, w.cfg.Zone, w.cfg.NodeID)
	if err := w.store.Delete(ctx, key); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		w.log.Warn("Failed to remove own node key", "key", key, "err", err)
		return err
	}
	w.log.Info("Discovery watcher stopped", "cursor", w.Cursor())
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	for ctx.Err() == nil {
		if w.now().Sub(w.lastPass) >= w.interval() {
			w.advertise(ctx)
			if err := w.resync(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("Discovery resync failed", "err", err)
			}
			w.lastPass = w.now()
		}

		// The poll ends no later than the next pass so own keys never
		// outlive their ttl while the tree is quiet.
		wait := w.interval() - w.now().Sub(w.lastPass)
		if wait <= 0 {
			wait = time.Millisecond
		}
		pollCtx, cancel := context.WithTimeout(ctx, wait)
		event, err := w.store.Watch(pollCtx, w.cfg.Root, w.Cursor()+1)
		cancel()

		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, context.DeadlineExceeded):
			continue
		case errors.Is(err, etcd.ErrIndexCleared):
			w.recoverClearedIndex(ctx, err)
		case err != nil:
			w.log.Warn("Watch failed", "err", err)
			w.pause(ctx)
		case event == nil:
			w.pause(ctx)
		default:
			w.handleEvent(event)
		}
	}
}

// pause lets one empty poll through per interval and sleeps otherwise.
func (w *Watcher) pause(ctx context.Context) {
	if err := w.limiter.Wait(ctx); err != nil && ctx.Err() == nil {
		w.log.Debug("Watch pacing interrupted", "err", err)
	}
}

func (w *Watcher) recoverClearedIndex(ctx context.Context, err error) {
	w.log.Info("Watch index cleared, resyncing", "cursor", w.Cursor(), "err", err)
	if rerr := w.resync(ctx); rerr != nil && ctx.Err() == nil {
		w.log.Warn("Discovery resync failed", "err", rerr)
	}
	var cleared *etcd.IndexClearedError
	if errors.As(err, &cleared) {
		w.advance(cleared.Index)
	}
}

func (w *Watcher) handleEvent(event *etcd.DiscoveryEvent) {
	defer w.advance(event.ModifiedIndex)
	metrics.RecordDiscoveryEvent(string(event.Action))

	key, err := ParseKey(w.cfg.Root, event.Key)
	if err != nil {
		w.log.Warn("Skipping event with malformed key", "action", event.Action, "key", event.Key, "err", err)
		return
	}

	switch {
	case event.Action.IsAdd():
		if key.Wire == "" {
			w.log.Debug("Ignoring node directory event", "action", event.Action, "key", event.Key)
			return
		}
		w.addWire(key, event.Value)
	case event.Action.IsRemove():
		if key.Wire == "" {
			w.removeNode(key.Node)
			return
		}
		w.removeWire(key)
	default:
		w.log.Warn("Ignoring unknown watch action", "action", event.Action, "key", event.Key)
	}
}

// resync lists the whole tree, adds every wire found and removes the wires
// that disappeared since the previous listing.
func (w *Watcher) resync(ctx context.Context) error {
	leaves, err := w.store.ListSubtree(ctx, w.cfg.Root)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		metrics.RecordResync("failed")
		return err
	}

	seen := map[string]map[string]struct{}{}
	for _, leaf := range leaves {
		key, err := ParseKey(w.cfg.Root, leaf.Key)
		if err != nil || key.Wire == "" {
			w.log.Warn("Skipping malformed discovery key", "key", leaf.Key, "err", err)
			continue
		}

		resp, err := w.store.Get(ctx, leaf.Key)
		if err != nil {
			if ctx.Err() != nil {
				metrics.RecordResync("failed")
				return ctx.Err()
			}
			if !errors.Is(err, interfaces.ErrNotFound) {
				w.log.Warn("Failed to read discovery key", "key", leaf.Key, "err", err)
			}
			continue
		}

		index := leaf.ModifiedIndex
		if resp.Node.ModifiedIndex != nil && *resp.Node.ModifiedIndex > index {
			index = *resp.Node.ModifiedIndex
		}
		w.advance(index)

		w.addWire(key, *resp.Node.Value)
		if seen[key.Node] == nil {
			seen[key.Node] = map[string]struct{}{}
		}
		seen[key.Node][key.Wire] = struct{}{}
	}

	for nodeID, node := range w.known {
		for wire := range node.wires {
			if _, ok := seen[nodeID][wire]; !ok {
				w.log.Debug("Wire vanished from discovery tree", "node", nodeID, "wireId", wire)
				w.removeWire(Key{Zone: node.zone, Node: nodeID, Wire: wire})
			}
		}
	}

	metrics.RecordResync("ok")
	return nil
}

// endpointFor decodes an advertised value. A value that cannot be decoded
// still yields an endpoint carrying the wire id.
func (w *Watcher) endpointFor(key Key, value string) *interfaces.WiringEndpointDescription {
	props, err := UnmarshalProperties(value)
	if err != nil {
		w.log.Warn("Malformed endpoint properties", "node", key.Node, "wireId", key.Wire, "err", err)
	}
	return interfaces.NewWiringEndpointDescription(key.Wire, props)
}

func (w *Watcher) addWire(key Key, value string) {
	node := interfaces.NewNodeDescription(key.Node, key.Zone, nil)
	node.Endpoints = append(node.Endpoints, w.endpointFor(key, value))
	if err := w.registry.AddNode(node); err != nil {
		w.log.Warn("Registry rejected node", "node", key.Node, "err", err)
		return
	}

	known, ok := w.known[key.Node]
	if !ok {
		known = &knownNode{zone: key.Zone, wires: map[string]struct{}{}}
		w.known[key.Node] = known
	}
	known.wires[key.Wire] = struct{}{}
}

func (w *Watcher) removeWire(key Key) {
	node := interfaces.NewNodeDescription(key.Node, key.Zone, nil)
	node.Endpoints = append(node.Endpoints, interfaces.NewWiringEndpointDescription(key.Wire, nil))
	if err := w.registry.RemoveNode(node); err != nil {
		w.log.Warn("Registry rejected removal", "node", key.Node, "err", err)
	}

	if known, ok := w.known[key.Node]; ok {
		delete(known.wires, key.Wire)
		if len(known.wires) == 0 {
			delete(w.known, key.Node)
		}
	}
}

// removeNode drops every wire of a node whose directory was deleted.
func (w *Watcher) removeNode(nodeID string) {
	known, ok := w.known[nodeID]
	if !ok {
		return
	}
	wires := make([]string, 0, len(known.wires))
	for wire := range known.wires {
		wires = append(wires, wire)
	}
	sort.Strings(wires)
	for _, wire := range wires {
		w.removeWire(Key{Zone: known.zone, Node: nodeID, Wire: wire})
	}
}

// AddOwnEndpoint registers an endpoint of this node and advertises it right
// away. The endpoint stays registered when advertising fails; the next pass
// retries it.
func (w *Watcher) AddOwnEndpoint(ctx context.Context, ep *interfaces.WiringEndpointDescription) error {
	wireID := ep.WireID()
	if wireID == "" {
		return interfaces.ErrMissingWireID
	}

	w.ownMu.Lock()
	if _, ok := w.own[wireID]; ok {
		w.ownMu.Unlock()
		return fmt.Errorf("%w: %s", interfaces.ErrDuplicateWireID, wireID)
	}
	ep = ep.Clone()
	w.own[wireID] = ep
	w.ownMu.Unlock()

	w.log.Info("Own endpoint added", "wireId", wireID, "url", ep.URL())
	if !w.running.Load() {
		return nil
	}
	return w.advertiseEndpoint(ctx, ep)
}

// RemoveOwnEndpoint stops advertising an endpoint of this node. Its key
// expires from the store once the ttl elapses.
func (w *Watcher) RemoveOwnEndpoint(wireID string) error {
	w.ownMu.Lock()
	defer w.ownMu.Unlock()

	if _, ok := w.own[wireID]; !ok {
		return fmt.Errorf("%w: own endpoint %s", interfaces.ErrNotFound, wireID)
	}
	delete(w.own, wireID)
	w.log.Info("Own endpoint removed", "wireId", wireID)
	return nil
}

// OwnEndpoints returns copies of the own endpoints ordered by wire id.
func (w *Watcher) OwnEndpoints() []*interfaces.WiringEndpointDescription {
	w.ownMu.Lock()
	defer w.ownMu.Unlock()

	out := make([]*interfaces.WiringEndpointDescription, 0, len(w.own))
	for _, ep := range w.own {
		out = append(out, ep.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WireID() < out[j].WireID() })
	return out
}

func (w *Watcher) advertise(ctx context.Context) {
	for _, ep := range w.OwnEndpoints() {
		if ctx.Err() != nil {
			return
		}
		if err := w.advertiseEndpoint(ctx, ep); err != nil {
			w.log.Warn("Failed to advertise own endpoint", "wireId", ep.WireID(), "err", err)
		}
	}
}

func (w *Watcher) advertiseEndpoint(ctx context.Context, ep *interfaces.WiringEndpointDescription) error {
	value, err := MarshalProperties(ep.Properties)
	if err == nil {
		key := WireKey(w.cfg.Root, w.cfg.Zone, w.cfg.NodeID, ep.WireID())
		err = w.store.Set(ctx, key, value, w.ttlSeconds(), false)
	}
	if err != nil {
		metrics.DiscoveryAdvertiseFailuresTotal.Inc()
		return err
	}
	return nil
}
