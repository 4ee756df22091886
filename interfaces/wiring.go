package interfaces

import (
	"maps"
	"sort"
)

const (
	// WireIDKey is the endpoint property holding the unique wire identifier.
	WireIDKey = "org.inaetics.remote.admin.wiring.wireId"

	// WiringURLKey is the endpoint property holding the transport URL.
	WiringURLKey = "inaetics.wiring.http.url"

	// ZoneAttribute and NodeAttribute are exposed to listener filters
	// alongside the endpoint properties.
	ZoneAttribute = "zone"
	NodeAttribute = "node"
)

// WiringEndpointDescription is the transport-reachable end of a wire.
// Two descriptions are the same endpoint when their wire ids are equal.
type WiringEndpointDescription struct {
	Properties map[string]string `json:"properties"`
}

// NewWiringEndpointDescription copies props and stamps the wire id into them.
func NewWiringEndpointDescription(wireID string, props map[string]string) *WiringEndpointDescription {
	p := make(map[string]string, len(props)+1)
	maps.Copy(p, props)
	if wireID != "" {
		p[WireIDKey] = wireID
	}
	return &WiringEndpointDescription{Properties: p}
}

// WireID returns the wire identifier, or "" if the endpoint has none.
func (e *WiringEndpointDescription) WireID() string {
	if e == nil {
		return ""
	}
	return e.Properties[WireIDKey]
}

// URL returns the transport URL advertised by the endpoint, if any.
func (e *WiringEndpointDescription) URL() string {
	return e.Properties[WiringURLKey]
}

// Clone returns a deep copy.
func (e *WiringEndpointDescription) Clone() *WiringEndpointDescription {
	return &WiringEndpointDescription{Properties: maps.Clone(e.Properties)}
}

// NodeDescription describes one node of the wiring fabric and the endpoints it offers.
type NodeDescription struct {
	NodeID     string                       `json:"nodeId"`
	ZoneID     string                       `json:"zoneId"`
	Properties map[string]string            `json:"properties,omitempty"`
	Endpoints  []*WiringEndpointDescription `json:"endpoints"`
}

// NewNodeDescription creates a node description without endpoints.
func NewNodeDescription(nodeID, zoneID string, props map[string]string) *NodeDescription {
	return &NodeDescription{
		NodeID:     nodeID,
		ZoneID:     zoneID,
		Properties: maps.Clone(props),
	}
}

// Endpoint returns the endpoint with the given wire id, or nil.
func (n *NodeDescription) Endpoint(wireID string) *WiringEndpointDescription {
	for _, ep := range n.Endpoints {
		if ep.WireID() == wireID {
			return ep
		}
	}
	return nil
}

// Clone returns a deep copy.
func (n *NodeDescription) Clone() *NodeDescription {
	c := &NodeDescription{
		NodeID:     n.NodeID,
		ZoneID:     n.ZoneID,
		Properties: maps.Clone(n.Properties),
		Endpoints:  make([]*WiringEndpointDescription, 0, len(n.Endpoints)),
	}
	for _, ep := range n.Endpoints {
		c.Endpoints = append(c.Endpoints, ep.Clone())
	}
	return c
}

// WireIDs returns the sorted wire ids of all endpoints.
func (n *NodeDescription) WireIDs() []string {
	ids := make([]string, 0, len(n.Endpoints))
	for _, ep := range n.Endpoints {
		ids = append(ids, ep.WireID())
	}
	sort.Strings(ids)
	return ids
}

// WiringEndpointListener is notified about endpoints appearing in and
// disappearing from the discovered wiring fabric. Callbacks run on the
// notifying goroutine and should hand work off rather than block.
type WiringEndpointListener interface {
	WiringEndpointAdded(endpoint *WiringEndpointDescription, matchedFilter string) error
	WiringEndpointRemoved(endpoint *WiringEndpointDescription, matchedFilter string) error
}
