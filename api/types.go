package api

import (
	"context"
	"time"

	"github.com/inaetics/node-wiring-go/interfaces"
)

// StatusProvider is the client side of the node wiring status API.
type StatusProvider interface {
	// Nodes lists every node known to the discovery registry.
	Nodes(ctx context.Context) ([]*interfaces.NodeDescription, error)

	// Node returns one node by id.
	Node(ctx context.Context, nodeID string) (*interfaces.NodeDescription, error)

	// TrustState reports the trust worker's progress.
	TrustState(ctx context.Context) (*TrustStateResponse, error)

	// TrustArtifact returns the current PEM content of a public artifact.
	TrustArtifact(ctx context.Context, kind interfaces.ArtifactKind) ([]byte, error)

	// RefreshTrust forces the next trust cycle to rekey.
	RefreshTrust(ctx context.Context) error

	// AddEndpoint advertises an own wiring endpoint.
	AddEndpoint(ctx context.Context, req *EndpointRequest) (*EndpointResponse, error)

	// RemoveEndpoint stops advertising an own wiring endpoint.
	RemoveEndpoint(ctx context.Context, wireID string) error
}

// TrustStateResponse is returned by GET /api/v1/trust/state.
type TrustStateResponse struct {
	State        string     `json:"state"`
	LastRotation *time.Time `json:"last_rotation,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	NotAfter     *time.Time `json:"not_after,omitempty"`
}

// EndpointRequest is the body of POST /api/v1/endpoints. WireID may be left
// empty when Properties already carries the wire id.
type EndpointRequest struct {
	WireID     string            `json:"wire_id"`
	Properties map[string]string `json:"properties"`
}

// EndpointResponse echoes an own endpoint. Advertised is false when the
// endpoint was accepted but the store write failed; it is retried on the
// next discovery pass.
type EndpointResponse struct {
	WireID     string            `json:"wire_id"`
	Properties map[string]string `json:"properties"`
	Advertised bool              `json:"advertised"`
	Error      string            `json:"error,omitempty"`
}
