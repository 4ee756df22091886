package httpserver

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/inaetics/node-wiring-go/api"
	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/inaetics/node-wiring-go/trustmanager"
)

// maxBodySize is the maximum allowed request body size (64KB).
const maxBodySize = 64 * 1024

// NodeDirectory is the read side of the discovery registry.
type NodeDirectory interface {
	Nodes() []*interfaces.NodeDescription
	Node(id string) (*interfaces.NodeDescription, error)
}

// TrustStatus is the part of the trust worker exposed over HTTP.
type TrustStatus interface {
	State() trustmanager.State
	LastRotation() time.Time
	LastError() error
	ForceRefresh()
	ArtifactContent(kind interfaces.ArtifactKind) ([]byte, error)
}

// EndpointPublisher manages the endpoints this node advertises.
type EndpointPublisher interface {
	AddOwnEndpoint(ctx context.Context, ep *interfaces.WiringEndpointDescription) error
	RemoveOwnEndpoint(wireID string) error
	OwnEndpoints() []*interfaces.WiringEndpointDescription
}

// Handler serves the node status API.
type Handler struct {
	nodes     NodeDirectory
	trust     TrustStatus
	endpoints EndpointPublisher
	log       *slog.Logger
}

// NewHandler creates a status handler over the node's components.
func NewHandler(nodes NodeDirectory, trust TrustStatus, endpoints EndpointPublisher, log *slog.Logger) *Handler {
	return &Handler{
		nodes:     nodes,
		trust:     trust,
		endpoints: endpoints,
		log:       log,
	}
}

// HandleListNodes returns every known node.
//
// URL format: GET /api/v1/nodes
func (h *Handler) HandleListNodes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.nodes.Nodes())
}

// HandleGetNode returns one node.
//
// URL format: GET /api/v1/nodes/{nodeID}
func (h *Handler) HandleGetNode(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("nodeID")

	node, err := h.nodes.Node(nodeID)
	if errors.Is(err, interfaces.ErrNotFound) {
		http.Error(w, "Unknown node", http.StatusNotFound)
		return
	} else if err != nil {
		h.log.Error("Failed to look up node", "err", err, "node", nodeID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, node)
}

// HandleTrustState reports the trust worker's state and the expiry of the
// current client certificate.
//
// URL format: GET /api/v1/trust/state
func (h *Handler) HandleTrustState(w http.ResponseWriter, r *http.Request) {
	resp := api.TrustStateResponse{State: h.trust.State().String()}

	if t := h.trust.LastRotation(); !t.IsZero() {
		resp.LastRotation = &t
	}
	if err := h.trust.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	if certPEM, err := h.trust.ArtifactContent(interfaces.ArtifactCertificate); err == nil {
		if block, _ := pem.Decode(certPEM); block != nil {
			if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
				notAfter := cert.NotAfter
				resp.NotAfter = &notAfter
			}
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleTrustArtifact returns the current PEM of a public artifact.
//
// URL format: GET /api/v1/trust/{artifact}
// artifact is one of certificate, full-bundle, ca-certificate, public-key.
func (h *Handler) HandleTrustArtifact(w http.ResponseWriter, r *http.Request) {
	kind := interfaces.ArtifactKind(r.PathValue("artifact"))

	switch kind {
	case interfaces.ArtifactCertificate, interfaces.ArtifactFullBundle, interfaces.ArtifactCACertificate, interfaces.ArtifactPublicKey:
	case interfaces.ArtifactPrivateKey:
		http.Error(w, "Private key is not served", http.StatusForbidden)
		return
	default:
		http.Error(w, "Unknown artifact", http.StatusNotFound)
		return
	}

	content, err := h.trust.ArtifactContent(kind)
	if errors.Is(err, interfaces.ErrNotFound) || errors.Is(err, interfaces.ErrStorageUnavailable) {
		http.Error(w, "Artifact not available yet", http.StatusNotFound)
		return
	} else if err != nil {
		h.log.Error("Failed to read artifact", "err", err, "artifact", kind)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// HandleTrustRefresh makes the trust worker rekey on its next cycle.
//
// URL format: POST /api/v1/trust/refresh
func (h *Handler) HandleTrustRefresh(w http.ResponseWriter, r *http.Request) {
	h.trust.ForceRefresh()
	h.log.Info("Trust refresh requested")
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

// HandleListEndpoints returns the endpoints this node advertises.
//
// URL format: GET /api/v1/endpoints
func (h *Handler) HandleListEndpoints(w http.ResponseWriter, r *http.Request) {
	own := h.endpoints.OwnEndpoints()
	resp := make([]api.EndpointResponse, 0, len(own))
	for _, ep := range own {
		resp = append(resp, api.EndpointResponse{WireID: ep.WireID(), Properties: ep.Properties, Advertised: true})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleAddEndpoint advertises a new own endpoint.
//
// URL format: POST /api/v1/endpoints
// Request body: api.EndpointRequest
//
// Responds 201 once advertised, 202 when accepted but the store write failed,
// 409 for a known wire id and 400 when no wire id is given.
func (h *Handler) HandleAddEndpoint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req api.EndpointRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid endpoint request", http.StatusBadRequest)
		return
	}

	wireID := req.WireID
	if wireID == "" {
		wireID = req.Properties[interfaces.WireIDKey]
	}
	ep := interfaces.NewWiringEndpointDescription(wireID, req.Properties)

	resp := api.EndpointResponse{WireID: ep.WireID(), Properties: ep.Properties, Advertised: true}
	status := http.StatusCreated

	err = h.endpoints.AddOwnEndpoint(r.Context(), ep)
	switch {
	case errors.Is(err, interfaces.ErrMissingWireID):
		http.Error(w, "Missing wire id", http.StatusBadRequest)
		return
	case errors.Is(err, interfaces.ErrDuplicateWireID):
		http.Error(w, "Wire id already advertised", http.StatusConflict)
		return
	case err != nil:
		h.log.Warn("Endpoint accepted but not advertised", "err", err, "wireId", ep.WireID())
		resp.Advertised = false
		resp.Error = err.Error()
		status = http.StatusAccepted
	}

	h.writeJSON(w, status, resp)
}

// HandleRemoveEndpoint stops advertising an own endpoint.
//
// URL format: DELETE /api/v1/endpoints/{wireID}
func (h *Handler) HandleRemoveEndpoint(w http.ResponseWriter, r *http.Request) {
	wireID := r.PathValue("wireID")

	if err := h.endpoints.RemoveOwnEndpoint(wireID); errors.Is(err, interfaces.ErrNotFound) {
		http.Error(w, "Unknown wire id", http.StatusNotFound)
		return
	} else if err != nil {
		h.log.Error("Failed to remove endpoint", "err", err, "wireId", wireID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("Failed to encode response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
