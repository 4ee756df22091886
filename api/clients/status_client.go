package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/inaetics/node-wiring-go/api"
	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/stretchr/testify/mock"
)

// maxResponseSize bounds response bodies read by the client.
const maxResponseSize = 4 << 20

// StatusClient talks to the status API of a node.
type StatusClient struct {
	// ServerAddr is the base URL of the status server
	ServerAddr string

	httpClient *http.Client
}

var _ api.StatusProvider = (*StatusClient)(nil)

// NewStatusClient creates a client with a per-request timeout.
func NewStatusClient(serverAddr string, timeout time.Duration) *StatusClient {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = timeout
	return &StatusClient{
		ServerAddr: strings.TrimRight(serverAddr, "/"),
		httpClient: httpClient,
	}
}

func (c *StatusClient) Nodes(ctx context.Context) ([]*interfaces.NodeDescription, error) {
	var nodes []*interfaces.NodeDescription
	if err := c.do(ctx, http.MethodGet, "/api/v1/nodes", nil, http.StatusOK, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (c *StatusClient) Node(ctx context.Context, nodeID string) (*interfaces.NodeDescription, error) {
	var node interfaces.NodeDescription
	if err := c.do(ctx, http.MethodGet, "/api/v1/nodes/"+url.PathEscape(nodeID), nil, http.StatusOK, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *StatusClient) TrustState(ctx context.Context) (*api.TrustStateResponse, error) {
	var state api.TrustStateResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/trust/state", nil, http.StatusOK, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *StatusClient) TrustArtifact(ctx context.Context, kind interfaces.ArtifactKind) ([]byte, error) {
	var raw []byte
	if err := c.do(ctx, http.MethodGet, "/api/v1/trust/"+url.PathEscape(string(kind)), nil, http.StatusOK, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *StatusClient) RefreshTrust(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/trust/refresh", nil, http.StatusAccepted, nil)
}

// AddEndpoint returns the accepted endpoint. An endpoint that was accepted
// but not yet advertised is not an error; check Advertised.
func (c *StatusClient) AddEndpoint(ctx context.Context, req *api.EndpointRequest) (*api.EndpointResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var resp api.EndpointResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/endpoints", body, http.StatusCreated, &resp); err != nil {
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusAccepted {
			return nil, err
		}
		if jsonErr := json.Unmarshal(statusErr.Body, &resp); jsonErr != nil {
			return nil, fmt.Errorf("could not parse endpoint response: %w", jsonErr)
		}
	}
	return &resp, nil
}

func (c *StatusClient) RemoveEndpoint(ctx context.Context, wireID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/endpoints/"+url.PathEscape(wireID), nil, http.StatusNoContent, nil)
}

// do sends a request and decodes the response into out. A raw *[]byte out
// receives the body as is.
func (c *StatusClient) do(ctx context.Context, method, path string, body []byte, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.ServerAddr+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("could not read %s response: %w", path, err)
	}

	if resp.StatusCode != wantStatus {
		return &StatusError{StatusCode: resp.StatusCode, Body: data}
	}

	switch out := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*out = data
		return nil
	default:
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("could not parse %s response: %w", path, err)
		}
		return nil
	}
}

// StatusError is returned for responses with an unexpected status code.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status api returned %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// Is maps 404 to interfaces.ErrNotFound and 409 to interfaces.ErrDuplicateWireID.
func (e *StatusError) Is(target error) bool {
	switch target {
	case interfaces.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case interfaces.ErrDuplicateWireID:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// MockStatusProvider mocks api.StatusProvider.
type MockStatusProvider struct {
	mock.Mock
}

func (m *MockStatusProvider) Nodes(ctx context.Context) ([]*interfaces.NodeDescription, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*interfaces.NodeDescription), args.Error(1)
}

func (m *MockStatusProvider) Node(ctx context.Context, nodeID string) (*interfaces.NodeDescription, error) {
	args := m.Called(ctx, nodeID)
	return args.Get(0).(*interfaces.NodeDescription), args.Error(1)
}

func (m *MockStatusProvider) TrustState(ctx context.Context) (*api.TrustStateResponse, error) {
	args := m.Called(ctx)
	return args.Get(0).(*api.TrustStateResponse), args.Error(1)
}

func (m *MockStatusProvider) TrustArtifact(ctx context.Context, kind interfaces.ArtifactKind) ([]byte, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStatusProvider) RefreshTrust(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStatusProvider) AddEndpoint(ctx context.Context, req *api.EndpointRequest) (*api.EndpointResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(*api.EndpointResponse), args.Error(1)
}

func (m *MockStatusProvider) RemoveEndpoint(ctx context.Context, wireID string) error {
	args := m.Called(ctx, wireID)
	return args.Error(0)
}
