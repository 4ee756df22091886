package etcd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/inaetics/node-wiring-go/interfaces"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultWatchTimeout   = 5 * time.Minute

	keysPrefix      = "/v2/keys/"
	maxResponseSize = 16 << 20
)

// Client speaks the etcd v2 keys API over HTTP.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	watchClient *http.Client
	log         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRequestTimeout bounds get, set, delete and list calls.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = newHTTPClient(d)
	}
}

// WithWatchTimeout bounds a single watch long poll.
func WithWatchTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.watchClient = newHTTPClient(d)
	}
}

// NewClient creates a client for http://<host>:<port>.
func NewClient(host string, port int, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:     "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		httpClient:  newHTTPClient(DefaultRequestTimeout),
		watchClient: newHTTPClient(DefaultWatchTimeout),
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromURL creates a client for an http(s) base URL.
func NewClientFromURL(baseURL string, log *slog.Logger, opts ...Option) *Client {
	c := NewClient("", 0, log, opts...)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

func newHTTPClient(timeout time.Duration) *http.Client {
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	if transport, ok := client.Transport.(*http.Transport); ok {
		transport.DialContext = (&net.Dialer{Timeout: DefaultRequestTimeout, KeepAlive: 30 * time.Second}).DialContext
	}
	return client
}

// BaseURL returns the store root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get returns the value of key. A missing key or a directory yields ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (*Response, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, c.keyURL(key, nil), nil)
	if err != nil {
		return nil, err
	}
	if resp.Node == nil || resp.Node.Value == nil {
		return nil, fmt.Errorf("%w: %s has no value", interfaces.ErrNotFound, key)
	}
	return resp, nil
}

// Set writes value to key. A positive ttl makes the key expire; requireExists
// only updates an existing key. The write succeeds only when the store echoes
// the value back.
func (c *Client) Set(ctx context.Context, key, value string, ttl int, requireExists bool) error {
	form := url.Values{}
	form.Set("value", value)
	if ttl > 0 {
		form.Set("ttl", strconv.Itoa(ttl))
	}
	if requireExists {
		form.Set("prevExist", "true")
	}

	resp, err := c.do(ctx, c.httpClient, http.MethodPut, c.keyURL(key, nil), form)
	if err != nil {
		return err
	}
	if resp.Node == nil || stringValue(resp.Node.Value) != value {
		return fmt.Errorf("%w: set %s not acknowledged", interfaces.ErrStoreResponseInvalid, key)
	}
	return nil
}

// Delete removes key and everything below it.
func (c *Client) Delete(ctx context.Context, key string) error {
	q := url.Values{}
	q.Set("recursive", "true")

	resp, err := c.do(ctx, c.httpClient, http.MethodDelete, c.keyURL(key, q), nil)
	if err != nil {
		return err
	}
	if resp.Node == nil {
		return fmt.Errorf("%w: delete %s not acknowledged", interfaces.ErrStoreResponseInvalid, key)
	}
	return nil
}

// Watch long-polls for the next change at or below key with an index of at
// least fromIndex (any index when zero).
//
// A timed out or failed poll is not an error: Watch returns (nil, nil) and the
// caller decides when to poll again. A cancelled ctx returns ctx.Err().
func (c *Client) Watch(ctx context.Context, key string, fromIndex uint64) (*DiscoveryEvent, error) {
	q := url.Values{}
	q.Set("wait", "true")
	q.Set("recursive", "true")
	if fromIndex != 0 {
		q.Set("waitIndex", strconv.FormatUint(fromIndex, 10))
	}

	resp, err := c.do(ctx, c.watchClient, http.MethodGet, c.keyURL(key, q), nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var etcdErr *ErrorResponse
		if errors.As(err, &etcdErr) && etcdErr.ErrorCode == errorCodeEventIndexCleared {
			return nil, &IndexClearedError{Index: etcdErr.Index}
		}
		if errors.Is(err, interfaces.ErrStoreUnreachable) {
			c.log.Debug("Watch returned no event", "key", key, "err", err)
			return nil, nil
		}
		return nil, err
	}

	if resp.Action == "" || resp.Node == nil || resp.Node.Key == "" {
		return nil, fmt.Errorf("%w: watch event without action or key", interfaces.ErrStoreResponseInvalid)
	}

	event := &DiscoveryEvent{
		Action:        resp.Action,
		Key:           resp.Node.Key,
		Value:         stringValue(resp.Node.Value),
		ModifiedIndex: fromIndex,
	}
	if resp.Node.ModifiedIndex != nil {
		event.ModifiedIndex = *resp.Node.ModifiedIndex
	}
	if resp.PrevNode != nil {
		event.PrevValue = stringValue(resp.PrevNode.Value)
	}
	return event, nil
}

// ListSubtree returns the leaves three levels below dir (zone, node, wire),
// bounded by MaxZones, MaxNodes and MaxWires. Malformed parts of the tree are
// skipped.
func (c *Client) ListSubtree(ctx context.Context, dir string) ([]KeyValue, error) {
	q := url.Values{}
	q.Set("recursive", "true")

	resp, err := c.do(ctx, c.httpClient, http.MethodGet, c.keyURL(dir, q), nil)
	if err != nil {
		return nil, err
	}
	if resp.Node == nil {
		return nil, nil
	}

	var leaves []KeyValue
	for i, zone := range resp.Node.Nodes {
		if i >= MaxZones {
			c.log.Warn("Zone limit reached while listing", "dir", dir, "limit", MaxZones)
			break
		}
		if zone == nil {
			continue
		}
		for j, node := range zone.Nodes {
			if j >= MaxNodes {
				c.log.Warn("Node limit reached while listing", "zone", zone.Key, "limit", MaxNodes)
				break
			}
			if node == nil {
				continue
			}
			for k, wire := range node.Nodes {
				if k >= MaxWires {
					c.log.Warn("Wire limit reached while listing", "node", node.Key, "limit", MaxWires)
					break
				}
				if wire == nil || wire.Dir || wire.Key == "" {
					continue
				}
				kv := KeyValue{Key: wire.Key, Value: stringValue(wire.Value)}
				if wire.ModifiedIndex != nil {
					kv.ModifiedIndex = *wire.ModifiedIndex
				}
				leaves = append(leaves, kv)
			}
		}
	}
	return leaves, nil
}

func (c *Client) keyURL(key string, q url.Values) string {
	segments := strings.Split(strings.Trim(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	u := c.baseURL + keysPrefix + strings.Join(segments, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, client *http.Client, method, target string, form url.Values) (*Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrStoreResponseInvalid, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", interfaces.ErrStoreUnreachable, method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", interfaces.ErrStoreUnreachable, err)
	}

	if resp.StatusCode >= 400 {
		var etcdErr ErrorResponse
		if jsonErr := json.Unmarshal(data, &etcdErr); jsonErr != nil || etcdErr.ErrorCode == 0 {
			if resp.StatusCode >= 500 {
				return nil, fmt.Errorf("%w: %s %s: status %d", interfaces.ErrStoreUnreachable, method, target, resp.StatusCode)
			}
			return nil, fmt.Errorf("%w: %s %s: status %d", interfaces.ErrStoreResponseInvalid, method, target, resp.StatusCode)
		}
		if etcdErr.ErrorCode == errorCodeKeyNotFound {
			return nil, fmt.Errorf("%w: %w", interfaces.ErrNotFound, &etcdErr)
		}
		return nil, fmt.Errorf("%w: %w", interfaces.ErrStoreResponseInvalid, &etcdErr)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %w", interfaces.ErrStoreResponseInvalid, method, err)
	}
	return &out, nil
}
