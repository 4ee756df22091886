package cfssl

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/inaetics/node-wiring-go/cryptoutils"
	"github.com/inaetics/node-wiring-go/interfaces"
)

// DefaultTimeout bounds every CA call, connection setup included.
const DefaultTimeout = 2 * time.Second

const maxResponseSize = 1 << 20

// Client performs the signing round trip against a CFSSL-compatible CA.
type Client struct {
	baseURL    string
	codec      *cryptoutils.Codec
	commonName func() string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a CA client for http://<host>:<port>.
//
// Parameters:
//   - host, port: address of the CA
//   - codec: builds the CSR for SignCSR
//   - timeout: bound for a whole request; DefaultTimeout if zero
//   - log: structured logger
func NewClient(host string, port int, codec *cryptoutils.Codec, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = timeout
	if transport, ok := httpClient.Transport.(*http.Transport); ok {
		transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	}

	return &Client{
		baseURL:    "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		codec:      codec,
		commonName: cryptoutils.SubjectCommonName,
		httpClient: httpClient,
		log:        log,
	}
}

// WithCommonName overrides the CSR subject common name source.
func (c *Client) WithCommonName(fn func() string) *Client {
	c.commonName = fn
	return c
}

// BaseURL returns the CA root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestCACertificate fetches the CA certificate.
func (c *Client) RequestCACertificate(ctx context.Context) (interfaces.CACert, error) {
	body, err := json.Marshal(InfoRequest{})
	if err != nil {
		return nil, fmt.Errorf("%w: encode info request: %w", interfaces.ErrCAResponseInvalid, err)
	}

	certPEM, err := c.post(ctx, InfoPath, body)
	if err != nil {
		return nil, err
	}

	caCert, err := cryptoutils.NewCACert([]byte(certPEM))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrCAResponseInvalid, err)
	}

	c.log.Debug("Fetched CA certificate", "ca", c.baseURL)
	return caCert, nil
}

// SignCSR builds a CSR for key and returns the certificate signed by the CA.
func (c *Client) SignCSR(ctx context.Context, key *rsa.PrivateKey) (interfaces.TLSCert, error) {
	csr, err := c.codec.BuildCSR(key, c.commonName())
	if err != nil {
		return nil, err
	}

	body, err := cryptoutils.CSRRequestJSON(csr)
	if err != nil {
		return nil, err
	}

	certPEM, err := c.post(ctx, SignPath, body)
	if err != nil {
		return nil, err
	}

	cert, err := cryptoutils.NewTLSCert([]byte(certPEM))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrCAResponseInvalid, err)
	}

	c.log.Debug("CSR signed", "ca", c.baseURL)
	return cert, nil
}

// post sends body to path and extracts result.certificate from the envelope.
func (c *Client) post(ctx context.Context, path string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: could not initialize request: %w", interfaces.ErrCAUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", interfaces.ErrCAUnreachable, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("%w: could not read response: %w", interfaces.ErrCAUnreachable, err)
	}

	var envelope Response
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return "", fmt.Errorf("%w: %s returned %d", interfaces.ErrCAUnreachable, path, resp.StatusCode)
		}
		return "", fmt.Errorf("%w: could not parse response: %w", interfaces.ErrCAResponseInvalid, err)
	}

	return extractCertificate(path, &envelope)
}

func extractCertificate(path string, envelope *Response) (string, error) {
	if !envelope.Success {
		msg := "unsuccessful response"
		if len(envelope.Errors) > 0 {
			msg = fmt.Sprintf("%d: %s", envelope.Errors[0].Code, envelope.Errors[0].Message)
		}
		return "", fmt.Errorf("%w: %s: %s", interfaces.ErrCAResponseInvalid, path, msg)
	}

	var result map[string]any
	if len(envelope.Result) == 0 || json.Unmarshal(envelope.Result, &result) != nil {
		return "", fmt.Errorf("%w: %s: missing result", interfaces.ErrCAResponseInvalid, path)
	}

	certificate, ok := result["certificate"].(string)
	if !ok || certificate == "" {
		return "", fmt.Errorf("%w: %s: missing certificate", interfaces.ErrCAResponseInvalid, path)
	}

	return certificate, nil
}
