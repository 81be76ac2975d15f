// Package api is the authenticated HTTP client for the remote retail
// API: login, per-table uploads and per-entity retrieval.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/jsonx"
	"github.com/tiendalink/tiendasync/pkg/logger"
)

// uploadPaths maps a local table name to its upload endpoint. The same
// paths serve entity retrieval via GET.
var uploadPaths = map[string]string{
	"producto":     "/api/productos",
	"cliente":      "/api/clientes",
	"venta":        "/api/ventas",
	"detalleventa": "/api/detalleventas",
}

const loginPath = "/api/login"

// Config configures the API client transport.
type Config struct {
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timeouts
	DialTimeout    time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// TLS settings
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`

	// HTTP/2
	EnableHTTP2 bool `yaml:"enable_http2" json:"enable_http2"`
}

// DefaultConfig returns sensible transport defaults.
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:    10 * time.Second,
		RequestTimeout: 30 * time.Second,
		IdleTimeout:    90 * time.Second,
		EnableHTTP2:    true,
	}
}

// Client talks to the remote API. It is stateless: the bearer token is
// supplied per call by the session layer.
type Client struct {
	config     *Config
	logger     *zap.Logger
	httpClient *http.Client
}

// NewClient creates an API client for the configured base URL.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     config.IdleTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		},
	}

	log := logger.Get().With(zap.String("component", "api_client"))

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			log.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	return &Client{
		config: config,
		logger: log,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   config.RequestTimeout,
		},
	}
}

// Login exchanges credentials for a bearer token. Any non-2xx response
// is an authentication failure.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := jsonx.Marshal(credentialsPayload{Username: username, Password: password})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode credentials")
	}

	resp, err := c.post(ctx, loginPath, "", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Newf(errors.ErrorTypeAuthentication,
			"login rejected with status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to read login response")
	}

	var token tokenPayload
	if err := jsonx.Unmarshal(payload, &token); err != nil {
		// Some deployments return the bare token string.
		token.Token = strings.TrimSpace(strings.Trim(string(payload), `"`))
	}
	if token.Token == "" {
		return "", errors.New(errors.ErrorTypeAuthentication, "login response contained no token")
	}

	c.logger.Info("login succeeded", zap.String("username", username))
	return token.Token, nil
}

// Upload posts transformed rows to the table's endpoint. Any non-2xx
// response is a sync failure; the body is captured for diagnostics.
func (c *Client) Upload(ctx context.Context, token, table string, rows []map[string]interface{}) error {
	path, ok := uploadPaths[strings.ToLower(table)]
	if !ok {
		return errors.Newf(errors.ErrorTypeConfig, "no upload endpoint for table %s", table)
	}

	body, err := jsonx.Marshal(rows)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeTransformation, "failed to encode rows").
			WithDetail("table", table)
	}

	resp, err := c.post(ctx, path, token, body)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSync, "upload request failed").
			WithDetail("table", table).
			WithDetail("rows", len(rows))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errors.Newf(errors.ErrorTypeAuthentication,
			"upload of %s rejected: token expired or revoked", table).
			WithDetail("table", table)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("upload rejected",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", detail))
		return errors.Newf(errors.ErrorTypeSync,
			"upload of %s rejected with status %d", table, resp.StatusCode).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", string(detail)).
			WithDetail("rows", len(rows))
	}

	c.logger.Info("batch uploaded",
		zap.String("table", table), zap.Int("rows", len(rows)))
	return nil
}

// FetchProductos retrieves the remote product list.
func (c *Client) FetchProductos(ctx context.Context, token string) ([]Producto, error) {
	var out []Producto
	if err := c.fetch(ctx, token, uploadPaths["producto"], &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchClientes retrieves the remote client list.
func (c *Client) FetchClientes(ctx context.Context, token string) ([]Cliente, error) {
	var out []Cliente
	if err := c.fetch(ctx, token, uploadPaths["cliente"], &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchVentas retrieves the remote sale list.
func (c *Client) FetchVentas(ctx context.Context, token string) ([]Venta, error) {
	var out []Venta
	if err := c.fetch(ctx, token, uploadPaths["venta"], &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchDetalleVentas retrieves the remote sale line-item list.
func (c *Client) FetchDetalleVentas(ctx context.Context, token string) ([]DetalleVenta, error) {
	var out []DetalleVenta
	if err := c.fetch(ctx, token, uploadPaths["detalleventa"], &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, token, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, http.NoBody)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "fetch request failed").
			WithDetail("path", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errors.New(errors.ErrorTypeAuthentication, "token rejected")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf(errors.ErrorTypeConnection,
			"fetch of %s failed with status %d", path, resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response")
	}
	if err := jsonx.Unmarshal(payload, out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode response").
			WithDetail("path", path)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed").
			WithDetail("path", path)
	}
	return resp, nil
}
