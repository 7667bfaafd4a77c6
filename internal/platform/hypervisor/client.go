package hypervisor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imamik/leasehold/internal/resilience"
)

const apiPrefix = "/api2/json"

const defaultTaskPollInterval = 2 * time.Second

// Config holds hypervisor client configuration.
type Config struct {
	Endpoint      string
	Node          string
	TokenID       string
	TokenSecret   string
	InsecureTLS   bool
	BackupStorage string

	// TaskPollInterval is the delay between task status checks.
	// If zero, defaultTaskPollInterval is used.
	TaskPollInterval time.Duration
}

// Client talks to a single hypervisor node.
type Client struct {
	baseURL      string
	node         string
	authHeader   string
	storage      string
	pollInterval time.Duration
	httpClient   *http.Client
	breaker      *resilience.Breaker
}

// NewClient creates a hypervisor client. If breaker is nil a breaker with
// resilience.HypervisorPolicy is created.
func NewClient(cfg Config, breaker *resilience.Breaker) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("hypervisor endpoint cannot be empty")
	}
	if cfg.Node == "" {
		return nil, fmt.Errorf("hypervisor node cannot be empty")
	}
	if cfg.TokenID == "" || cfg.TokenSecret == "" {
		return nil, fmt.Errorf("hypervisor API token cannot be empty")
	}

	if breaker == nil {
		p := resilience.HypervisorPolicy()
		p.Ignore = func(err error) bool { return IsNotFound(err) || IsNotRunning(err) }
		breaker = resilience.New(p)
	}

	poll := cfg.TaskPollInterval
	if poll == 0 {
		poll = defaultTaskPollInterval
	}
	storage := cfg.BackupStorage
	if storage == "" {
		storage = "local"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed node certificates
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.Endpoint, "/") + apiPrefix,
		node:         cfg.Node,
		authHeader:   fmt.Sprintf("PVEAPIToken=%s=%s", cfg.TokenID, cfg.TokenSecret),
		storage:      storage,
		pollInterval: poll,
		httpClient:   &http.Client{Transport: transport},
		breaker:      breaker,
	}, nil
}

type envelope struct {
	Data    json.RawMessage   `json:"data"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func (c *Client) nodePath(format string, args ...any) string {
	return "/nodes/" + url.PathEscape(c.node) + fmt.Sprintf(format, args...)
}

func (c *Client) ctPath(vmid int, suffix string) string {
	return c.nodePath("/lxc/%d%s", vmid, suffix)
}

// call performs one API request through the breaker and decodes the data field into out.
func (c *Client) call(ctx context.Context, method, path string, form url.Values, out any) error {
	return c.breaker.Do(ctx, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, method, path, form)
		if err != nil {
			return err
		}
		return c.do(req, out)
	})
}

func (c *Client) newRequest(ctx context.Context, method, path string, form url.Values) (*http.Request, error) {
	target := c.baseURL + path
	var body io.Reader
	if form != nil {
		if method == http.MethodGet || method == http.MethodDelete {
			target += "?" + form.Encode()
		} else {
			body = strings.NewReader(form.Encode())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.authHeader)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	_ = json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(req, resp, env)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("parse response data: %w (status %d)", err, resp.StatusCode)
	}
	return nil
}
