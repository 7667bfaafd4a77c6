// Package ingress registers public hostnames with the tunnel ingress provider.
package ingress

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/imamik/leasehold/internal/platform/restapi"
	"github.com/imamik/leasehold/internal/resilience"
)

// Client is a minimal ingress provider client for hostname routing.
type Client struct {
	api *restapi.Client
}

// Route maps a public hostname to a private service URL.
type Route struct {
	Hostname string `json:"hostname"`
	Service  string `json:"service"`
}

type batchDeleteRequest struct {
	Hostnames []string `json:"hostnames"`
}

// NewClient creates an ingress provider client. If breaker is nil a breaker
// with resilience.ProviderPolicy is created.
func NewClient(endpoint, token string, breaker *resilience.Breaker) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("ingress endpoint cannot be empty")
	}
	if breaker == nil {
		p := resilience.ProviderPolicy("ingress")
		p.Ignore = restapi.IsNotFound
		breaker = resilience.New(p)
	}
	return &Client{api: restapi.New(endpoint, token, breaker)}, nil
}

// AddIngress routes hostname to targetURL.
func (c *Client) AddIngress(ctx context.Context, hostname, targetURL string) error {
	if err := c.api.Do(ctx, http.MethodPost, "/ingress", Route{Hostname: hostname, Service: targetURL}, nil); err != nil {
		return fmt.Errorf("add ingress %s: %w", hostname, err)
	}
	return nil
}

// RemoveIngress removes the route for hostname. Unknown hostnames are ignored.
func (c *Client) RemoveIngress(ctx context.Context, hostname string) error {
	err := c.api.Do(ctx, http.MethodDelete, "/ingress/"+url.PathEscape(hostname), nil, nil)
	if err != nil && !restapi.IsNotFound(err) {
		return fmt.Errorf("remove ingress %s: %w", hostname, err)
	}
	return nil
}

// RemoveMultipleIngress removes several routes with a single provider call.
func (c *Client) RemoveMultipleIngress(ctx context.Context, hostnames []string) error {
	if len(hostnames) == 0 {
		return nil
	}
	if err := c.api.Do(ctx, http.MethodPost, "/ingress/batch-delete", batchDeleteRequest{Hostnames: hostnames}, nil); err != nil {
		return fmt.Errorf("remove %d ingress routes: %w", len(hostnames), err)
	}
	return nil
}
