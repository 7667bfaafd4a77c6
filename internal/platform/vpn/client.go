package vpn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/platform/restapi"
	"github.com/imamik/leasehold/internal/resilience"
)

// Client talks to the VPN provider.
type Client struct {
	api *restapi.Client
}

type createRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type createResponse struct {
	ID     string `json:"id"`
	Config string `json:"config"`
}

// NewClient creates a VPN provider client. If breaker is nil a breaker with
// resilience.ProviderPolicy is created.
func NewClient(endpoint, token string, breaker *resilience.Breaker) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("vpn endpoint cannot be empty")
	}
	if breaker == nil {
		p := resilience.ProviderPolicy("vpn")
		p.Ignore = restapi.IsNotFound
		breaker = resilience.New(p)
	}
	return &Client{api: restapi.New(endpoint, token, breaker)}, nil
}

// CreateClient issues a credential for the container at address and returns
// its WireGuard configuration. The configuration is validated before it is
// returned so that it can later be revoked.
func (c *Client) CreateClient(ctx context.Context, name, address string) (string, error) {
	var resp createResponse
	if err := c.api.Do(ctx, http.MethodPost, "/api/clients", createRequest{Name: name, Address: address}, &resp); err != nil {
		return "", fmt.Errorf("create vpn client %s: %w", name, err)
	}
	if _, err := ParseConfig(resp.Config); err != nil {
		c.discardClient(ctx, name, resp.ID)
		return "", fmt.Errorf("create vpn client %s: %w", name, err)
	}
	return resp.Config, nil
}

// discardClient revokes a client by its provider id after its configuration
// turned out unusable. Failures are logged with the id for manual cleanup.
func (c *Client) discardClient(ctx context.Context, name, id string) {
	logger := log.FromContext(ctx).WithValues("client", name, "clientID", id)
	if id == "" {
		logger.Error(ErrMalformedConfig, "vpn provider returned no client id, client must be removed by hand")
		return
	}
	err := c.api.Do(ctx, http.MethodDelete, "/api/clients/"+url.PathEscape(id), nil, nil)
	if err != nil && !restapi.IsNotFound(err) {
		logger.Error(err, "failed to revoke vpn client with unusable config, client must be removed by hand")
		return
	}
	logger.Info("revoked vpn client with unusable config")
}

// DeleteClient revokes the credential embedded in config. A client the
// provider no longer knows counts as revoked.
func (c *Client) DeleteClient(ctx context.Context, config string) error {
	parsed, err := ParseConfig(config)
	if err != nil {
		return err
	}
	pub, err := parsed.PublicKey()
	if err != nil {
		return err
	}

	err = c.api.Do(ctx, http.MethodDelete, "/api/clients/"+url.PathEscape(pub), nil, nil)
	if restapi.IsNotFound(err) {
		log.FromContext(ctx).V(1).Info("vpn client already revoked", "publicKey", pub)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete vpn client: %w", err)
	}
	return nil
}
