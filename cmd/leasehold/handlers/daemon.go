package handlers

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/imamik/leasehold/internal/platform/restapi"
	"github.com/imamik/leasehold/internal/resilience"
)

const daemonCheckTimeout = 2 * time.Second

// daemonURL turns a listen address into the URL a local client reaches it
// at. Wildcard hosts map to loopback.
func daemonURL(addr string) (string, bool) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" || port == "0" {
		return "", false
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), true
}

// daemonRunning reports whether a leasehold server answers its liveness
// endpoint on addr.
func daemonRunning(ctx context.Context, addr string) bool {
	base, ok := daemonURL(addr)
	if !ok {
		return false
	}
	api := restapi.New(base, "", resilience.New(resilience.Policy{Name: "daemon-check"})).
		WithHTTPClient(&http.Client{Timeout: daemonCheckTimeout})

	var health struct {
		Status string `json:"status"`
	}
	if err := api.Do(ctx, http.MethodGet, "/healthz", nil, &health); err != nil {
		return false
	}
	return health.Status == "ok"
}
