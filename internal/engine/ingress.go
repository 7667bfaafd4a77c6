package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/model"
)

// IngressRequest asks for a public hostname routed to a resource port.
type IngressRequest struct {
	ResourceID string `json:"resourceId"`
	// Hostname is either fully qualified or a label below the base domain.
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Paid     bool   `json:"paid"`
}

// AddIngressBinding publishes a hostname for a resource. Each resource gets a
// fixed number of free bindings; further bindings must be paid.
func (e *Engine) AddIngressBinding(ctx context.Context, req IngressRequest) (*model.IngressBinding, error) {
	if req.Port < 1 || req.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", req.Port)
	}
	hostname := e.qualifyHostname(req.Hostname)
	if hostname == "" {
		return nil, errors.New("hostname is required")
	}

	res, err := e.store.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if res.IPAddress == "" {
		return nil, ErrNoAddress
	}

	b := &model.IngressBinding{ResourceID: res.ID, Hostname: hostname, Port: req.Port, Paid: req.Paid}
	if err := e.store.CreateIngressBinding(ctx, b, e.cfg.Billing.FreeIngressPerResource); err != nil {
		return nil, err
	}

	if e.ingress != nil {
		target := fmt.Sprintf("http://%s:%d", res.IPAddress, req.Port)
		if err := e.ingress.AddIngress(ctx, hostname, target); err != nil {
			if derr := e.store.DeleteIngressBinding(ctx, hostname); derr != nil {
				log.FromContext(ctx).Error(derr, "failed to remove unpublished binding", "hostname", hostname)
			}
			return nil, fmt.Errorf("publish %s: %w", hostname, err)
		}
	}
	log.FromContext(ctx).Info("ingress binding added", "resource", res.ID, "hostname", hostname, "paid", req.Paid)
	return b, nil
}

// RemoveIngressBinding unpublishes a hostname. The provider call is
// best-effort; the binding is always removed.
func (e *Engine) RemoveIngressBinding(ctx context.Context, hostname string) error {
	hostname = e.qualifyHostname(hostname)
	b, err := e.store.GetIngressBinding(ctx, hostname)
	if err != nil {
		return err
	}
	if e.ingress != nil {
		if err := e.ingress.RemoveIngress(ctx, b.Hostname); err != nil {
			log.FromContext(ctx).Error(err, "failed to unpublish hostname", "hostname", b.Hostname)
		}
	}
	return e.store.DeleteIngressBinding(ctx, b.Hostname)
}

func (e *Engine) qualifyHostname(h string) string {
	h = strings.Trim(strings.ToLower(strings.TrimSpace(h)), ".")
	if h == "" {
		return ""
	}
	if !strings.Contains(h, ".") && e.cfg.Ingress.BaseDomain != "" {
		h += "." + strings.TrimPrefix(e.cfg.Ingress.BaseDomain, ".")
	}
	return h
}
