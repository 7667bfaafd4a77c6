package hypervisor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// FirewallRule is a single container firewall rule.
type FirewallRule struct {
	Direction string // "in" or "out"
	Action    string // "ACCEPT", "DROP" or "REJECT"
	Proto     string
	Dest      string
	DPort     string
	Comment   string
}

// FirewallOptions toggles the container firewall and its default policies.
type FirewallOptions struct {
	Enable    bool
	PolicyIn  string
	PolicyOut string
}

// AddFirewallRule appends a rule to the container firewall.
func (c *Client) AddFirewallRule(ctx context.Context, vmid int, rule FirewallRule) error {
	form := url.Values{}
	form.Set("type", rule.Direction)
	form.Set("action", rule.Action)
	form.Set("enable", "1")
	if rule.Proto != "" {
		form.Set("proto", rule.Proto)
	}
	if rule.Dest != "" {
		form.Set("dest", rule.Dest)
	}
	if rule.DPort != "" {
		form.Set("dport", rule.DPort)
	}
	if rule.Comment != "" {
		form.Set("comment", rule.Comment)
	}

	if err := c.call(ctx, http.MethodPost, c.ctPath(vmid, "/firewall/rules"), form, nil); err != nil {
		return fmt.Errorf("add firewall rule to container %d: %w", vmid, err)
	}
	return nil
}

// SetFirewallOptions updates the container firewall options.
func (c *Client) SetFirewallOptions(ctx context.Context, vmid int, opts FirewallOptions) error {
	form := url.Values{}
	if opts.Enable {
		form.Set("enable", "1")
	} else {
		form.Set("enable", "0")
	}
	if opts.PolicyIn != "" {
		form.Set("policy_in", opts.PolicyIn)
	}
	if opts.PolicyOut != "" {
		form.Set("policy_out", opts.PolicyOut)
	}

	if err := c.call(ctx, http.MethodPut, c.ctPath(vmid, "/firewall/options"), form, nil); err != nil {
		return fmt.Errorf("set firewall options of container %d: %w", vmid, err)
	}
	return nil
}
