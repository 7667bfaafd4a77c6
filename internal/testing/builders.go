package testing

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imamik/leasehold/internal/config"
)

// ConfigBuilder provides a fluent interface for constructing test configs.
// Each method returns a new builder (immutable) for chaining.
type ConfigBuilder struct {
	cfg config.Config
}

// NewConfigBuilder creates a builder from the defaults with every wait shortened
// so pipelines finish instantly in tests.
func NewConfigBuilder() *ConfigBuilder {
	cfg := *config.Default()
	cfg.Database.DSN = "sqlite"
	cfg.Hypervisor.Endpoint = "https://hypervisor.test:8006"
	cfg.Hypervisor.Node = "node1"
	cfg.Hypervisor.TokenID = "root@pam!leasehold"
	cfg.Hypervisor.TokenSecret = "secret"
	cfg.Hypervisor.Gateway = "10.0.0.1"
	cfg.Hypervisor.TaskPollInterval = time.Millisecond
	cfg.Ingress.BaseDomain = "example.test"
	cfg.Bootstrap.Password = "template-pass"
	cfg.Bootstrap.RetryDelay = time.Millisecond
	cfg.Pipeline.AddressAttempts = 3
	cfg.Pipeline.AddressDelay = time.Millisecond
	cfg.Pipeline.SettleDelay = 0
	cfg.Templates = map[string]config.Template{
		"small": {ID: 9000, DailyCost: decimal.NewFromInt(1440), Cores: 1, MemoryMB: 1024, DiskGB: 10},
	}
	return &ConfigBuilder{cfg: cfg}
}

// WithTemplate adds or replaces a template.
func (b *ConfigBuilder) WithTemplate(name string, id int, dailyCost int64) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Templates[name] = config.Template{
		ID:        id,
		DailyCost: decimal.NewFromInt(dailyCost),
		Cores:     1,
		MemoryMB:  1024,
		DiskGB:    10,
	}
	return newBuilder
}

// WithRetention sets the snapshot and backup retention limits.
func (b *ConfigBuilder) WithRetention(snapshots, backups int) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Retention.Snapshots = snapshots
	newBuilder.cfg.Retention.Backups = backups
	return newBuilder
}

// WithAddressAttempts sets how often the pipeline polls for an address.
func (b *ConfigBuilder) WithAddressAttempts(n int) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Pipeline.AddressAttempts = n
	return newBuilder
}

// WithPaidIngress sets the paid ingress surcharge and the free binding cap.
func (b *ConfigBuilder) WithPaidIngress(dailyCost int64, freePerResource int) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Billing.PaidIngressDailyCost = decimal.NewFromInt(dailyCost)
	newBuilder.cfg.Billing.FreeIngressPerResource = freePerResource
	return newBuilder
}

// WithAdminToken sets the ops API token.
func (b *ConfigBuilder) WithAdminToken(token string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Server.AdminToken = token
	return newBuilder
}

// Build returns the constructed config.
func (b *ConfigBuilder) Build() *config.Config {
	return &b.clone().cfg
}

// clone creates a deep copy of the builder for immutability.
func (b *ConfigBuilder) clone() *ConfigBuilder {
	newCfg := b.cfg
	newCfg.Templates = make(map[string]config.Template, len(b.cfg.Templates))
	maps.Copy(newCfg.Templates, b.cfg.Templates)
	if b.cfg.Hypervisor.ManagementPorts != nil {
		newCfg.Hypervisor.ManagementPorts = append([]int(nil), b.cfg.Hypervisor.ManagementPorts...)
	}
	return &ConfigBuilder{cfg: newCfg}
}

// MinimalConfig returns a valid config for simple tests.
func MinimalConfig() *config.Config {
	return NewConfigBuilder().Build()
}
