package config

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the complete runtime configuration of the control plane.
type Config struct {
	Database   DatabaseConfig      `yaml:"database"`
	Redis      RedisConfig         `yaml:"redis"`
	RabbitMQ   RabbitMQConfig      `yaml:"rabbitmq"`
	Hypervisor HypervisorConfig    `yaml:"hypervisor"`
	VPN        ProviderConfig      `yaml:"vpn"`
	Ingress    IngressConfig       `yaml:"ingress"`
	Bootstrap  BootstrapConfig     `yaml:"bootstrap"`
	Pipeline   PipelineConfig      `yaml:"pipeline"`
	Billing    BillingConfig       `yaml:"billing"`
	Retention  RetentionConfig     `yaml:"retention"`
	Schedule   ScheduleConfig      `yaml:"schedule"`
	Reminders  ReminderConfig      `yaml:"reminders"`
	Cache      CacheConfig         `yaml:"cache"`
	Server     ServerConfig        `yaml:"server"`
	Tracing    TracingConfig       `yaml:"tracing"`
	Archive    ArchiveConfig       `yaml:"archive"`
	Templates  map[string]Template `yaml:"templates"`
}

// DatabaseConfig configures the Postgres datastore.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// RedisConfig configures the stat cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RabbitMQConfig configures the notification broker.
type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// HypervisorConfig configures the Proxmox-style hypervisor API.
type HypervisorConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	Node             string        `yaml:"node"`
	TokenID          string        `yaml:"token_id"`
	TokenSecret      string        `yaml:"token_secret"`
	InsecureTLS      bool          `yaml:"insecure_tls"`
	TaskPollInterval time.Duration `yaml:"task_poll_interval"`
	BackupStorage    string        `yaml:"backup_storage"`
	// Gateway is denied as an outbound destination for every container.
	Gateway         string `yaml:"gateway"`
	ManagementPorts []int  `yaml:"management_ports"`
}

// ProviderConfig configures a token-authenticated HTTP collaborator.
type ProviderConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}

// IngressConfig configures the DNS/tunnel ingress provider.
type IngressConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Token      string `yaml:"token"`
	BaseDomain string `yaml:"base_domain"`
	PanelPort  int    `yaml:"panel_port"`
}

// BootstrapConfig holds the template credentials used for the one-shot
// remote shell bootstrap of a freshly cloned container.
type BootstrapConfig struct {
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	AdminUser   string        `yaml:"admin_user"`
	Port        int           `yaml:"port"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// PipelineConfig tunes the provisioning pipeline waits.
type PipelineConfig struct {
	AddressAttempts int           `yaml:"address_attempts"`
	AddressDelay    time.Duration `yaml:"address_delay"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
}

// BillingConfig holds metering constants.
type BillingConfig struct {
	// PaidIngressDailyCost is charged per paid ingress binding of an online resource.
	PaidIngressDailyCost   decimal.Decimal `yaml:"paid_ingress_daily_cost"`
	FreeIngressPerResource int             `yaml:"free_ingress_per_resource"`
}

// RetentionConfig bounds the number of point-in-time captures per resource.
type RetentionConfig struct {
	Snapshots int `yaml:"snapshots"`
	Backups   int `yaml:"backups"`
}

// ScheduleConfig holds cron specs for the background triggers.
type ScheduleConfig struct {
	Sweep     string `yaml:"sweep"`
	Backups   string `yaml:"backups"`
	Reminders string `yaml:"reminders"`
}

// ReminderConfig tunes the idle-resource reminder scan.
type ReminderConfig struct {
	IdleAfter time.Duration `yaml:"idle_after"`
	Interval  time.Duration `yaml:"interval"`
}

// CacheConfig holds stat cache TTLs.
type CacheConfig struct {
	ResourceStatsTTL time.Duration `yaml:"resource_stats_ttl"`
	PlatformStatsTTL time.Duration `yaml:"platform_stats_ttl"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	AdminToken string `yaml:"admin_token"`
}

// TracingConfig configures the OTLP trace exporter. Tracing is off when Endpoint is empty.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// ArchiveConfig configures the optional backup manifest archive.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Enabled reports whether manifests should be archived.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != "" && a.Bucket != "" && a.AccessKey != "" && a.SecretKey != ""
}

// Template describes a clonable container template.
type Template struct {
	ID        int             `yaml:"id"`
	DailyCost decimal.Decimal `yaml:"daily_cost"`
	Cores     int             `yaml:"cores"`
	MemoryMB  int             `yaml:"memory_mb"`
	DiskGB    int             `yaml:"disk_gb"`
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Hypervisor.Endpoint == "" {
		return fmt.Errorf("hypervisor.endpoint is required")
	}
	if c.Hypervisor.Node == "" {
		return fmt.Errorf("hypervisor.node is required")
	}
	if c.Hypervisor.TokenID == "" || c.Hypervisor.TokenSecret == "" {
		return fmt.Errorf("hypervisor.token_id and hypervisor.token_secret are required")
	}
	if c.Hypervisor.Gateway == "" {
		return fmt.Errorf("hypervisor.gateway is required")
	}
	if _, err := netip.ParseAddr(c.Hypervisor.Gateway); err != nil {
		return fmt.Errorf("hypervisor.gateway %q is not an IP address", c.Hypervisor.Gateway)
	}
	if c.Retention.Snapshots < 1 {
		return fmt.Errorf("retention.snapshots must be at least 1, got %d", c.Retention.Snapshots)
	}
	if c.Retention.Backups < 1 {
		return fmt.Errorf("retention.backups must be at least 1, got %d", c.Retention.Backups)
	}
	if c.Billing.FreeIngressPerResource < 0 {
		return fmt.Errorf("billing.free_ingress_per_resource cannot be negative")
	}
	if c.Billing.PaidIngressDailyCost.IsNegative() {
		return fmt.Errorf("billing.paid_ingress_daily_cost cannot be negative")
	}
	if c.Pipeline.AddressAttempts < 1 {
		return fmt.Errorf("pipeline.address_attempts must be at least 1")
	}
	if len(c.Templates) == 0 {
		return fmt.Errorf("at least one template is required")
	}
	for name, tmpl := range c.Templates {
		if tmpl.ID <= 0 {
			return fmt.Errorf("template %q: id must be positive", name)
		}
		if tmpl.DailyCost.IsNegative() {
			return fmt.Errorf("template %q: daily_cost cannot be negative", name)
		}
	}
	return nil
}
