package handlers

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/config"
	"github.com/imamik/leasehold/internal/engine"
	"github.com/imamik/leasehold/internal/platform/cache"
	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/platform/ingress"
	"github.com/imamik/leasehold/internal/platform/notify"
	"github.com/imamik/leasehold/internal/platform/s3"
	"github.com/imamik/leasehold/internal/platform/ssh"
	"github.com/imamik/leasehold/internal/platform/vpn"
	"github.com/imamik/leasehold/internal/store"
)

// runtime holds the engine and the connections it was built from.
type runtime struct {
	cfg     *config.Config
	store   *store.Store
	engine  *engine.Engine
	closers []func() error
}

// Close releases connections in reverse order of creation.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	return errors.Join(errs...)
}

// openStore connects to the datastore and migrates the schema when enabled.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (*store.Store, error) {
	st, err := store.Open(cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := st.AutoMigrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		log.FromContext(ctx).Info("datastore schema migrated")
	}
	return st, nil
}

// buildRuntime connects every collaborator and creates the engine. Required
// collaborators (datastore, hypervisor, remote shell) fail the build.
// Optional ones are skipped when unconfigured; the cache and the broker are
// also skipped when unreachable, which disables their features.
func buildRuntime(ctx context.Context, cfg *config.Config, tp trace.TracerProvider) (*runtime, error) {
	logger := log.FromContext(ctx)

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, store: st, closers: []func() error{st.Close}}

	hv, err := hypervisor.NewClient(hypervisor.Config{
		Endpoint:         cfg.Hypervisor.Endpoint,
		Node:             cfg.Hypervisor.Node,
		TokenID:          cfg.Hypervisor.TokenID,
		TokenSecret:      cfg.Hypervisor.TokenSecret,
		InsecureTLS:      cfg.Hypervisor.InsecureTLS,
		BackupStorage:    cfg.Hypervisor.BackupStorage,
		TaskPollInterval: cfg.Hypervisor.TaskPollInterval,
	}, nil)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to create hypervisor client: %w", err)
	}

	deps := engine.Dependencies{
		Store:      st,
		Hypervisor: hv,
		Shell: ssh.NewClient(ssh.Config{
			Port:       cfg.Bootstrap.Port,
			MaxRetries: cfg.Bootstrap.MaxAttempts,
			RetryDelay: cfg.Bootstrap.RetryDelay,
		}, nil),
		Timeouts:       config.LoadTimeouts(),
		TracerProvider: tp,
	}

	if cfg.VPN.Endpoint != "" {
		c, err := vpn.NewClient(cfg.VPN.Endpoint, cfg.VPN.Token, nil)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to create VPN client: %w", err)
		}
		deps.VPN = c
	} else {
		logger.Info("VPN provider not configured, client configs will not be issued")
	}

	if cfg.Ingress.Endpoint != "" {
		c, err := ingress.NewClient(cfg.Ingress.Endpoint, cfg.Ingress.Token, nil)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to create ingress client: %w", err)
		}
		deps.Ingress = c
	} else {
		logger.Info("ingress provider not configured, hostnames will not be published")
	}

	if cfg.RabbitMQ.URL != "" {
		p, err := notify.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.Error(err, "notification broker unreachable, notifications disabled")
		} else {
			deps.Notifier = p
			rt.closers = append(rt.closers, p.Close)
		}
	}

	if cfg.Redis.Addr != "" {
		c, err := cache.New(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   "leasehold:",
		})
		if err != nil {
			logger.Error(err, "stat cache unreachable, stats will not be cached")
		} else {
			deps.Cache = c
			rt.closers = append(rt.closers, c.Close)
		}
	}

	if cfg.Archive.Enabled() {
		a := cfg.Archive
		c, err := s3.NewClient(ctx, a.Endpoint, a.Region, a.Bucket, a.AccessKey, a.SecretKey)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to create archive client: %w", err)
		}
		if err := c.EnsureBucket(ctx); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to prepare archive bucket: %w", err)
		}
		deps.Archive = c
	}

	eng, err := engine.New(cfg, deps)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.engine = eng
	return rt, nil
}
