package handlers

import (
	"context"
	"errors"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/config"
	"github.com/imamik/leasehold/internal/store"
)

// Migrate handles the migrate command. Only the database section of the
// configuration is required.
func Migrate(ctx context.Context, configPath string) error {
	cfg, err := config.Read(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required (set LEASEHOLD_DATABASE_DSN)")
	}

	st, err := store.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.FromContext(ctx).Info("datastore schema is up to date")
	return nil
}
