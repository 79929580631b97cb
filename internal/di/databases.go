// Package di provides dependency injection for database connections.
package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktrader/internal/config"
	"github.com/aristath/stocktrader/internal/database"
	"github.com/aristath/stocktrader/internal/metrics"
)

// InitializeDatabases opens both databases, applies the cache schema and
// brings the ledger to the current schema. No ledger operation may run before
// this returns successfully.
func InitializeDatabases(cfg *config.Config, m *metrics.Registry, log zerolog.Logger) (*Container, error) {
	container := &Container{Metrics: m}

	// 1. Ledger - positions; durability over speed
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerDBPath,
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	// 2. client_data - quote cache; safe to lose
	clientDataDB, err := database.New(database.Config{
		Path:    cfg.ClientDataDBPath,
		Profile: database.ProfileCache,
		Name:    "client_data",
	})
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to initialize client_data database: %w", err)
	}
	container.ClientDataDB = clientDataDB

	if err := clientDataDB.Migrate(); err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to apply client_data schema: %w", err)
	}

	migrator := database.NewMigrator(ledgerDB.Conn(), cfg.DefaultUserID, log)
	result, err := migrator.Run(context.Background())
	if err != nil {
		_ = container.Close()
		return nil, err
	}
	container.Migration = result
	m.ObserveMigration(result.RowsMigrated)

	log.Info().
		Str("ledger", ledgerDB.Path()).
		Str("client_data", clientDataDB.Path()).
		Str("schema", string(result.To)).
		Msg("Databases initialized")

	return container, nil
}
