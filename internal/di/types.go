/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server and the CLI.
 */
package di

import (
	"github.com/aristath/stocktrader/internal/clientdata"
	"github.com/aristath/stocktrader/internal/clients/yahoo"
	"github.com/aristath/stocktrader/internal/database"
	"github.com/aristath/stocktrader/internal/metrics"
	"github.com/aristath/stocktrader/internal/modules/ledger"
	"github.com/aristath/stocktrader/internal/reliability"
	"github.com/aristath/stocktrader/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: ledger (positions) and client_data (quote cache)
 * - Clients: Yahoo chart API price oracle
 * - Repositories: positions, cached quotes
 * - Services: ledger service
 */
type Container struct {
	// Databases
	LedgerDB     *database.DB
	ClientDataDB *database.DB

	// Result of the startup schema migration
	Migration *database.MigrationResult

	Metrics *metrics.Registry

	// Repositories
	PositionRepo   *ledger.PositionRepository
	ClientDataRepo *clientdata.Repository

	// Clients
	PriceClient *yahoo.Client

	// Services
	LedgerService *ledger.Service

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered background jobs for manual triggering
type JobInstances struct {
	Maintenance  *reliability.DailyMaintenanceJob
	CacheCleanup *clientdata.CleanupJob
}

// Close stops the scheduler and closes every database. Safe on a partially built container.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.Scheduler != nil {
		c.Scheduler.Stop()
		c.Scheduler = nil
	}

	var firstErr error
	for _, db := range []*database.DB{c.LedgerDB, c.ClientDataDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.LedgerDB = nil
	c.ClientDataDB = nil
	return firstErr
}
