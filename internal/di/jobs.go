// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktrader/internal/clientdata"
	"github.com/aristath/stocktrader/internal/config"
	"github.com/aristath/stocktrader/internal/database"
	"github.com/aristath/stocktrader/internal/reliability"
	"github.com/aristath/stocktrader/internal/scheduler"
)

// cacheCleanupSchedule is fixed; expired quotes are never served anyway.
const cacheCleanupSchedule = "@every 15m"

// RegisterJobs creates the maintenance jobs and, when a schedule is
// configured, registers them with a new scheduler. The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{
		Maintenance: reliability.NewDailyMaintenanceJob(map[string]*database.DB{
			"ledger":      container.LedgerDB,
			"client_data": container.ClientDataDB,
		}, cfg.DataDir, log),
		CacheCleanup: clientdata.NewCleanupJob(container.ClientDataRepo, log),
	}

	if cfg.MaintenanceSchedule == "" {
		log.Info().Msg("Maintenance schedule disabled")
		return instances, nil
	}

	sched := scheduler.New(container.Metrics, log)
	if err := sched.AddJob(cfg.MaintenanceSchedule, instances.Maintenance); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", cfg.MaintenanceSchedule, err)
	}
	if err := sched.AddJob(cacheCleanupSchedule, instances.CacheCleanup); err != nil {
		return nil, fmt.Errorf("failed to register cache cleanup: %w", err)
	}
	container.Scheduler = sched

	return instances, nil
}
