// Package reliability keeps the SQLite databases healthy between requests.
package reliability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/stocktrader/internal/database"
)

// minFreeBytes is the free space below which maintenance fails loudly.
const minFreeBytes = 500 * 1000 * 1000

// DiskUsageFunc reports free bytes on the filesystem holding path.
type DiskUsageFunc func(path string) (uint64, error)

func gopsutilFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// DailyMaintenanceJob performs daily database maintenance
type DailyMaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	diskFree  DiskUsageFunc
	timeout   time.Duration
	log       zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job
func NewDailyMaintenanceJob(databases map[string]*database.DB, dataDir string, log zerolog.Logger) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		diskFree:  gopsutilFree,
		timeout:   5 * time.Minute,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the daily maintenance job
func (j *DailyMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	names := make([]string, 0, len(j.databases))
	for name := range j.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	// Step 1: Integrity check; corruption cannot be repaired automatically
	for _, name := range names {
		if err := j.databases[name].HealthCheck(ctx); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("CRITICAL: Database integrity check failed")
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
	}

	// Step 2: WAL checkpoint for all databases (prevent bloat)
	for _, name := range names {
		if err := j.databases[name].WALCheckpoint(ctx, "TRUNCATE"); err != nil {
			// Not critical, a busy reader just delays the truncate
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	// Step 3: Check disk space
	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	// Step 4: Record sizes
	for _, name := range names {
		stats, err := j.databases[name].GetStats(ctx)
		if err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("Failed to read database stats")
			continue
		}
		j.log.Info().
			Str("database", name).
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_bytes", stats.WALSizeBytes).
			Int64("free_pages", stats.FreelistCount).
			Msg("Database stats")
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed successfully")

	return nil
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// checkDiskSpace verifies sufficient disk space is available
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	if j.dataDir == "" {
		return nil
	}

	free, err := j.diskFree(j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Str("dir", j.dataDir).Msg("Failed to read disk usage")
		return nil
	}

	availableGB := float64(free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	if free < minFreeBytes {
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free in %s", availableGB, j.dataDir)
	}
	return nil
}
