package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/stocktrader/internal/database"
	"github.com/aristath/stocktrader/internal/di"
	"github.com/aristath/stocktrader/internal/scheduler"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	container   *di.Container

	mu              sync.RWMutex
	maintenanceJob  scheduler.Job
	cacheCleanupJob scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string, container *di.Container) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		container:   container,
	}
}

// SetJobs registers job instances for manual triggering
func (h *SystemHandlers) SetJobs(maintenance, cacheCleanup scheduler.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maintenanceJob = maintenance
	h.cacheCleanupJob = cacheCleanup
}

// DatabaseStatus is the per-database part of the status response
type DatabaseStatus struct {
	SizeBytes    int64 `json:"size_bytes"`
	WALSizeBytes int64 `json:"wal_size_bytes"`
	PageCount    int64 `json:"page_count"`
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status        string                    `json:"status"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	DataDir       string                    `json:"data_dir"`
	Schema        string                    `json:"schema"`
	CPUPercent    float64                   `json:"cpu_percent"`
	MemoryPercent float64                   `json:"memory_percent"`
	Databases     map[string]DatabaseStatus `json:"databases"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		DataDir:       h.dataDir,
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Databases:     make(map[string]DatabaseStatus),
	}
	if h.container.Migration != nil {
		response.Schema = string(h.container.Migration.To)
	}

	for name, db := range map[string]*database.DB{
		"ledger":      h.container.LedgerDB,
		"client_data": h.container.ClientDataDB,
	} {
		if db == nil {
			continue
		}
		stats, err := db.GetStats(r.Context())
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to read database stats")
			response.Status = "degraded"
			continue
		}
		response.Databases[name] = DatabaseStatus{
			SizeBytes:    stats.SizeBytes,
			WALSizeBytes: stats.WALSizeBytes,
			PageCount:    stats.PageCount,
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleTriggerMaintenance runs the daily maintenance job immediately
// POST /api/jobs/maintenance
func (h *SystemHandlers) HandleTriggerMaintenance(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	job := h.maintenanceJob
	h.mu.RUnlock()
	h.trigger(w, job)
}

// HandleTriggerCacheCleanup removes expired quotes immediately
// POST /api/jobs/cache-cleanup
func (h *SystemHandlers) HandleTriggerCacheCleanup(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	job := h.cacheCleanupJob
	h.mu.RUnlock()
	h.trigger(w, job)
}

func (h *SystemHandlers) trigger(w http.ResponseWriter, job scheduler.Job) {
	if job == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "Job not registered",
		})
		return
	}

	h.log.Info().Str("job", job.Name()).Msg("Manual job run triggered")

	var err error
	if h.container.Scheduler != nil {
		err = h.container.Scheduler.RunNow(job)
	} else {
		err = job.Run()
	}
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"job":     job.Name(),
			"message": err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"job":    job.Name(),
	})
}

// getSystemStats calculates CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// 100ms sample keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
