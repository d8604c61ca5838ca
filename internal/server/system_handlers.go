package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/treasury/internal/database"
	"github.com/aristath/treasury/internal/events"
)

// SystemHandlers serves process and host level status endpoints.
type SystemHandlers struct {
	dataDir      string
	databases    map[string]*database.DB
	eventManager *events.Manager
	startedAt    time.Time
	log          zerolog.Logger
}

// NewSystemHandlers creates system monitoring handlers.
func NewSystemHandlers(dataDir string, databases map[string]*database.DB, eventManager *events.Manager, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		dataDir:      dataDir,
		databases:    databases,
		eventManager: eventManager,
		startedAt:    time.Now(),
		log:          log.With().Str("component", "system_handlers").Logger(),
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	response := map[string]interface{}{
		"uptime_seconds":    int64(time.Since(h.startedAt).Seconds()),
		"cpu_percent":       cpuPercent,
		"ram_percent":       memPercent,
		"goroutines":        runtime.NumGoroutine(),
		"event_subscribers": h.eventManager.SubscriberCount(),
		"data_dir_mb":       h.getDirSize(h.dataDir),
	}

	h.writeJSON(w, response)
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	response := make(map[string]interface{}, len(h.databases))
	for name, db := range h.databases {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Error().Err(err).Str("database", name).Msg("Failed to collect database stats")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		response[name] = map[string]interface{}{
			"size_bytes":     stats.SizeBytes,
			"wal_size_bytes": stats.WALSizeBytes,
			"page_count":     stats.PageCount,
			"page_size":      stats.PageSize,
			"freelist_count": stats.FreelistCount,
		}
	}

	h.writeJSON(w, response)
}

// getSystemStats reads CPU and RAM usage percentages. A 100ms sampling
// interval keeps the status endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
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

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
