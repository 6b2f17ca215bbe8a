package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Refresh       RefreshMetrics   `json:"refresh"`
	Devices       DeviceMetrics    `json:"devices"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// RefreshMetrics summarises the refresh coordinator.
type RefreshMetrics struct {
	Cycles            uint64 `json:"cycles"`
	LastUpdateSuccess bool   `json:"last_update_success"`
	ReauthRequired    bool   `json:"reauth_required"`
	IntervalSeconds   int64  `json:"interval_seconds"`
}

// DeviceMetrics counts the units in the current snapshot.
type DeviceMetrics struct {
	Total      int            `json:"total"`
	Available  int            `json:"available"`
	On         int            `json:"on"`
	ByHVACMode map[string]int `json:"by_hvac_mode"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns a JSON summary of the process and the units.
// Prometheus scrapes /metrics instead.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	st := s.coordinator.Status()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Refresh: RefreshMetrics{
			Cycles:            st.Cycles,
			LastUpdateSuccess: st.LastUpdateSuccess,
			ReauthRequired:    st.ReauthRequired,
			IntervalSeconds:   int64(st.Interval.Seconds()),
		},
	}

	snap := s.coordinator.Snapshot()
	metrics.Devices = DeviceMetrics{
		Total:      len(snap.Devices),
		ByHVACMode: make(map[string]int),
	}
	for _, d := range snap.Devices {
		if snap.Available(d.ID) {
			metrics.Devices.Available++
		}
		if d.On {
			metrics.Devices.On++
		}
		metrics.Devices.ByHVACMode[string(d.HVACMode())]++
	}

	if s.dbStats != nil {
		dbStats := s.dbStats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
