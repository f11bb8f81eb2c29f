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
	Channels      ChannelMetrics   `json:"channels"`
	Mirror        MirrorMetrics    `json:"mirror"`
	Store         StoreMetrics     `json:"store"`
	Session       SessionMetrics   `json:"session"`
	History       HistoryMetrics   `json:"history"`
	Database      *DatabaseMetrics `json:"database,omitempty"`

	// Components holds the result of each backend health check.
	Components map[string]string `json:"components,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// ChannelMetrics counts open subscriber channels.
type ChannelMetrics struct {
	Connected int `json:"connected"`
}

// MirrorMetrics describes the value cache and ingestion counters.
type MirrorMetrics struct {
	Points    int    `json:"points"`
	Cached    int    `json:"cached"`
	Applied   uint64 `json:"applied"`
	Discarded uint64 `json:"discarded"`
	Started   bool   `json:"started"`
}

// StoreMetrics reports external store connectivity.
type StoreMetrics struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// SessionMetrics reports installer session state. The token is never exposed.
type SessionMetrics struct {
	Enabled bool `json:"enabled"`
	Active  bool `json:"active"`
}

// HistoryMetrics names the active history backend.
type HistoryMetrics struct {
	Backend string `json:"backend,omitempty"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := s.engine.Stats()
	_, active := s.gate.Expiry()

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
		Channels: ChannelMetrics{Connected: s.hub.Count()},
		Mirror: MirrorMetrics{
			Points:    s.resolver.Len(),
			Cached:    s.engine.Len(),
			Applied:   stats.Applied,
			Discarded: stats.Discarded,
			Started:   stats.Started,
		},
		Session: SessionMetrics{Enabled: s.gate.Enabled(), Active: active},
		History: HistoryMetrics{Backend: s.history.Backend()},
	}

	if s.store != nil {
		metrics.Store.Connected = s.store.Connected()
	}
	if s.broker != nil {
		metrics.Store.Subscriptions = s.broker.SubscriptionCount()
	}
	metrics.Components, _ = s.probeComponents(r.Context())

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
