package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// healthProbeTimeout bounds each backend health check.
const healthProbeTimeout = 2 * time.Second

// probeComponents runs every registered backend check. It returns a
// status per component ("ok" or the error text) and whether all passed.
func (s *Server) probeComponents(ctx context.Context) (map[string]string, bool) {
	if len(s.checks) == 0 {
		return nil, true
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		err := s.checks[name].HealthCheck(cctx)
		cancel()
		if err != nil {
			out[name] = err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	return out, healthy
}

// handleHealth returns the server health status. Any failing component
// or a disconnected store makes the status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components, healthy := s.probeComponents(r.Context())

	status := "ok"
	if !healthy || (s.store != nil && !s.store.Connected()) {
		status = "degraded"
	}

	body := map[string]any{
		"status":  status,
		"version": s.version,
	}
	if components != nil {
		body["components"] = components
	}
	writeJSON(w, http.StatusOK, body)
}
