package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/nexowatt-vis/internal/audit"
	"github.com/nerrad567/nexowatt-vis/internal/gateway"
	"github.com/nerrad567/nexowatt-vis/internal/points"
)

// maxAuditValueLen bounds the value stored with a write audit entry.
const maxAuditValueLen = 256

// configResponse is served at /config for the dashboard bootstrap.
type configResponse struct {
	Units     map[string]string   `json:"units"`
	Points    []points.Definition `json:"points"`
	Scopes    []scopeInfo         `json:"scopes"`
	Installer installerInfo       `json:"installer"`
}

type scopeInfo struct {
	Name       string `json:"name"`
	Privileged bool   `json:"privileged"`
}

type installerInfo struct {
	Enabled           bool  `json:"enabled"`
	SessionTTLSeconds int64 `json:"sessionTtlSeconds"`
}

// handleConfig returns display units and point metadata.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	units := s.uiCfg.Units
	if units == nil {
		units = map[string]string{}
	}
	scopes := s.resolver.Scopes()
	info := make([]scopeInfo, len(scopes))
	for i, sc := range scopes {
		info[i] = scopeInfo{Name: sc.Name, Privileged: sc.Privileged}
	}
	writeJSON(w, http.StatusOK, configResponse{
		Units:  units,
		Points: s.resolver.Definitions(),
		Scopes: info,
		Installer: installerInfo{
			Enabled:           s.gate.Enabled(),
			SessionTTLSeconds: int64(s.gate.TTL().Seconds()),
		},
	})
}

// handleSnapshot returns the full cache as {key: {value, timestamp}}.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleScopedValues returns {logicalKey: value} for every scoped point.
// Points without a value yet are reported as null.
func (s *Server) handleScopedValues(w http.ResponseWriter, _ *http.Request) {
	var keys []string
	for _, def := range s.resolver.Definitions() {
		if def.Scope != "" {
			keys = append(keys, def.LogicalKey)
		}
	}
	values := s.engine.Values(keys)
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = values[k]
	}
	writeJSON(w, http.StatusOK, out)
}

// writeRequest accepts {scope, key, value, token}. "logicalKey" is an
// alias of key, and the older {id, val} form is accepted with the scope
// taken from the id prefix.
type writeRequest struct {
	Scope      string `json:"scope"`
	Key        string `json:"key"`
	LogicalKey string `json:"logicalKey"`
	ID         string `json:"id"`
	Value      any    `json:"value"`
	Val        any    `json:"val"`
	Token      string `json:"token"`
}

func (req writeRequest) target(r *points.Resolver) (scope, key string) {
	scope = strings.TrimSpace(req.Scope)
	key = strings.TrimSpace(req.Key)
	if key == "" {
		key = strings.TrimSpace(req.LogicalKey)
	}
	if scope != "" || key != "" || req.ID == "" {
		return scope, key
	}

	id := strings.TrimSpace(req.ID)
	if prefix, rest, ok := strings.Cut(id, "."); ok && r.HasScope(prefix) && prefix != points.AppScope {
		return prefix, rest
	}
	return points.AppScope, id
}

func (req writeRequest) value() any {
	if req.Value != nil {
		return req.Value
	}
	return req.Val
}

// handleWrite forwards a value to the external store through the gateway.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status := http.StatusBadRequest
		if isMaxBytesError(err) {
			status = http.StatusRequestEntityTooLarge
		}
		writeFailure(w, status, gateway.ReasonBadRequest)
		return
	}

	scope, key := req.target(s.resolver)
	value := req.value()
	res := s.gateway.Write(r.Context(), scope, key, value, tokenFrom(r, req.Token))

	outcome := "ok"
	if !res.OK {
		outcome = res.Reason
	}
	logKey := res.LogicalKey
	if logKey == "" {
		logKey = key
	}
	s.auditLog(r, &audit.Entry{
		Action:     audit.ActionWrite,
		Scope:      scope,
		Key:        logKey,
		ExternalID: res.ExternalID,
		Value:      auditValue(value),
		Outcome:    outcome,
	})

	if res.Reason == gateway.ReasonInternal {
		s.logger.Error("store write failed",
			"key", res.LogicalKey,
			"external_id", res.ExternalID,
			"error", gateway.ErrorOf(res),
			"request_id", requestIDFrom(r.Context()),
		)
	}

	if !res.OK {
		writeFailure(w, res.Status(), res.Reason)
		return
	}
	writeOK(w)
}

func auditValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	if len(data) > maxAuditValueLen {
		data = data[:maxAuditValueLen]
	}
	return string(data)
}

// isMaxBytesError reports whether err came from the body size limit.
func isMaxBytesError(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
