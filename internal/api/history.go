package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/nexowatt-vis/internal/history"
)

type historyResponse struct {
	OK      bool                      `json:"ok"`
	Backend string                    `json:"backend"`
	Start   int64                     `json:"start"`
	End     int64                     `json:"end"`
	Step    int64                     `json:"step"`
	Series  map[string]history.Series `json:"series"`
}

// handleHistory returns averaged series between from and to (Unix ms)
// with a bucket width of step seconds.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.history.Enabled() {
		writeFailure(w, http.StatusServiceUnavailable, "history_unavailable")
		return
	}

	q := r.URL.Query()
	now := time.Now()
	end, err := parseMillis(q.Get("to"), now)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid_to")
		return
	}
	start, err := parseMillis(q.Get("from"), end.Add(-history.DefaultRange))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid_from")
		return
	}
	step := history.DefaultStep
	if v := q.Get("step"); v != "" {
		secs, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil || secs <= 0 || secs > int64(history.MaxStep/time.Second) {
			writeFailure(w, http.StatusBadRequest, "invalid_step")
			return
		}
		step = time.Duration(secs) * time.Second
	}

	res, err := s.history.Query(r.Context(), start, end, step)
	switch {
	case errors.Is(err, history.ErrInvalidRange):
		writeFailure(w, http.StatusBadRequest, "invalid_range")
		return
	case err != nil:
		s.logger.Warn("history query failed", "error", err, "request_id", requestIDFrom(r.Context()))
		writeFailure(w, http.StatusBadGateway, "query_failed")
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{
		OK:      true,
		Backend: s.history.Backend(),
		Start:   res.Start.UnixMilli(),
		End:     res.End.UnixMilli(),
		Step:    int64(res.Step / time.Second),
		Series:  res.Series,
	})
}

func parseMillis(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
