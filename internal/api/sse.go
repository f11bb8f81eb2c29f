package api

import (
	"fmt"
	"net/http"
	"time"
)

// handleEvents streams hub messages as Server-Sent Events. Each message
// is one "data:" event; comment lines keep idle proxies from closing the
// stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	// The server-wide write timeout would cut the stream.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("sse: clearing write deadline not supported", "error", err)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("sse: streaming not supported", "error", err)
		return
	}

	ch := newQueueChannel("sse", s.sseCfg.SendBuffer)
	if err := s.engine.Admit(ch); err != nil {
		s.logger.Debug("sse: admission failed", "error", err)
		return
	}
	defer func() {
		s.engine.Evict(ch)
		s.logger.Debug("sse channel closed", "channel_id", ch.ID(), "open_ms", ch.Age().Milliseconds())
	}()

	s.logger.Debug("sse channel opened", "channel_id", ch.ID(), "remote_addr", r.RemoteAddr)

	keepAlive := time.Duration(s.sseCfg.KeepAlive) * time.Second
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	writeTimeout := time.Duration(s.sseCfg.WriteTimeout) * time.Second

	write := func(format string, args ...any) error {
		if writeTimeout > 0 {
			//nolint:errcheck // Best-effort deadline; write error caught below
			rc.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		if _, err := fmt.Fprintf(w, format, args...); err != nil {
			return err
		}
		return rc.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch.Done():
			return
		case msg := <-ch.send:
			if err := write("data: %s\n\n", msg); err != nil {
				s.logger.Debug("sse write failed", "channel_id", ch.ID(), "error", err)
				return
			}
		case <-ticker.C:
			if err := write(": keepalive\n\n"); err != nil {
				return
			}
		}
	}
}
