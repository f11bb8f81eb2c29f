package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/nexowatt-vis/internal/audit"
	"github.com/nerrad567/nexowatt-vis/internal/gateway"
	"github.com/nerrad567/nexowatt-vis/internal/history"
	"github.com/nerrad567/nexowatt-vis/internal/hub"
	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/config"
	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/database"
	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/logging"
	"github.com/nerrad567/nexowatt-vis/internal/mirror"
	"github.com/nerrad567/nexowatt-vis/internal/points"
	"github.com/nerrad567/nexowatt-vis/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StoreStatus reports external store connectivity.
type StoreStatus interface {
	Connected() bool
}

// HealthChecker is a backend probed by /api/health and /api/metrics.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SubscriptionCounter reports how many broker subscriptions are active.
type SubscriptionCounter interface {
	SubscriptionCount() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	SSE       config.SSEConfig
	UI        config.UIConfig
	Logger    *logging.Logger
	Engine    *mirror.Engine
	Hub       *hub.Hub
	Resolver  *points.Resolver
	Gateway   *gateway.Gateway
	Gate      *session.Gate
	History   *history.Service         // optional
	AuditRepo audit.Repository         // optional
	Store     StoreStatus              // optional
	DB        *database.DB             // optional, metrics only
	Broker    SubscriptionCounter      // optional
	Checks    map[string]HealthChecker // optional, keyed by component name
	Assets    http.Handler             // optional dashboard files
	Version   string
}

// Server is the HTTP surface: dashboard assets, REST calls and the two
// subscriber channel transports.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	sseCfg    config.SSEConfig
	uiCfg     config.UIConfig
	logger    *logging.Logger
	engine    *mirror.Engine
	hub       *hub.Hub
	resolver  *points.Resolver
	gateway   *gateway.Gateway
	gate      *session.Gate
	history   *history.Service
	auditRepo audit.Repository
	store     StoreStatus
	db        *database.DB
	broker    SubscriptionCounter
	checks    map[string]HealthChecker
	assets    http.Handler
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	auditCh  chan *audit.Entry
	auditWG  sync.WaitGroup
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("mirror engine is required")
	case deps.Hub == nil:
		return nil, fmt.Errorf("hub is required")
	case deps.Resolver == nil:
		return nil, fmt.Errorf("resolver is required")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("write gateway is required")
	case deps.Gate == nil:
		return nil, fmt.Errorf("session gate is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		sseCfg:    deps.SSE,
		uiCfg:     deps.UI,
		logger:    deps.Logger,
		engine:    deps.Engine,
		hub:       deps.Hub,
		resolver:  deps.Resolver,
		gateway:   deps.Gateway,
		gate:      deps.Gate,
		history:   deps.History,
		auditRepo: deps.AuditRepo,
		store:     deps.Store,
		db:        deps.DB,
		broker:    deps.Broker,
		checks:    deps.Checks,
		assets:    deps.Assets,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.Entry, auditChanSize)
	}
	return s, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The listener is bound before Start returns so port errors surface here.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.auditCh != nil {
		s.auditWG.Add(1)
		go func() {
			defer s.auditWG.Done()
			s.drainAuditLog(srvCtx)
		}()
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
		BaseContext:       func(net.Listener) context.Context { return srvCtx },
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close closes every subscriber channel, then waits up to 10 seconds for
// in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Streaming handlers only return once their channel closes.
	s.hub.Close()
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.auditWG.Wait()
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
