package mirror

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/nexowatt-vis/internal/hub"
	"github.com/nerrad567/nexowatt-vis/internal/points"
	"github.com/nerrad567/nexowatt-vis/internal/state"
)

// Defaults for Options.
const (
	DefaultReadTimeout     = 3 * time.Second
	DefaultReadConcurrency = 8
)

// Store is the capability set the engine needs from the external store.
type Store interface {
	// Subscribe registers fn for future changes of externalID.
	Subscribe(externalID string, fn func(state.Change)) error

	// ReadCurrent returns the current value of externalID, or an error
	// wrapping state.ErrNoValue when it has none.
	ReadCurrent(ctx context.Context, externalID string) (state.Change, error)

	// WriteValue asks the store to set externalID to value.
	WriteValue(ctx context.Context, externalID string, value any) error
}

// Recorder receives numeric values for time-series storage.
type Recorder interface {
	Record(key string, value float64, ts time.Time)
}

// Logger is the subset of logging the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options tunes startup behaviour.
type Options struct {
	ReadTimeout     time.Duration
	ReadConcurrency int

	// SeedDefaults writes a point's configured default to the store when
	// the initial read finds no value.
	SeedDefaults bool
}

// Report summarises a Start run.
type Report struct {
	Points     int
	Subscribed int
	Read       int
	Missing    int
	Seeded     int
	Failed     int
}

// Stats are running counters for metrics.
type Stats struct {
	Applied   uint64 `json:"applied"`
	Discarded uint64 `json:"discarded"`
	Started   bool   `json:"started"`
}

// Engine owns the cache and is the only writer to it.
type Engine struct {
	resolver *points.Resolver
	cache    *state.Cache
	hub      *hub.Hub
	store    Store
	opts     Options

	logger   Logger
	recorder Recorder

	// mu orders cache updates with their broadcast and with admissions.
	mu sync.Mutex

	applied   atomic.Uint64
	discarded atomic.Uint64
	started   atomic.Bool
}

// New creates an engine. The cache and hub must not be written by anyone else.
func New(resolver *points.Resolver, cache *state.Cache, h *hub.Hub, store Store, opts Options) *Engine {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.ReadConcurrency <= 0 {
		opts.ReadConcurrency = DefaultReadConcurrency
	}
	return &Engine{
		resolver: resolver,
		cache:    cache,
		hub:      h,
		store:    store,
		opts:     opts,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger. Call before Start.
func (e *Engine) SetLogger(l Logger) {
	if l != nil {
		e.logger = l
	}
}

// SetRecorder sets the time-series recorder. Call before Start.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// Start subscribes to every mapped point and performs one read of each.
// Per-point failures are logged and counted; Start only returns an error
// when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) (Report, error) {
	defs := e.resolver.Definitions()
	rep := Report{Points: len(defs)}

	for _, def := range defs {
		if err := e.store.Subscribe(def.ID, e.handle); err != nil {
			rep.Failed++
			e.logger.Warn("subscribe failed", "key", def.LogicalKey, "external_id", def.ID, "error", err)
			continue
		}
		rep.Subscribed++
	}

	var mu sync.Mutex
	count := func(f func(*Report)) {
		mu.Lock()
		f(&rep)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ReadConcurrency)
	for _, def := range defs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcome := e.initialRead(gctx, def)
			count(func(r *Report) {
				switch outcome {
				case readOK:
					r.Read++
				case readMissing:
					r.Missing++
				case readSeeded:
					r.Missing++
					r.Seeded++
				case readFailed:
					r.Failed++
				}
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, fmt.Errorf("initial read: %w", err)
	}

	e.started.Store(true)
	e.logger.Info("mirror started",
		"points", rep.Points,
		"subscribed", rep.Subscribed,
		"read", rep.Read,
		"missing", rep.Missing,
		"seeded", rep.Seeded,
		"failed", rep.Failed,
	)
	return rep, nil
}

type readOutcome int

const (
	readOK readOutcome = iota
	readMissing
	readSeeded
	readFailed
)

func (e *Engine) initialRead(ctx context.Context, def points.Definition) readOutcome {
	rctx, cancel := context.WithTimeout(ctx, e.opts.ReadTimeout)
	defer cancel()

	c, err := e.store.ReadCurrent(rctx, def.ID)
	switch {
	case err == nil:
		e.applyInitial(def.LogicalKey, c)
		return readOK
	case errors.Is(err, state.ErrNoValue):
		if e.opts.SeedDefaults && def.HasDefault() {
			return e.seed(ctx, def)
		}
		e.logger.Debug("no initial value", "key", def.LogicalKey, "external_id", def.ID)
		return readMissing
	default:
		e.logger.Warn("initial read failed", "key", def.LogicalKey, "external_id", def.ID, "error", err)
		return readFailed
	}
}

// seed writes the default; the store's change notification fills the cache.
func (e *Engine) seed(ctx context.Context, def points.Definition) readOutcome {
	wctx, cancel := context.WithTimeout(ctx, e.opts.ReadTimeout)
	defer cancel()
	if err := e.store.WriteValue(wctx, def.ID, def.Default); err != nil {
		e.logger.Warn("seeding default failed", "key", def.LogicalKey, "external_id", def.ID, "error", err)
		return readMissing
	}
	e.logger.Info("seeded default", "key", def.LogicalKey, "external_id", def.ID)
	return readSeeded
}

// applyInitial stores a read result unless a newer notification already
// landed, and broadcasts it when stored. A read that returns the entry a
// notification already delivered is not broadcast again.
func (e *Engine) applyInitial(key string, c state.Change) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}

	e.mu.Lock()
	if cur, ok := e.cache.Get(key); ok && cur.Timestamp.Equal(c.Timestamp) && reflect.DeepEqual(cur.Value, c.Value) {
		e.mu.Unlock()
		return
	}
	entry, stored := e.cache.SetIfNewer(key, c.Value, c.Timestamp)
	if stored {
		e.hub.Publish(key, entry)
	}
	e.mu.Unlock()

	if stored {
		e.applied.Add(1)
		e.record(key, entry)
	}
}

func (e *Engine) handle(c state.Change) {
	e.HandleChange(c)
}

// HandleChange applies one notification from the store. Unmapped ids are
// discarded and HandleChange returns false.
func (e *Engine) HandleChange(c state.Change) bool {
	key, ok := e.resolver.Reverse(c.ExternalID)
	if !ok {
		e.discarded.Add(1)
		return false
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}

	e.mu.Lock()
	entry := e.cache.Set(key, c.Value, c.Timestamp)
	e.hub.Publish(key, entry)
	e.mu.Unlock()

	e.applied.Add(1)
	e.record(key, entry)
	return true
}

func (e *Engine) record(key string, entry state.Entry) {
	if e.recorder == nil {
		return
	}
	switch v := entry.Value.(type) {
	case float64:
		e.recorder.Record(key, v, entry.Timestamp)
	case int:
		e.recorder.Record(key, float64(v), entry.Timestamp)
	case int64:
		e.recorder.Record(key, float64(v), entry.Timestamp)
	case bool:
		f := 0.0
		if v {
			f = 1.0
		}
		e.recorder.Record(key, f, entry.Timestamp)
	}
}

// Admit registers ch with the hub, sending it the current snapshot first.
func (e *Engine) Admit(ch hub.Channel) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hub.Admit(ch, e.cache.All())
}

// Evict removes ch from the hub.
func (e *Engine) Evict(ch hub.Channel) {
	e.hub.Evict(ch)
}

// Snapshot returns a copy of the cache.
func (e *Engine) Snapshot() map[string]state.Entry {
	return e.cache.All()
}

// Values returns a copy of the cached values for keys.
func (e *Engine) Values(keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if entry, ok := e.cache.Get(k); ok {
			out[k] = entry.Value
		}
	}
	return out
}

// Len returns the number of cached keys.
func (e *Engine) Len() int {
	return e.cache.Len()
}

// Stats returns running counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Applied:   e.applied.Load(),
		Discarded: e.discarded.Load(),
		Started:   e.started.Load(),
	}
}
