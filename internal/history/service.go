package history

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Query defaults.
const (
	DefaultStep      = time.Minute
	DefaultRange     = 24 * time.Hour
	DefaultMaxPoints = 11000

	// MaxStep is the widest bucket a caller may ask for.
	MaxStep = 366 * 24 * time.Hour
)

// Point is one [unix ms, value] pair.
type Point struct {
	Time  time.Time
	Value float64
}

// MarshalJSON renders the pair as a two-element array.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(p.Time.UnixMilli()), p.Value})
}

// Series is the data for one configured series name.
type Series struct {
	Key    string  `json:"key"`
	Values []Point `json:"values"`
}

// Result is a history query answer.
type Result struct {
	Start  time.Time
	End    time.Time
	Step   time.Duration
	Series map[string]Series
}

// Service queries the configured series.
type Service struct {
	backend   Backend
	series    map[string]string
	maxPoints int
}

// NewService creates a service. series maps display names to logical
// keys. A nil backend yields a service that always returns ErrUnavailable.
func NewService(backend Backend, series map[string]string, maxPoints int) *Service {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	copied := make(map[string]string, len(series))
	for name, key := range series {
		copied[name] = key
	}
	return &Service{backend: backend, series: copied, maxPoints: maxPoints}
}

// Enabled reports whether a backend is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.backend != nil
}

// Backend returns the backend name, or "" when disabled.
func (s *Service) Backend() string {
	if !s.Enabled() {
		return ""
	}
	return s.backend.Name()
}

// Names returns the configured series names, sorted.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Query returns every configured series averaged over step between
// start and end. The step is widened when the range would produce more
// than the point limit.
func (s *Service) Query(ctx context.Context, start, end time.Time, step time.Duration) (Result, error) {
	if !s.Enabled() {
		return Result{}, ErrUnavailable
	}
	if !end.After(start) {
		return Result{}, ErrInvalidRange
	}
	step = s.clampStep(start, end, step)

	res := Result{Start: start, End: end, Step: step, Series: make(map[string]Series, len(s.series))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for name, key := range s.series {
		g.Go(func() error {
			samples, err := s.backend.QueryAverage(gctx, key, start, end, step)
			if err != nil {
				return fmt.Errorf("series %s: %w", name, err)
			}
			values := make([]Point, len(samples))
			for i, smp := range samples {
				values[i] = Point(smp)
			}
			mu.Lock()
			res.Series[name] = Series{Key: key, Values: values}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Service) clampStep(start, end time.Time, step time.Duration) time.Duration {
	if step <= 0 {
		step = DefaultStep
	}
	span := end.Sub(start)
	if n := span / step; n > time.Duration(s.maxPoints) {
		secs := math.Ceil(span.Seconds() / float64(s.maxPoints))
		step = time.Duration(secs) * time.Second
	}
	return step
}
