package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu    sync.Mutex
	data  map[string][]Sample
	err   error
	steps []time.Duration
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) QueryAverage(_ context.Context, key string, _, _ time.Time, step time.Duration) ([]Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, step)
	if f.err != nil {
		return nil, f.err
	}
	return f.data[key], nil
}

func TestQuery(t *testing.T) {
	t0 := time.UnixMilli(1700000000000)
	b := &fakeBackend{data: map[string][]Sample{
		"pvPower": {{Time: t0, Value: 1200}, {Time: t0.Add(time.Minute), Value: 1300}},
		"soc":     {{Time: t0, Value: 55}},
	}}
	svc := NewService(b, map[string]string{"pv": "pvPower", "soc": "soc", "load": "loadPower"}, 0)

	res, err := svc.Query(context.Background(), t0, t0.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Step != DefaultStep {
		t.Errorf("Step = %v, want %v", res.Step, DefaultStep)
	}
	if len(res.Series) != 3 {
		t.Fatalf("series = %v", res.Series)
	}
	pv := res.Series["pv"]
	if pv.Key != "pvPower" || len(pv.Values) != 2 || pv.Values[1].Value != 1300 {
		t.Errorf("pv = %+v", pv)
	}
	if load := res.Series["load"]; len(load.Values) != 0 {
		t.Errorf("load = %+v", load)
	}

	data, err := json.Marshal(pv)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"key":"pvPower","values":[[1700000000000,1200],[1700000060000,1300]]}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestQuery_ClampsStep(t *testing.T) {
	b := &fakeBackend{}
	svc := NewService(b, map[string]string{"pv": "pvPower"}, 100)

	start := time.Unix(0, 0)
	res, err := svc.Query(context.Background(), start, start.Add(24*time.Hour), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	// 86400s / 100 points = 864s.
	if res.Step != 864*time.Second {
		t.Errorf("Step = %v, want 864s", res.Step)
	}
}

func TestQuery_Errors(t *testing.T) {
	now := time.Now()

	var disabled *Service
	if _, err := disabled.Query(context.Background(), now, now.Add(time.Hour), 0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("nil service error = %v", err)
	}
	if _, err := NewService(nil, nil, 0).Query(context.Background(), now, now.Add(time.Hour), 0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("no backend error = %v", err)
	}

	svc := NewService(&fakeBackend{}, map[string]string{"pv": "pvPower"}, 0)
	if _, err := svc.Query(context.Background(), now, now, 0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("empty range error = %v", err)
	}

	boom := errors.New("boom")
	svc = NewService(&fakeBackend{err: boom}, map[string]string{"pv": "pvPower"}, 0)
	if _, err := svc.Query(context.Background(), now, now.Add(time.Hour), 0); !errors.Is(err, boom) {
		t.Errorf("backend error = %v", err)
	}
}

func TestService_Names(t *testing.T) {
	svc := NewService(&fakeBackend{}, map[string]string{"soc": "soc", "buy": "gridBuy", "pv": "pvPower"}, 0)
	got := svc.Names()
	want := []string{"buy", "pv", "soc"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if svc.Backend() != "fake" {
		t.Errorf("Backend() = %q", svc.Backend())
	}
}

type recWriter struct {
	keys []string
}

func (w *recWriter) WriteValue(key string, _ float64, _ time.Time) {
	w.keys = append(w.keys, key)
}

func TestRecorder(t *testing.T) {
	a, b := &recWriter{}, &recWriter{}
	r := NewRecorder(a, nil, b)
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	r.Record("pvPower", 1, time.Now())
	if len(a.keys) != 1 || len(b.keys) != 1 {
		t.Errorf("writes = %v / %v", a.keys, b.keys)
	}
}
