package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/nexowatt-vis/internal/hub"
	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/mqtt"
	"github.com/nerrad567/nexowatt-vis/internal/points"
	"github.com/nerrad567/nexowatt-vis/internal/state"
	"github.com/nerrad567/nexowatt-vis/internal/statestore"
)

// fakeStore is an in-memory external store. Writes are echoed back as
// change notifications, like a real adapter acknowledging a set.
type fakeStore struct {
	mu       sync.Mutex
	values   map[string]state.Change
	readErr  map[string]error
	subErr   map[string]error
	handlers map[string]func(state.Change)
	writes   []state.Change
	writeErr error
	echo     bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		values:   make(map[string]state.Change),
		readErr:  make(map[string]error),
		subErr:   make(map[string]error),
		handlers: make(map[string]func(state.Change)),
		echo:     true,
	}
}

func (s *fakeStore) Subscribe(id string, fn func(state.Change)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.subErr[id]; err != nil {
		return err
	}
	s.handlers[id] = fn
	return nil
}

func (s *fakeStore) ReadCurrent(_ context.Context, id string) (state.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readErr[id]; err != nil {
		return state.Change{}, err
	}
	c, ok := s.values[id]
	if !ok {
		return state.Change{}, fmt.Errorf("%s: %w", id, state.ErrNoValue)
	}
	return c, nil
}

func (s *fakeStore) WriteValue(_ context.Context, id string, value any) error {
	s.mu.Lock()
	if s.writeErr != nil {
		s.mu.Unlock()
		return s.writeErr
	}
	c := state.Change{ExternalID: id, Value: value, Timestamp: time.Now()}
	s.writes = append(s.writes, c)
	echo := s.echo
	s.mu.Unlock()
	if echo {
		s.emit(c)
	}
	return nil
}

func (s *fakeStore) emit(c state.Change) {
	s.mu.Lock()
	s.values[c.ExternalID] = c
	fn := s.handlers[c.ExternalID]
	s.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (s *fakeStore) subscribed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handlers[id]
	return ok
}

// recChannel records frames.
type recChannel struct {
	id     string
	mu     sync.Mutex
	frames []hub.Message
}

func (c *recChannel) ID() string { return c.id }
func (c *recChannel) Close()     {}
func (c *recChannel) Send(data []byte) error {
	var m hub.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, m)
	c.mu.Unlock()
	return nil
}

func (c *recChannel) messages() []hub.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]hub.Message(nil), c.frames...)
}

type recRecorder struct {
	mu      sync.Mutex
	samples map[string][]float64
}

func (r *recRecorder) Record(key string, v float64, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.samples == nil {
		r.samples = make(map[string][]float64)
	}
	r.samples[key] = append(r.samples[key], v)
}

const testPoints = `
points:
  - key: pvPower
    id: inv.0.power
    type: number
  - key: gridOnline
    id: grid.0.online
    type: boolean
  - key: label
    id: site.0.label
    type: string
scopes:
  - name: settings
    points:
      - key: price
        id: settings.0.price
        default: 0.3
  - name: installer
    privileged: true
    points:
      - key: socMin
        id: installer.0.socMin
        default: 10
`

func newTestEngine(t *testing.T, store Store, opts Options) (*Engine, *hub.Hub) {
	t.Helper()
	table, err := points.Parse([]byte(testPoints))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	r, issues := points.NewResolver(table)
	if len(issues) > 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	h := hub.New(nil)
	return New(r, state.NewCache(), h, store, opts), h
}

func TestStart_InitialSnapshot(t *testing.T) {
	store := newFakeStore()
	t0 := time.UnixMilli(1700000000000)
	store.values["inv.0.power"] = state.Change{ExternalID: "inv.0.power", Value: 1500.0, Timestamp: t0}

	e, _ := newTestEngine(t, store, Options{})
	rep, err := e.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if rep.Points != 5 || rep.Subscribed != 5 || rep.Read != 1 || rep.Missing != 4 {
		t.Errorf("Report = %+v", rep)
	}
	for _, id := range []string{"inv.0.power", "grid.0.online", "settings.0.price", "installer.0.socMin"} {
		if !store.subscribed(id) {
			t.Errorf("%s not subscribed", id)
		}
	}

	snap := e.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot = %v, want one key", snap)
	}
	got := snap["pvPower"]
	if got.Value != 1500.0 || !got.Timestamp.Equal(t0) {
		t.Errorf("pvPower = %+v", got)
	}
	if !e.Stats().Started {
		t.Error("Stats().Started = false")
	}
}

func TestStart_PartialFailure(t *testing.T) {
	store := newFakeStore()
	store.readErr["inv.0.power"] = errors.New("timeout")
	store.subErr["grid.0.online"] = errors.New("broker gone")
	store.values["site.0.label"] = state.Change{Value: "Home", Timestamp: time.UnixMilli(1)}

	e, _ := newTestEngine(t, store, Options{})
	rep, err := e.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if rep.Failed != 2 || rep.Read != 1 {
		t.Errorf("Report = %+v", rep)
	}
	if v, ok := e.Snapshot()["label"]; !ok || v.Value != "Home" {
		t.Errorf("label = %+v, %v", v, ok)
	}
}

func TestStart_SeedDefaults(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(t, store, Options{SeedDefaults: true})

	rep, err := e.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Seeded != 2 {
		t.Errorf("Seeded = %d, want 2", rep.Seeded)
	}

	snap := e.Snapshot()
	if snap["settings.price"].Value != 0.3 {
		t.Errorf("settings.price = %+v", snap["settings.price"])
	}
	if snap["installer.socMin"].Value != 10 {
		t.Errorf("installer.socMin = %+v", snap["installer.socMin"])
	}
	if _, ok := snap["pvPower"]; ok {
		t.Error("point without default was seeded")
	}
}

func TestStart_SeedDisabled(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(t, store, Options{})
	if _, err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.writes) != 0 {
		t.Errorf("store received %d writes with seeding off", len(store.writes))
	}
}

func TestStart_Cancelled(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(t, store, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v, want context.Canceled", err)
	}
}

func TestStart_NotificationBeatsInitialRead(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(t, store, Options{})

	// The read result is older than a change that already arrived.
	e.HandleChange(state.Change{ExternalID: "inv.0.power", Value: 1800.0, Timestamp: time.UnixMilli(2000)})
	store.values["inv.0.power"] = state.Change{Value: 1500.0, Timestamp: time.UnixMilli(1000)}

	if _, err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := e.Snapshot()["pvPower"].Value; got != 1800.0 {
		t.Errorf("pvPower = %v, want 1800", got)
	}
}

// retainedClient replays retained payloads synchronously on subscribe,
// the way the broker does for state topics.
type retainedClient struct {
	retained map[string]string
}

func (c retainedClient) SubscribeState(id string, h mqtt.MessageHandler) error {
	if p, ok := c.retained[id]; ok {
		return h("nexowatt/state/"+id, []byte(p))
	}
	return nil
}

func (retainedClient) PublishCommand(string, []byte) error { return nil }
func (retainedClient) IsConnected() bool                   { return true }

func TestStart_RetainedValueBroadcastOnce(t *testing.T) {
	client := retainedClient{retained: map[string]string{
		"inv.0.power": `{"val":1500,"ts":1000}`,
	}}
	e, _ := newTestEngine(t, statestore.NewMQTT(client), Options{ReadTimeout: 10 * time.Millisecond})

	ch := &recChannel{id: "a"}
	if err := e.Admit(ch); err != nil {
		t.Fatal(err)
	}
	rep, err := e.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if rep.Read != 1 {
		t.Errorf("Report = %+v", rep)
	}

	var updates int
	for _, m := range ch.messages() {
		if m.Type == hub.TypeUpdate {
			updates++
		}
	}
	if updates != 1 {
		t.Errorf("got %d updates for one retained value, want 1", updates)
	}
	if got := e.Snapshot()["pvPower"]; got.Value != 1500.0 || got.Timestamp.UnixMilli() != 1000 {
		t.Errorf("pvPower = %+v", got)
	}
	if s := e.Stats(); s.Applied != 1 {
		t.Errorf("Applied = %d, want 1", s.Applied)
	}
}

func TestStart_NullValueNotSeeded(t *testing.T) {
	store := newFakeStore()
	store.values["settings.0.price"] = state.Change{ExternalID: "settings.0.price", Value: nil, Timestamp: time.UnixMilli(1000)}

	e, _ := newTestEngine(t, store, Options{SeedDefaults: true})
	rep, err := e.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Read != 1 || rep.Seeded != 1 {
		t.Errorf("Report = %+v, want price read and only socMin seeded", rep)
	}
	for _, w := range store.writes {
		if w.ExternalID == "settings.0.price" {
			t.Errorf("null value was overwritten with %v", w.Value)
		}
	}
	got, ok := e.Snapshot()["settings.price"]
	if !ok || got.Value != nil {
		t.Errorf("settings.price = %+v, %v, want cached null", got, ok)
	}
}

// Two channels see the update; a third admitted later sees only the
// latest value in its init snapshot.
func TestHandleChange_Broadcast(t *testing.T) {
	store := newFakeStore()
	t0 := time.UnixMilli(1000)
	t1 := time.UnixMilli(2000)
	store.values["inv.0.power"] = state.Change{ExternalID: "inv.0.power", Value: 1500.0, Timestamp: t0}

	e, h := newTestEngine(t, store, Options{})
	if _, err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	a := &recChannel{id: "a"}
	b := &recChannel{id: "b"}
	for _, ch := range []*recChannel{a, b} {
		if err := e.Admit(ch); err != nil {
			t.Fatal(err)
		}
	}

	store.emit(state.Change{ExternalID: "inv.0.power", Value: 1800.0, Timestamp: t1})

	for _, ch := range []*recChannel{a, b} {
		msgs := ch.messages()
		if len(msgs) != 2 {
			t.Fatalf("%s got %d messages, want 2", ch.id, len(msgs))
		}
		if msgs[0].Type != hub.TypeInit || msgs[0].Payload["pvPower"].Value != 1500.0 {
			t.Errorf("%s init = %+v", ch.id, msgs[0])
		}
		up := msgs[1]
		if up.Type != hub.TypeUpdate || len(up.Payload) != 1 {
			t.Fatalf("%s update = %+v", ch.id, up)
		}
		if p := up.Payload["pvPower"]; p.Value != 1800.0 || p.Timestamp.UnixMilli() != t1.UnixMilli() {
			t.Errorf("%s pvPower = %+v", ch.id, p)
		}
	}

	c := &recChannel{id: "c"}
	if err := e.Admit(c); err != nil {
		t.Fatal(err)
	}
	msgs := c.messages()
	if len(msgs) != 1 || msgs[0].Payload["pvPower"].Value != 1800.0 {
		t.Errorf("late channel messages = %+v", msgs)
	}
	if h.Count() != 3 {
		t.Errorf("hub Count() = %d, want 3", h.Count())
	}
}

func TestHandleChange_NoCoalescing(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(t, store, Options{})
	ch := &recChannel{id: "a"}
	if err := e.Admit(ch); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		e.HandleChange(state.Change{ExternalID: "inv.0.power", Value: 100.0, Timestamp: time.UnixMilli(int64(i + 1))})
	}
	msgs := ch.messages()
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want init + 3 updates", len(msgs))
	}
	for i, m := range msgs[1:] {
		if ts := m.Payload["pvPower"].Timestamp.UnixMilli(); ts != int64(i+1) {
			t.Errorf("update %d timestamp = %d, want %d", i, ts, i+1)
		}
	}
}

func TestHandleChange_Unmapped(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(t, store, Options{})
	ch := &recChannel{id: "a"}
	if err := e.Admit(ch); err != nil {
		t.Fatal(err)
	}

	if e.HandleChange(state.Change{ExternalID: "other.0.thing", Value: 1.0}) {
		t.Error("HandleChange() = true for unmapped id")
	}
	if len(ch.messages()) != 1 {
		t.Error("unmapped change was broadcast")
	}
	if s := e.Stats(); s.Discarded != 1 || s.Applied != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestHandleChange_Records(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(t, store, Options{})
	rec := &recRecorder{}
	e.SetRecorder(rec)

	e.HandleChange(state.Change{ExternalID: "inv.0.power", Value: 1500.0, Timestamp: time.Now()})
	e.HandleChange(state.Change{ExternalID: "grid.0.online", Value: true, Timestamp: time.Now()})
	e.HandleChange(state.Change{ExternalID: "site.0.label", Value: "Home", Timestamp: time.Now()})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if got := rec.samples["pvPower"]; len(got) != 1 || got[0] != 1500 {
		t.Errorf("pvPower samples = %v", got)
	}
	if got := rec.samples["gridOnline"]; len(got) != 1 || got[0] != 1 {
		t.Errorf("gridOnline samples = %v", got)
	}
	if _, ok := rec.samples["label"]; ok {
		t.Error("string value was recorded")
	}
}

func TestValues(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(t, store, Options{})
	e.HandleChange(state.Change{ExternalID: "settings.0.price", Value: 0.25, Timestamp: time.Now()})

	got := e.Values([]string{"settings.price", "installer.socMin"})
	if len(got) != 1 || got["settings.price"] != 0.25 {
		t.Errorf("Values() = %v", got)
	}
}

// Concurrent admissions and changes must never deliver an update before init.
func TestAdmit_InitBeforeUpdate(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(t, store, Options{})

	var wg sync.WaitGroup
	chans := make([]*recChannel, 20)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			e.HandleChange(state.Change{ExternalID: "inv.0.power", Value: float64(i), Timestamp: time.UnixMilli(int64(i + 1))})
		}
	}()
	for i := range chans {
		chans[i] = &recChannel{id: fmt.Sprintf("c%d", i)}
		wg.Add(1)
		go func(ch *recChannel) {
			defer wg.Done()
			if err := e.Admit(ch); err != nil {
				t.Error(err)
			}
		}(chans[i])
	}
	wg.Wait()

	for _, ch := range chans {
		msgs := ch.messages()
		if len(msgs) == 0 || msgs[0].Type != hub.TypeInit {
			t.Fatalf("%s first message not init", ch.id)
		}
		last := int64(0)
		if p, ok := msgs[0].Payload["pvPower"]; ok {
			last = p.Timestamp.UnixMilli()
		}
		for _, m := range msgs[1:] {
			if m.Type != hub.TypeUpdate {
				t.Fatalf("%s got %q after init", ch.id, m.Type)
			}
			ts := m.Payload["pvPower"].Timestamp.UnixMilli()
			if ts <= last {
				t.Fatalf("%s update %d not after %d", ch.id, ts, last)
			}
			last = ts
		}
	}
}
