package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/nexowatt-vis/internal/state"
)

// fakeChannel records frames and can be told to fail.
type fakeChannel struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	fail   error
	closes int
}

func newFake(id string) *fakeChannel { return &fakeChannel{id: id} }

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
}

func (f *fakeChannel) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func (f *fakeChannel) messages(t *testing.T) []Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, 0, len(f.frames))
	for _, raw := range f.frames {
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("bad frame %s: %v", raw, err)
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func TestAdmit_SendsInitFirst(t *testing.T) {
	h := New(nil)
	snap := map[string]state.Entry{
		"pvPower": {Value: 1500.0, Timestamp: time.UnixMilli(1000)},
	}

	ch := newFake("a")
	if err := h.Admit(ch, snap); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	h.Publish("pvPower", state.Entry{Value: 1800.0, Timestamp: time.UnixMilli(2000)})

	msgs := ch.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Type != TypeInit {
		t.Errorf("first message type = %q, want init", msgs[0].Type)
	}
	if got := msgs[0].Payload["pvPower"]; got.Value != 1500.0 || got.Timestamp.UnixMilli() != 1000 {
		t.Errorf("init payload = %+v", got)
	}
	if msgs[1].Type != TypeUpdate || msgs[1].Payload["pvPower"].Value != 1800.0 {
		t.Errorf("second message = %+v", msgs[1])
	}
}

func TestAdmit_NilSnapshotIsEmptyObject(t *testing.T) {
	h := New(nil)
	ch := newFake("a")
	if err := h.Admit(ch, nil); err != nil {
		t.Fatal(err)
	}
	ch.mu.Lock()
	got := string(ch.frames[0])
	ch.mu.Unlock()
	if got != `{"type":"init","payload":{}}` {
		t.Errorf("init frame = %s", got)
	}
}

func TestAdmit_InitFailureNotRegistered(t *testing.T) {
	h := New(nil)
	ch := newFake("a")
	ch.setFail(ErrChannelClosed)

	err := h.Admit(ch, nil)
	if !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Admit() error = %v, want ErrChannelClosed", err)
	}
	if h.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.Count())
	}
	if ch.closeCount() != 1 {
		t.Errorf("channel closed %d times, want 1", ch.closeCount())
	}
}

func TestPublish_Completeness(t *testing.T) {
	h := New(nil)
	chans := make([]*fakeChannel, 5)
	for i := range chans {
		chans[i] = newFake(fmt.Sprintf("c%d", i))
		if err := h.Admit(chans[i], nil); err != nil {
			t.Fatal(err)
		}
	}

	n := h.Publish("soc", state.Entry{Value: 42.0, Timestamp: time.UnixMilli(5)})
	if n != len(chans) {
		t.Errorf("Publish() delivered to %d, want %d", n, len(chans))
	}
	for _, ch := range chans {
		msgs := ch.messages(t)
		if len(msgs) != 2 {
			t.Fatalf("%s got %d messages, want 2", ch.id, len(msgs))
		}
		if len(msgs[1].Payload) != 1 || msgs[1].Payload["soc"].Value != 42.0 {
			t.Errorf("%s update = %+v", ch.id, msgs[1].Payload)
		}
	}
}

func TestPublish_FailingChannelEvicted(t *testing.T) {
	h := New(nil)
	good := newFake("good")
	bad := newFake("bad")
	for _, ch := range []*fakeChannel{good, bad} {
		if err := h.Admit(ch, nil); err != nil {
			t.Fatal(err)
		}
	}
	bad.setFail(ErrSlowConsumer)

	if n := h.Publish("k", state.Entry{Value: 1.0}); n != 1 {
		t.Errorf("first Publish() delivered = %d, want 1", n)
	}
	if h.Count() != 1 {
		t.Errorf("Count() = %d, want 1", h.Count())
	}
	if bad.closeCount() != 1 {
		t.Errorf("bad channel closed %d times, want 1", bad.closeCount())
	}

	// A recovered channel stays out of the registry.
	bad.setFail(nil)
	h.Publish("k", state.Entry{Value: 2.0})
	if got := len(bad.messages(t)); got != 1 {
		t.Errorf("evicted channel received %d messages, want only init", got)
	}
	if got := len(good.messages(t)); got != 3 {
		t.Errorf("good channel received %d messages, want 3", got)
	}
}

func TestEvict_Idempotent(t *testing.T) {
	h := New(nil)
	ch := newFake("a")
	if err := h.Admit(ch, nil); err != nil {
		t.Fatal(err)
	}

	h.Evict(ch)
	h.Evict(ch)
	h.Evict(newFake("never-admitted"))

	if h.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.Count())
	}
	if ch.closeCount() != 1 {
		t.Errorf("channel closed %d times, want 1", ch.closeCount())
	}
}

func TestEvict_StaleChannelWithSameID(t *testing.T) {
	h := New(nil)
	first := newFake("dup")
	second := newFake("dup")
	if err := h.Admit(first, nil); err != nil {
		t.Fatal(err)
	}
	if err := h.Admit(second, nil); err != nil {
		t.Fatal(err)
	}
	if first.closeCount() != 1 {
		t.Errorf("replaced channel closed %d times, want 1", first.closeCount())
	}

	h.Evict(first)
	if h.Count() != 1 {
		t.Errorf("evicting a replaced channel removed the live one")
	}
}

func TestRun_ClosesOnCancel(t *testing.T) {
	h := New(nil)
	chans := []*fakeChannel{newFake("a"), newFake("b")}
	for _, ch := range chans {
		if err := h.Admit(ch, nil); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if h.Count() != 0 {
		t.Errorf("Count() = %d after close, want 0", h.Count())
	}
	for _, ch := range chans {
		if ch.closeCount() != 1 {
			t.Errorf("%s closed %d times, want 1", ch.id, ch.closeCount())
		}
	}
	if err := h.Admit(newFake("late"), nil); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Admit() after close error = %v, want ErrHubClosed", err)
	}
}

func TestPublish_ConcurrentEvict(t *testing.T) {
	h := New(nil)
	chans := make([]*fakeChannel, 20)
	for i := range chans {
		chans[i] = newFake(fmt.Sprintf("c%d", i))
		if err := h.Admit(chans[i], nil); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.Publish("k", state.Entry{Value: float64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for _, ch := range chans {
			h.Evict(ch)
		}
	}()
	wg.Wait()

	if h.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.Count())
	}
	for _, ch := range chans {
		if ch.closeCount() != 1 {
			t.Errorf("%s closed %d times, want 1", ch.id, ch.closeCount())
		}
	}
}
