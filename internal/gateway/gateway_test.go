package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/nerrad567/nexowatt-vis/internal/points"
	"github.com/nerrad567/nexowatt-vis/internal/session"
)

type recWriter struct {
	err    error
	writes map[string]any
}

func (w *recWriter) WriteValue(_ context.Context, id string, v any) error {
	if w.err != nil {
		return w.err
	}
	if w.writes == nil {
		w.writes = make(map[string]any)
	}
	w.writes[id] = v
	return nil
}

const table = `
points:
  - key: pvPower
    id: inv.0.power
scopes:
  - name: settings
    points:
      - key: price
        id: settings.0.price
  - name: installer
    privileged: true
    points:
      - key: socMin
        id: installer.0.socMin
`

func newTestGateway(t *testing.T, w *recWriter) (*Gateway, *session.Gate) {
	t.Helper()
	tbl, err := points.Parse([]byte(table))
	if err != nil {
		t.Fatal(err)
	}
	r, issues := points.NewResolver(tbl)
	if len(issues) != 0 {
		t.Fatalf("issues: %v", issues)
	}
	gate := session.NewGate(session.Options{Secret: "install2025!"})
	return New(r, gate, w), gate
}

func TestWrite_Installer(t *testing.T) {
	w := &recWriter{}
	g, gate := newTestGateway(t, w)

	token, err := gate.Login("install2025!")
	if err != nil {
		t.Fatal(err)
	}

	res := g.Write(context.Background(), "installer", "socMin", 15.0, token)
	if !res.OK {
		t.Fatalf("Write() = %+v, want ok", res)
	}
	if res.LogicalKey != "installer.socMin" || res.ExternalID != "installer.0.socMin" {
		t.Errorf("resolved to %q/%q", res.LogicalKey, res.ExternalID)
	}
	if w.writes["installer.0.socMin"] != 15.0 {
		t.Errorf("store writes = %v", w.writes)
	}

	delete(w.writes, "installer.0.socMin")
	res = g.Write(context.Background(), "installer", "socMin", 20.0, "wrong")
	if res.OK || res.Reason != ReasonForbidden {
		t.Errorf("Write(wrong token) = %+v, want forbidden", res)
	}
	if len(w.writes) != 0 {
		t.Error("forbidden write reached the store")
	}
}

func TestWrite_Reasons(t *testing.T) {
	tests := []struct {
		name   string
		scope  string
		key    string
		token  string
		reason string
		status int
	}{
		{"missing scope", "", "price", "", ReasonBadRequest, http.StatusBadRequest},
		{"missing key", "settings", "", "", ReasonBadRequest, http.StatusBadRequest},
		{"unknown settings key", "settings", "unknownKey", "", ReasonNotConfigured, http.StatusNotFound},
		{"unknown scope", "nope", "price", "", ReasonNotConfigured, http.StatusNotFound},
		{"scope mismatch", "settings", "socMin", "", ReasonNotConfigured, http.StatusNotFound},
		{"installer without token", "installer", "socMin", "", ReasonForbidden, http.StatusForbidden},
		{"installer unknown key without token", "installer", "unknownKey", "", ReasonForbidden, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &recWriter{}
			g, _ := newTestGateway(t, w)
			res := g.Write(context.Background(), tt.scope, tt.key, 1.0, tt.token)
			if res.OK || res.Reason != tt.reason {
				t.Errorf("Write() = %+v, want %s", res, tt.reason)
			}
			if res.Status() != tt.status {
				t.Errorf("Status() = %d, want %d", res.Status(), tt.status)
			}
			if len(w.writes) != 0 {
				t.Error("failed write reached the store")
			}
		})
	}
}

func TestWrite_NonPrivilegedScopes(t *testing.T) {
	w := &recWriter{}
	g, _ := newTestGateway(t, w)

	if res := g.Write(context.Background(), "settings", "price", 0.31, ""); !res.OK {
		t.Errorf("settings write = %+v", res)
	}
	if res := g.Write(context.Background(), points.AppScope, "pvPower", 1.0, ""); !res.OK {
		t.Errorf("app write = %+v", res)
	}
	if len(w.writes) != 2 {
		t.Errorf("store writes = %v", w.writes)
	}
}

func TestWrite_StoreFailure(t *testing.T) {
	storeErr := errors.New("publish failed")
	g, _ := newTestGateway(t, &recWriter{err: storeErr})

	res := g.Write(context.Background(), "settings", "price", 0.31, "")
	if res.OK || res.Reason != ReasonInternal {
		t.Fatalf("Write() = %+v, want internal_error", res)
	}
	if res.Status() != http.StatusBadGateway {
		t.Errorf("Status() = %d", res.Status())
	}
	if !errors.Is(ErrorOf(res), storeErr) {
		t.Errorf("ErrorOf() = %v", ErrorOf(res))
	}
}
