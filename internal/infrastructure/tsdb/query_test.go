package tsdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(server *httptest.Server) *Client {
	return &Client{
		url:        server.URL,
		httpClient: server.Client(),
		connected:  true,
	}
}

func TestQueryAverage(t *testing.T) {
	var gotParams map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query_range" {
			t.Errorf("path = %q, want /api/v1/query_range", r.URL.Path)
		}
		gotParams = map[string]string{}
		for key, values := range r.URL.Query() {
			gotParams[key] = values[0]
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"matrix","result":[
			{"metric":{"key":"pv_power"},"values":[[1700000060,"20"],[1700000000,"10.5"],[1700000120,"NaN"]]}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	start := time.Unix(1700000000, 0)
	end := start.Add(10 * time.Minute)

	samples, err := client.QueryAverage(context.Background(), "pv_power", start, end, time.Minute)
	if err != nil {
		t.Fatalf("QueryAverage() error = %v", err)
	}

	if want := `avg_over_time(points_value{key="pv_power"}[60s])`; gotParams["query"] != want {
		t.Errorf("query = %q, want %q", gotParams["query"], want)
	}
	if gotParams["step"] != "60" {
		t.Errorf("step = %q, want 60", gotParams["step"])
	}
	if gotParams["start"] != "1700000000" {
		t.Errorf("start = %q, want 1700000000", gotParams["start"])
	}

	if len(samples) != 2 {
		t.Fatalf("samples = %d, want 2 (NaN dropped)", len(samples))
	}
	if samples[0].Value != 10.5 || samples[1].Value != 20 {
		t.Errorf("samples = %+v, want sorted 10.5, 20", samples)
	}
	if !samples[0].Time.Equal(start) {
		t.Errorf("first sample time = %v, want %v", samples[0].Time, start)
	}
}

func TestQueryRange_Validation(t *testing.T) {
	client := &Client{connected: true}
	now := time.Now()

	if _, err := client.QueryRange(context.Background(), " ", now, now, time.Minute); !errors.Is(err, ErrQueryFailed) {
		t.Errorf("empty query error = %v", err)
	}
	if _, err := client.QueryRange(context.Background(), "up", now, now, 0); !errors.Is(err, ErrQueryFailed) {
		t.Errorf("zero step error = %v", err)
	}
	if _, err := client.QueryRange(context.Background(), "up", now, now.Add(-time.Hour), time.Minute); !errors.Is(err, ErrQueryFailed) {
		t.Errorf("inverted range error = %v", err)
	}
	if _, err := client.QueryAverage(context.Background(), "", now, now, time.Minute); !errors.Is(err, ErrQueryFailed) {
		t.Errorf("empty key error = %v", err)
	}

	disconnected := &Client{}
	if _, err := disconnected.QueryRange(context.Background(), "up", now, now, time.Minute); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}
}

func TestQueryRange_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server).QueryAverage(context.Background(), "load", time.Now().Add(-time.Hour), time.Now(), time.Minute)
	if !errors.Is(err, ErrQueryFailed) {
		t.Errorf("QueryAverage() error = %v, want ErrQueryFailed", err)
	}
}

func TestParseMatrix_ErrorStatus(t *testing.T) {
	_, err := parseMatrix([]byte(`{"status":"error","error":"bad query"}`))
	if !errors.Is(err, ErrQueryFailed) {
		t.Errorf("parseMatrix() error = %v, want ErrQueryFailed", err)
	}
}

func TestAverageQuery_SubSecondStep(t *testing.T) {
	got, err := averageQuery("soc", 200*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if got != `avg_over_time(points_value{key="soc"}[1s])` {
		t.Errorf("averageQuery() = %q", got)
	}
}
