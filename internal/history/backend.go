package history

import (
	"context"
	"time"

	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/influxdb"
	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/tsdb"
)

// Sample is one aggregated value.
type Sample struct {
	Time  time.Time
	Value float64
}

// Backend runs averaged range queries for a single logical key.
type Backend interface {
	Name() string
	QueryAverage(ctx context.Context, key string, start, end time.Time, step time.Duration) ([]Sample, error)
}

type influxBackend struct {
	client *influxdb.Client
}

// InfluxBackend serves queries from InfluxDB.
func InfluxBackend(c *influxdb.Client) Backend {
	return influxBackend{client: c}
}

func (b influxBackend) Name() string { return "influxdb" }

func (b influxBackend) QueryAverage(ctx context.Context, key string, start, end time.Time, step time.Duration) ([]Sample, error) {
	rows, err := b.client.QueryAverage(ctx, key, start, end, step)
	if err != nil {
		return nil, err
	}
	out := make([]Sample, len(rows))
	for i, r := range rows {
		out[i] = Sample{Time: r.Time, Value: r.Value}
	}
	return out, nil
}

type tsdbBackend struct {
	client *tsdb.Client
}

// TSDBBackend serves queries from VictoriaMetrics.
func TSDBBackend(c *tsdb.Client) Backend {
	return tsdbBackend{client: c}
}

func (b tsdbBackend) Name() string { return "tsdb" }

func (b tsdbBackend) QueryAverage(ctx context.Context, key string, start, end time.Time, step time.Duration) ([]Sample, error) {
	rows, err := b.client.QueryAverage(ctx, key, start, end, step)
	if err != nil {
		return nil, err
	}
	out := make([]Sample, len(rows))
	for i, r := range rows {
		out[i] = Sample{Time: r.Time, Value: r.Value}
	}
	return out, nil
}
