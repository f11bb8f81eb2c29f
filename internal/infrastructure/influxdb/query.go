package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Sample is one bucketed value of a range query.
type Sample struct {
	Time  time.Time
	Value float64
}

// QueryAverage returns the per-step mean of key between start and stop,
// oldest first. Empty windows are omitted.
func (c *Client) QueryAverage(ctx context.Context, key string, start, stop time.Time, step time.Duration) ([]Sample, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	flux, err := averageFlux(c.cfg.Bucket, key, start, stop, step)
	if err != nil {
		return nil, err
	}

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	samples := make([]Sample, 0)
	for result.Next() {
		rec := result.Record()
		value, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		samples = append(samples, Sample{Time: rec.Time().UTC(), Value: value})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return samples, nil
}

// averageFlux renders the aggregateWindow(mean) query for one key.
func averageFlux(bucket, key string, start, stop time.Time, step time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: key is required", ErrQueryFailed)
	}
	if step < time.Second {
		return "", fmt.Errorf("%w: step must be at least 1s", ErrQueryFailed)
	}
	if !stop.After(start) {
		return "", fmt.Errorf("%w: stop must be after start", ErrQueryFailed)
	}

	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %s and r._field == "value" and r.key == %s)
  |> aggregateWindow(every: %ds, fn: mean, createEmpty: false)
  |> sort(columns: ["_time"])`,
		strconv.Quote(bucket),
		start.UTC().Format(time.RFC3339),
		stop.UTC().Format(time.RFC3339),
		strconv.Quote(Measurement),
		strconv.Quote(key),
		int64(step/time.Second),
	), nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
