package tsdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	maxResponseSize = 10 << 20 // 10 MB
	maxKeyLen       = 256
)

// Sample is one bucketed value of a range query.
type Sample struct {
	Time  time.Time
	Value float64
}

// QueryRange executes a PromQL range query and returns the raw response.
func (c *Client) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (json.RawMessage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrQueryFailed)
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive", ErrQueryFailed)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrQueryFailed)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", formatUnixSeconds(start))
	params.Set("end", formatUnixSeconds(end))
	params.Set("step", formatStepSeconds(step))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/api/v1/query_range?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrQueryFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrQueryFailed, resp.StatusCode)
	}

	return json.RawMessage(body), nil
}

// QueryAverage returns the per-step average of key between start and end,
// oldest first. Steps without data are omitted.
func (c *Client) QueryAverage(ctx context.Context, key string, start, end time.Time, step time.Duration) ([]Sample, error) {
	query, err := averageQuery(key, step)
	if err != nil {
		return nil, err
	}

	raw, err := c.QueryRange(ctx, query, start, end, step)
	if err != nil {
		return nil, err
	}

	return parseMatrix(raw)
}

// averageQuery builds avg_over_time(points_value{key="..."}[<step>s]).
func averageQuery(key string, step time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: key is required", ErrQueryFailed)
	}
	if len(key) > maxKeyLen {
		return "", fmt.Errorf("%w: key exceeds maximum length", ErrQueryFailed)
	}
	window := int64(math.Max(1, math.Round(step.Seconds())))
	return fmt.Sprintf("avg_over_time(%s_value{key=%s}[%ds])", Measurement, strconv.Quote(key), window), nil
}

type promResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Values [][]any `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// parseMatrix flattens a Prometheus matrix response into time-ordered samples.
// NaN and unparsable samples are skipped.
func parseMatrix(raw json.RawMessage) ([]Sample, error) {
	var resp promResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrQueryFailed, err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("%w: status %q: %s", ErrQueryFailed, resp.Status, resp.Error)
	}

	samples := make([]Sample, 0)
	for _, series := range resp.Data.Result {
		for _, pair := range series.Values {
			ts, value, err := parsePrometheusValue(pair)
			if err != nil || math.IsNaN(value) {
				continue
			}
			samples = append(samples, Sample{Time: ts, Value: value})
		}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	return samples, nil
}

// parsePrometheusValue parses a [timestamp, "value"] pair.
func parsePrometheusValue(raw []any) (time.Time, float64, error) {
	if len(raw) != 2 {
		return time.Time{}, 0, fmt.Errorf("invalid sample length")
	}

	var ts time.Time
	switch v := raw[0].(type) {
	case float64:
		ts = unixFloat(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return time.Time{}, 0, err
		}
		ts = unixFloat(f)
	default:
		return time.Time{}, 0, fmt.Errorf("invalid timestamp")
	}

	switch v := raw[1].(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return ts, f, err
	case float64:
		return ts, v, nil
	default:
		return time.Time{}, 0, fmt.Errorf("invalid sample value")
	}
}

func unixFloat(v float64) time.Time {
	seconds, fraction := math.Modf(v)
	return time.Unix(int64(seconds), int64(fraction*float64(time.Second))).UTC()
}

// formatUnixSeconds converts a timestamp to a seconds-since-epoch string.
func formatUnixSeconds(t time.Time) string {
	seconds := float64(t.UnixNano()) / float64(time.Second)
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

// formatStepSeconds converts a step duration to a Prometheus-compatible seconds string.
func formatStepSeconds(step time.Duration) string {
	return strconv.FormatFloat(step.Seconds(), 'f', -1, 64)
}
