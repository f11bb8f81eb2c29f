package tsdb

import (
	"strconv"
	"strings"
	"time"
)

// Measurement is the line-protocol measurement all point values are written to.
// VictoriaMetrics exposes it as the metric "points_value".
const Measurement = "points"

// WriteValue queues one sample of a logical key. Non-blocking.
func (c *Client) WriteValue(key string, value float64, ts time.Time) {
	c.addLine(formatLine(key, value, ts))
}

// formatLine renders "points,key=<key> value=<value> <unix ns>".
func formatLine(key string, value float64, ts time.Time) string {
	var b strings.Builder
	b.WriteString(Measurement)
	b.WriteString(",key=")
	b.WriteString(escapeTag(key))
	b.WriteString(" value=")
	b.WriteString(strconv.FormatFloat(value, 'g', -1, 64))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(ts.UnixNano(), 10))
	return b.String()
}

// escapeTag escapes commas, equals signs and spaces, and strips newlines so
// a key cannot inject extra lines.
func escapeTag(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, " ", "\\ ")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "=", "\\=")
	return s
}
