package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the measurement all point values are written to.
const Measurement = "points"

// WriteValue queues one sample of a logical key. Non-blocking.
func (c *Client) WriteValue(key string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newValuePoint(key, value, ts))
}

func newValuePoint(key string, value float64, ts time.Time) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{"key": key},
		map[string]interface{}{"value": value},
		ts,
	)
}
