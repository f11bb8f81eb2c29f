package history

import "time"

// Writer is the batched write side of a time-series client.
type Writer interface {
	WriteValue(key string, value float64, ts time.Time)
}

// Recorder forwards values to one or more writers.
type Recorder struct {
	writers []Writer
}

// NewRecorder creates a recorder. Nil writers are skipped.
func NewRecorder(writers ...Writer) *Recorder {
	r := &Recorder{}
	for _, w := range writers {
		if w != nil {
			r.writers = append(r.writers, w)
		}
	}
	return r
}

// Len returns the number of writers.
func (r *Recorder) Len() int {
	return len(r.writers)
}

// Record writes one value to every writer.
func (r *Recorder) Record(key string, value float64, ts time.Time) {
	for _, w := range r.writers {
		w.WriteValue(key, value, ts)
	}
}
