// Package state holds the in-memory mirror of the latest point values.
package state

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry is the latest value of one logical key. Value is a bool, float64,
// string or nil; other shapes are stored as delivered.
type Entry struct {
	Value     any
	Timestamp time.Time
}

// entryJSON is the wire form: timestamps are Unix milliseconds.
type entryJSON struct {
	Value     any   `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

// MarshalJSON renders {"value":..,"timestamp":<unix ms>}.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{Value: e.Value, Timestamp: e.Timestamp.UnixMilli()})
}

// UnmarshalJSON accepts the form written by MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Value = raw.Value
	e.Timestamp = time.UnixMilli(raw.Timestamp).UTC()
	return nil
}

// Change is a value notification from the external store.
type Change struct {
	ExternalID string
	Value      any
	Timestamp  time.Time
}

// Cache maps logical keys to their latest Entry.
//
// Each entry is replaced as a whole under the lock, so readers never see
// a value paired with another update's timestamp.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Get returns the entry for key.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// All returns a copy of every entry.
func (c *Cache) All() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Values returns a copy of every value without timestamps.
func (c *Cache) Values() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.entries))
	for k, v := range c.entries {
		out[k] = v.Value
	}
	return out
}

// Set overwrites key and returns the stored entry.
func (c *Cache) Set(key string, value any, ts time.Time) Entry {
	e := Entry{Value: value, Timestamp: ts}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return e
}

// SetIfNewer stores the value unless the current entry is strictly newer.
// Equal timestamps overwrite. It reports whether the value was stored
// and returns the entry now held.
func (c *Cache) SetIfNewer(key string, value any, ts time.Time) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[key]; ok && cur.Timestamp.After(ts) {
		return cur, false
	}
	e := Entry{Value: value, Timestamp: ts}
	c.entries[key] = e
	return e, true
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
