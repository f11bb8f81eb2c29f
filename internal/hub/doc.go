// Package hub fans cache updates out to subscriber channels.
//
// A Channel is one long-lived connection to a dashboard (SSE or WebSocket).
// The hub sends it an "init" snapshot on admission and an "update" message
// for every published change afterwards. A channel whose Send fails is
// evicted; the remaining channels are unaffected.
//
// Delivery is at-most-once. A client that reconnects receives a fresh
// snapshot rather than the updates it missed.
package hub
