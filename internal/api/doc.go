// Package api implements the HTTP surface of NexoWatt VIS.
//
// This package provides:
//   - the snapshot read (GET /api/state) and the write call (POST /api/state)
//   - installer login, logout and token check
//   - subscriber channels over Server-Sent Events (/events) and WebSocket (/ws)
//   - history, audit, health and metrics endpoints
//   - the embedded dashboard assets
//
// # Channels
//
// Both transports wrap a queueChannel that the hub fills without blocking.
// A client that falls behind by more than the send buffer is evicted and
// must reconnect, at which point it receives a fresh init snapshot.
//
// # Security
//
// Writes into a privileged scope and the audit listing need the installer
// session token in X-Auth-Token (or the "token" body field for writes).
package api
