// Package pooled is a restclient engine that sends HTTP/1.1 requests over a
// bounded, evicting connection pool.
//
// Connections are dialed through a pool.Manager, so the engine never holds
// more than the configured total and per-route connections, and idle ones
// are closed by the pool's evictor.
package pooled
