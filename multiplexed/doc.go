// Package multiplexed is a restclient engine that negotiates HTTP/2 and
// multiplexes concurrent calls to the same host over one connection.
//
// Requests go through a resty client. Plain http:// targets, and servers
// that do not offer h2 during the TLS handshake, fall back to HTTP/1.1 on
// the same pool.
package multiplexed
