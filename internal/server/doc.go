// Package server exposes the hub over HTTP: the websocket upgrade endpoint
// keyed by user id, health and metrics endpoints, and a browser test page.
//
// The implementation is organized into specialized files for origin policy,
// routing, handlers and server lifecycle to keep each concern testable.
package server
