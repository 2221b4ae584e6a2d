// Package ws implements the WebSocket live tail for driftlog-server.
//
// Hub.Publish is registered as a store insert hook and pushes every new
// record to connected clients:
//
//	{"event": "log",   "data": {"id", "service_name", "timestamp", "message"}}
//	{"event": "stats", "data": {"stored": 42}}
//
// A stats event is sent on connect and then on every heartbeat tick.
// Clients may pass ?service_name= to receive only that service's records.
// A client that cannot keep up is disconnected rather than slowing inserts.
//
// The upgrader accepts all origins. The hub is mounted at /log/stream by the
// api package.
package ws
