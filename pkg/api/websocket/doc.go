// Package websocket provides real-time run progress streaming via WebSocket.
//
// Clients connect to /api/v1/runs/:id/ws and receive every run and item
// transition of that run as a JSON event. The server closes the connection
// after the run's final event.
package websocket
