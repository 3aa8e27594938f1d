// Package server implements the WebSocket transport for live audio and
// result events plus the HTTP API endpoints. It binds each WebSocket
// connection to one session and provides monitoring/management endpoints.
package server
