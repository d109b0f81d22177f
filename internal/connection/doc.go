// Package connection implements the WebSocket connection primitive.
//
// Client is a single raw WebSocket connection: dial (optionally through an
// HTTP proxy), read pump, write serialization, staleness detection.
//
// Conn wraps a Client with the lifecycle every exchange stream needs:
// automatic reconnection with exponential backoff, resubscription through a
// protocol Adapter, application-level heartbeats with a failure threshold,
// and request/response correlation for command-style messages.
package connection
