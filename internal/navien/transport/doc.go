// Package transport maintains the MQTT session to the Navien cloud broker.
//
// The broker is the only channel for live device data: the water heater
// pushes status and feature reports over it, and all control commands and
// on-demand refresh requests are published to it. The REST API (package
// api) only serves the device inventory.
//
// A Session owns one paho client. Connection lifecycle events surface
// through a typed subscriber registry (On/Off); device data surfaces
// through per-device subscription handlers. Periodic status and info
// request tickers are owned here and started or stopped by the caller.
//
// Publishes during a broker reconnection are accepted into the client's
// outbound store and delivered once the session resumes; such calls return
// ErrQueuedForReconnect so callers can report success-with-note instead of
// failure.
package transport
