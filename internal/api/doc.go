// Package api implements the HTTP REST API and WebSocket server for NaviBridge.
//
// This package provides:
//   - REST endpoints for device state, history, commands, and diagnostics
//   - WebSocket hub for real-time state update broadcasts
//   - Optional static bearer token authentication
//   - Middleware stack (request ID, logging, recovery, body limits)
//
// # Architecture
//
// The API server sits between local consumers (dashboards, home automation
// controllers, scripts) and the bridge coordinator. Reads come from the
// coordinator's in-memory state; commands flow through the coordinator to the
// vendor MQTT session; state updates are pushed to WebSocket clients via an
// update listener registered on the coordinator.
//
// # Security
//
// Authentication is a single static bearer token from configuration. An empty
// token disables authentication, which is only appropriate on trusted
// networks. WebSocket clients pass the token as a query parameter since
// browsers cannot set headers on WebSocket upgrades.
package api
