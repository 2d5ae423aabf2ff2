// Package navien defines the domain types shared by the Navien cloud
// clients: device identity records, telemetry snapshots, capability
// descriptors, and schedule entries.
//
// Subpackages implement the cloud collaborators:
//   - navien/auth: account authentication and token persistence
//   - navien/api: the REST device list endpoint
//   - navien/transport: the MQTT push session (telemetry and commands)
//
// The status snapshot is a fixed schema with optional (pointer) fields.
// The unit omits readings it cannot take; consumers must treat nil as
// "not reported", not zero.
package navien
