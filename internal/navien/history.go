package navien

import (
	"context"
	"time"
)

// Status history source values.
const (
	HistorySourcePush = "push"
	HistorySourcePoll = "poll"
)

// StatusHistoryEntry is a single recorded telemetry snapshot.
//
// Each entry stores the full status snapshot at the time it was received.
// This provides a local audit trail even when the time-series database
// is unavailable.
type StatusHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// MACAddress is the unique hardware address of the device.
	MACAddress string `json:"mac_address"`

	// Status is the telemetry snapshot.
	Status DeviceStatus `json:"status"`

	// Source identifies how the snapshot arrived (push, poll).
	Source string `json:"source"`

	// CreatedAt is the timestamp of the snapshot (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// StatusHistoryRepository stores and retrieves device telemetry history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StatusHistoryRepository interface {
	// RecordStatus records one telemetry snapshot for a device.
	RecordStatus(ctx context.Context, macAddress string, status DeviceStatus, source string) error

	// GetHistory returns recent snapshots for the device, newest first.
	// The limit may be clamped by the implementation.
	GetHistory(ctx context.Context, macAddress string, limit int) ([]StatusHistoryEntry, error)
}
