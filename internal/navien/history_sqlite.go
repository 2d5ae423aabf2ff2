package navien

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteStatusHistoryRepository implements StatusHistoryRepository using SQLite.
//
// It stores status snapshots as JSON in the status_history table.
type SQLiteStatusHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteStatusHistoryRepository creates a new SQLite status history repository.
func NewSQLiteStatusHistoryRepository(db *sql.DB) *SQLiteStatusHistoryRepository {
	return &SQLiteStatusHistoryRepository{db: db}
}

// RecordStatus inserts a new status history entry for a device.
func (r *SQLiteStatusHistoryRepository) RecordStatus(ctx context.Context, macAddress string, status DeviceStatus, source string) error {
	if macAddress == "" {
		return fmt.Errorf("mac address is required")
	}
	if source == "" {
		source = HistorySourcePush
	}

	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshalling status: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO status_history (mac_address, status, source) VALUES (?, ?, ?)",
		macAddress,
		string(statusJSON),
		source,
	)
	if err != nil {
		return fmt.Errorf("inserting status history: %w", err)
	}

	return nil
}

// GetHistory returns recent status history entries for a device, ordered
// newest first. The limit defaults to 50 and is capped at 200.
func (r *SQLiteStatusHistoryRepository) GetHistory(ctx context.Context, macAddress string, limit int) ([]StatusHistoryEntry, error) {
	if macAddress == "" {
		return nil, fmt.Errorf("mac address is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, mac_address, status, source, created_at
		 FROM status_history
		 WHERE mac_address = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		macAddress,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying status history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []StatusHistoryEntry
	for rows.Next() {
		var (
			entry      StatusHistoryEntry
			statusJSON string
		)
		if err := rows.Scan(&entry.ID, &entry.MACAddress, &statusJSON, &entry.Source, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning status history row: %w", err)
		}
		if err := json.Unmarshal([]byte(statusJSON), &entry.Status); err != nil {
			return nil, fmt.Errorf("unmarshalling status snapshot: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status history rows: %w", err)
	}

	return entries, nil
}
