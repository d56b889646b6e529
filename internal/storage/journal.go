package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"swap_go/internal/domain"
	"swap_go/internal/event"

	_ "github.com/glebarez/go-sqlite"
)

// EventJournal is an append-only SQLite audit log of order events.
// The engine's in-memory log remains the replay source of truth; the
// journal exists for post-hoc inspection and never feeds back into
// order processing.
type EventJournal struct {
	db *sql.DB
}

// NewEventJournal opens (or creates) the journal database with WAL mode
// enabled.
func NewEventJournal(dbPath string) (*EventJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS order_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			status TEXT NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create order_events table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_order_events_order_id ON order_events (order_id);`)
	if err != nil {
		return nil, fmt.Errorf("failed to create order_events index: %w", err)
	}

	return &EventJournal{db: db}, nil
}

// Append stores one order event.
func (j *EventJournal) Append(ctx context.Context, ev event.OrderEvent) error {
	var payload []byte
	if ev.Payload != nil {
		var err error
		payload, err = json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO order_events (order_id, status, ts, payload) VALUES (?, ?, ?, ?)",
		ev.OrderID, string(ev.Status), ev.TsUnixM, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// LoadEvents returns all journaled events for an order, in append order.
// Payloads come back as generic JSON maps; the journal is an audit
// surface, not a typed replay source.
func (j *EventJournal) LoadEvents(ctx context.Context, orderID string) ([]event.OrderEvent, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT status, ts, payload FROM order_events WHERE order_id = ? ORDER BY seq ASC",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.OrderEvent
	for rows.Next() {
		var status string
		var ts int64
		var payload []byte

		if err := rows.Scan(&status, &ts, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		ev := event.OrderEvent{
			OrderID: orderID,
			Status:  domain.OrderStatus(status),
			TsUnixM: ts,
		}
		if len(payload) > 0 {
			var decoded map[string]any
			if err := json.Unmarshal(payload, &decoded); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
			ev.Payload = decoded
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return events, nil
}

// CountEvents returns the number of journaled events for an order.
func (j *EventJournal) CountEvents(ctx context.Context, orderID string) (int, error) {
	var count int
	err := j.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM order_events WHERE order_id = ?", orderID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (j *EventJournal) Close() error {
	return j.db.Close()
}
