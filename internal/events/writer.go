// Package events records the audit trail: one row per state change, written
// inside the transaction that makes the change.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends audit events. Now is swappable for fixed timestamps in
// tests; nil means time.Now.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// EventPayload holds the event's free-form details, stored as JSON.
type EventPayload map[string]any

// Append writes one event on the caller's transaction, so the event commits
// or rolls back with the change it describes. Empty projectID and entityID
// are stored as NULL; a nil payload becomes {}.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
