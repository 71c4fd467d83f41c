package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Meta identifies the tenant and emitting app for an event.
type Meta struct {
	OrgID     string
	SourceApp string
}

// Append writes one event. A nil tx writes directly against the DB.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType string, meta Meta, entityKind, entityID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	sourceApp := meta.SourceApp
	if sourceApp == "" {
		sourceApp = "questboard"
	}
	query := `INSERT INTO events(ts,type,org_id,entity_kind,entity_id,source_app,payload_json) VALUES (?,?,?,?,?,?,?)`
	args := []any{ts, evtType, nullable(meta.OrgID), entityKind, nullable(entityID), sourceApp, string(data)}
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = w.DB.ExecContext(ctx, query, args...)
	}
	return err
}

// Publisher is the fire-and-forget boundary used by the questmaster run:
// a failed publish is logged and never aborts the caller.
type Publisher struct {
	Writer Writer
	Logger *log.Logger
}

func (p Publisher) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

func (p Publisher) Publish(ctx context.Context, evtType string, meta Meta, entityKind, entityID string, payload EventPayload) {
	if err := p.Writer.Append(ctx, nil, evtType, meta, entityKind, entityID, payload); err != nil {
		p.logger().Printf("events: publish %s for %s/%s failed: %v", evtType, entityKind, entityID, err)
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
