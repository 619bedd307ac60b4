package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	ComponentCreated        = "component.created"
	ComponentUpdated        = "component.updated"
	ComponentHeuristicsSet  = "component.heuristics.updated"
	ComponentDeleted        = "component.deleted"
	LinkCreated             = "link.created"
	LinkHeuristicsSet       = "link.heuristics.updated"
	LinkDeleted             = "link.deleted"
	ArchitectureCreated     = "architecture.created"
	ArchitectureMemberAdded = "architecture.member.added"
	ArchitectureDeleted     = "architecture.deleted"
	ArchitectureEvaluated   = "architecture.evaluated"
	ArchitectureCompared    = "architecture.compared"
	WeightsUpdated          = "weights.updated"
	RulesReset              = "rules.reset"
	HeuristicsReloaded      = "heuristics.defaults.reloaded"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID string, payload EventPayload) error {
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
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), string(data))
	return err
}

// Record appends a single event in its own transaction.
func (w Writer) Record(ctx context.Context, evtType, entityKind, entityID string, payload EventPayload) error {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := w.Append(ctx, tx, evtType, entityKind, entityID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
