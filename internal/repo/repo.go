package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"archscore/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func marshalProfile(h domain.HeuristicProfile) (string, error) {
	if h == nil {
		h = domain.HeuristicProfile{}
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal heuristics: %w", err)
	}
	return string(b), nil
}

func marshalProperties(p domain.Properties) (any, error) {
	if len(p) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal properties: %w", err)
	}
	return string(b), nil
}

func unmarshalProfile(raw string) (domain.HeuristicProfile, error) {
	h := domain.HeuristicProfile{}
	if raw == "" {
		return h, nil
	}
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("decode heuristics: %w", err)
	}
	return h, nil
}

func unmarshalProperties(raw sql.NullString) (domain.Properties, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var p domain.Properties
	if err := json.Unmarshal([]byte(raw.String), &p); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	return p, nil
}

// Components

const componentColumns = `id,name,type,COALESCE(subtype,''),heuristics_json,properties_json,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComponent(row rowScanner) (domain.Component, error) {
	var c domain.Component
	var typ, heur string
	var props sql.NullString
	err := row.Scan(&c.ID, &c.Name, &typ, &c.Subtype, &heur, &props, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Type = domain.ComponentType(typ)
	if c.Heuristics, err = unmarshalProfile(heur); err != nil {
		return c, err
	}
	if c.Properties, err = unmarshalProperties(props); err != nil {
		return c, err
	}
	return c, nil
}

func (r Repo) InsertComponent(ctx context.Context, tx *sql.Tx, c domain.Component) error {
	heur, err := marshalProfile(c.Heuristics)
	if err != nil {
		return err
	}
	props, err := marshalProperties(c.Properties)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO components(id,name,type,subtype,heuristics_json,properties_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, string(c.Type), nullable(c.Subtype), heur, props, c.CreatedAt, c.UpdatedAt)
	return err
}

// UpdateComponent rewrites the mutable columns of an existing component.
func (r Repo) UpdateComponent(ctx context.Context, tx *sql.Tx, c domain.Component) error {
	heur, err := marshalProfile(c.Heuristics)
	if err != nil {
		return err
	}
	props, err := marshalProperties(c.Properties)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE components SET name=?,subtype=?,heuristics_json=?,properties_json=?,updated_at=? WHERE id=?`,
		c.Name, nullable(c.Subtype), heur, props, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetComponent(ctx context.Context, id string) (domain.Component, error) {
	return r.getComponent(ctx, r.DB, id)
}

func (r Repo) GetComponentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Component, error) {
	return r.getComponent(ctx, tx, id)
}

func (r Repo) getComponent(ctx context.Context, q querier, id string) (domain.Component, error) {
	return scanComponent(q.QueryRowContext(ctx, `SELECT `+componentColumns+` FROM components WHERE id=?`, id))
}

type ComponentFilters struct {
	Type  domain.ComponentType
	Limit int
}

func (r Repo) ListComponents(ctx context.Context, f ComponentFilters) ([]domain.Component, error) {
	var clauses []string
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, string(f.Type))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + componentColumns + ` FROM components ` + where + ` ORDER BY created_at, id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Component{}
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// DeleteComponent removes the component; its links and memberships cascade.
func (r Repo) DeleteComponent(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM components WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Links

const linkColumns = `id,source_id,target_id,type,heuristics_json,properties_json,created_at`

func scanLink(row rowScanner) (domain.Link, error) {
	var l domain.Link
	var typ, heur string
	var props sql.NullString
	err := row.Scan(&l.ID, &l.SourceID, &l.TargetID, &typ, &heur, &props, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.Type = domain.LinkType(typ)
	if l.Heuristics, err = unmarshalProfile(heur); err != nil {
		return l, err
	}
	if l.Properties, err = unmarshalProperties(props); err != nil {
		return l, err
	}
	return l, nil
}

func (r Repo) InsertLink(ctx context.Context, tx *sql.Tx, l domain.Link) error {
	heur, err := marshalProfile(l.Heuristics)
	if err != nil {
		return err
	}
	props, err := marshalProperties(l.Properties)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO links(id,source_id,target_id,type,heuristics_json,properties_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		l.ID, l.SourceID, l.TargetID, string(l.Type), heur, props, l.CreatedAt)
	return err
}

func (r Repo) UpdateLinkHeuristics(ctx context.Context, tx *sql.Tx, id string, h domain.HeuristicProfile) error {
	heur, err := marshalProfile(h)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE links SET heuristics_json=? WHERE id=?`, heur, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetLink(ctx context.Context, id string) (domain.Link, error) {
	return scanLink(r.DB.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id=?`, id))
}

func (r Repo) GetLinkTx(ctx context.Context, tx *sql.Tx, id string) (domain.Link, error) {
	return scanLink(tx.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id=?`, id))
}

type LinkFilters struct {
	ComponentID string
	SourceID    string
	TargetID    string
	Type        domain.LinkType
}

func (r Repo) ListLinks(ctx context.Context, f LinkFilters) ([]domain.Link, error) {
	var clauses []string
	var args []any
	if f.ComponentID != "" {
		clauses = append(clauses, "(source_id=? OR target_id=?)")
		args = append(args, f.ComponentID, f.ComponentID)
	}
	if f.SourceID != "" {
		clauses = append(clauses, "source_id=?")
		args = append(args, f.SourceID)
	}
	if f.TargetID != "" {
		clauses = append(clauses, "target_id=?")
		args = append(args, f.TargetID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, string(f.Type))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+linkColumns+` FROM links `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) DeleteLink(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM links WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type ConnectionStats struct {
	ComponentID string `json:"component_id"`
	Incoming    int    `json:"incoming_links"`
	Outgoing    int    `json:"outgoing_links"`
	Total       int    `json:"total_connections"`
}

// ConnectionStats counts every stored link touching the component.
func (r Repo) ConnectionStats(ctx context.Context, componentID string) (ConnectionStats, error) {
	stats := ConnectionStats{ComponentID: componentID}
	row := r.DB.QueryRowContext(ctx, `SELECT
  COALESCE(SUM(CASE WHEN target_id=? THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN source_id=? THEN 1 ELSE 0 END),0)
FROM links WHERE source_id=? OR target_id=?`, componentID, componentID, componentID, componentID)
	if err := row.Scan(&stats.Incoming, &stats.Outgoing); err != nil {
		return stats, err
	}
	stats.Total = stats.Incoming + stats.Outgoing
	return stats, nil
}

// Architectures

func (r Repo) InsertArchitecture(ctx context.Context, tx *sql.Tx, a domain.Architecture) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO architectures(id,name,created_at) VALUES (?,?,?)`, a.ID, a.Name, a.CreatedAt)
	return err
}

// AddArchitectureComponent appends the component to the architecture. Adding a
// member twice keeps its original position.
func (r Repo) AddArchitectureComponent(ctx context.Context, tx *sql.Tx, archID, componentID string) (bool, error) {
	return addMember(ctx, tx, "architecture_components", "component_id", archID, componentID)
}

func (r Repo) AddArchitectureLink(ctx context.Context, tx *sql.Tx, archID, linkID string) (bool, error) {
	return addMember(ctx, tx, "architecture_links", "link_id", archID, linkID)
}

func addMember(ctx context.Context, tx *sql.Tx, table, column, archID, memberID string) (bool, error) {
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s(architecture_id,%s,position)
SELECT ?, ?, COALESCE(MAX(position),-1)+1 FROM %s WHERE architecture_id=?`, table, column, table)
	res, err := tx.ExecContext(ctx, query, archID, memberID, archID)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r Repo) GetArchitecture(ctx context.Context, id string) (domain.Architecture, error) {
	return r.getArchitecture(ctx, r.DB, id)
}

func (r Repo) GetArchitectureTx(ctx context.Context, tx *sql.Tx, id string) (domain.Architecture, error) {
	return r.getArchitecture(ctx, tx, id)
}

// getArchitecture loads the architecture with its members in insertion order.
func (r Repo) getArchitecture(ctx context.Context, q querier, id string) (domain.Architecture, error) {
	var a domain.Architecture
	err := q.QueryRowContext(ctx, `SELECT id,name,created_at FROM architectures WHERE id=?`, id).Scan(&a.ID, &a.Name, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	rows, err := q.QueryContext(ctx, `SELECT c.id,c.name,c.type,COALESCE(c.subtype,''),c.heuristics_json,c.properties_json,c.created_at,c.updated_at
FROM architecture_components ac JOIN components c ON c.id=ac.component_id
WHERE ac.architecture_id=? ORDER BY ac.position`, id)
	if err != nil {
		return a, err
	}
	a.Components = []domain.Component{}
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			rows.Close()
			return a, err
		}
		a.Components = append(a.Components, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return a, err
	}

	rows, err = q.QueryContext(ctx, `SELECT l.id,l.source_id,l.target_id,l.type,l.heuristics_json,l.properties_json,l.created_at
FROM architecture_links al JOIN links l ON l.id=al.link_id
WHERE al.architecture_id=? ORDER BY al.position`, id)
	if err != nil {
		return a, err
	}
	defer rows.Close()
	a.Links = []domain.Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return a, err
		}
		a.Links = append(a.Links, l)
	}
	return a, rows.Err()
}

type ArchitectureSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ComponentCount int    `json:"component_count"`
	LinkCount      int    `json:"link_count"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

func (r Repo) ListArchitectures(ctx context.Context) ([]ArchitectureSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT a.id,a.name,a.created_at,
  (SELECT COUNT(*) FROM architecture_components ac WHERE ac.architecture_id=a.id),
  (SELECT COUNT(*) FROM architecture_links al WHERE al.architecture_id=a.id)
FROM architectures a ORDER BY a.created_at DESC, a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []ArchitectureSummary{}
	for rows.Next() {
		var s ArchitectureSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.ComponentCount, &s.LinkCount); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) DeleteArchitecture(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM architectures WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Events

type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
}

// LatestEvents returns up to limit events, newest first.
func (r Repo) LatestEvents(ctx context.Context, limit int, f EventFilters) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, f)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, f EventFilters) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID, 0 when there are none.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// CountByType returns the number of stored components per type.
func (r Repo) CountByType(ctx context.Context) (map[domain.ComponentType]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT type, COUNT(*) FROM components GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.ComponentType]int{}
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, err
		}
		res[domain.ComponentType(typ)] = count
	}
	return res, rows.Err()
}

type Totals struct {
	Components    int `json:"components"`
	Links         int `json:"links"`
	Architectures int `json:"architectures"`
	Evaluations   int `json:"evaluations"`
}

// Totals counts the stored rows of each entity.
func (r Repo) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := r.DB.QueryRowContext(ctx, `SELECT
  (SELECT COUNT(*) FROM components),
  (SELECT COUNT(*) FROM links),
  (SELECT COUNT(*) FROM architectures),
  (SELECT COUNT(*) FROM evaluations)`).Scan(&t.Components, &t.Links, &t.Architectures, &t.Evaluations)
	return t, err
}
