package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	jsoncolumn "github.com/madeneat/wplogify/pkg/JsonColumn"
	stringtools "github.com/madeneat/wplogify/pkg/stringTools"
	"github.com/madeneat/wplogify/pkg/utils"
)

const eventColumns = `id, occurred_at, event_type, user_id, user_name, user_role, user_ip, user_location, user_agent,
	subject_kind, subject_key, subject_name, subject_subtype, properties, metas, memberships`

// PostgresRepository stores events in the "{prefix}events" table:
//
//	id BIGSERIAL PRIMARY KEY, occurred_at TIMESTAMPTZ, event_type VARCHAR(255),
//	user_id BIGINT, user_name TEXT, user_role VARCHAR(255), user_ip VARCHAR(45),
//	user_location TEXT, user_agent TEXT, subject_kind VARCHAR(64),
//	subject_key VARCHAR(255), subject_name TEXT, subject_subtype VARCHAR(255),
//	properties JSONB, metas JSONB, memberships JSONB
type PostgresRepository struct {
	db    *sqlx.DB
	table string
}

func NewPostgresRepository(db *sqlx.DB, tablePrefix string) *PostgresRepository {
	return &PostgresRepository{db: db, table: pq.QuoteIdentifier(tablePrefix + "events")}
}

type eventRow struct {
	ID             int64                                     `db:"id"`
	OccurredAt     time.Time                                 `db:"occurred_at"`
	EventType      string                                    `db:"event_type"`
	UserID         int64                                     `db:"user_id"`
	UserName       string                                    `db:"user_name"`
	UserRole       string                                    `db:"user_role"`
	UserIP         sql.NullString                            `db:"user_ip"`
	UserLocation   sql.NullString                            `db:"user_location"`
	UserAgent      sql.NullString                            `db:"user_agent"`
	SubjectKind    sql.NullString                            `db:"subject_kind"`
	SubjectKey     sql.NullString                            `db:"subject_key"`
	SubjectName    sql.NullString                            `db:"subject_name"`
	SubjectSubtype sql.NullString                            `db:"subject_subtype"`
	Properties     jsoncolumn.JsonColumn[PropertyChangeSet]  `db:"properties"`
	Metas          jsoncolumn.JsonColumn[MetaSet]            `db:"metas"`
	Memberships    jsoncolumn.JsonColumn[[]MembershipChange] `db:"memberships"`
}

func newEventRow(e *Event) eventRow {
	row := eventRow{
		OccurredAt:     e.occurredAt.UTC(),
		EventType:      e.eventType,
		UserID:         e.actor.UserID,
		UserName:       e.actor.DisplayName,
		UserRole:       e.actor.Role,
		UserIP:         utils.NewSQLNullString(e.actor.IP),
		UserLocation:   utils.NewSQLNullString(e.actor.Location),
		UserAgent:      utils.NewSQLNullString(e.actor.UserAgent),
		SubjectSubtype: utils.NewSQLNullString(e.subjectSubtype),
		Properties:     jsoncolumn.New(e.properties),
		Metas:          jsoncolumn.New(e.metas),
	}
	if e.subject != nil {
		row.SubjectKind = utils.NewSQLNullString(string(e.subject.kind))
		row.SubjectKey = utils.NewSQLNullString(e.subject.key.String())
		row.SubjectName = utils.NewSQLNullString(e.subject.name)
	}
	if memberships := dedupeMemberships(e.memberships); len(memberships) > 0 {
		row.Memberships = jsoncolumn.New(&memberships)
	}
	return row
}

func (r eventRow) event() *Event {
	e := &Event{
		id:         r.ID,
		occurredAt: r.OccurredAt,
		actor: ActorInfo{
			UserID:      r.UserID,
			DisplayName: r.UserName,
			Role:        r.UserRole,
			IP:          r.UserIP.String,
			Location:    r.UserLocation.String,
			UserAgent:   r.UserAgent.String,
		},
		eventType:      r.EventType,
		subjectSubtype: r.SubjectSubtype.String,
		properties:     r.Properties.Get(),
		metas:          r.Metas.Get(),
	}
	if r.SubjectKind.Valid && r.SubjectKey.Valid {
		key := StringKey(r.SubjectKey.String)
		if stringtools.IsInteger(r.SubjectKey.String) {
			if n, err := strconv.ParseInt(r.SubjectKey.String, 10, 64); err == nil {
				key = IntKey(n)
			}
		}
		e.subject = &EntityReference{kind: EntityKind(r.SubjectKind.String), key: key, name: r.SubjectName.String}
	}
	if m := r.Memberships.Get(); m != nil {
		e.memberships = *m
	}
	return e
}

func (p *PostgresRepository) Save(ctx context.Context, event *Event) (*Event, error) {
	if event == nil {
		return nil, ErrNilEvent
	}
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	row := newEventRow(event)
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, event_type, user_id, user_name, user_role, user_ip, user_location, user_agent,
		subject_kind, subject_key, subject_name, subject_subtype, properties, metas, memberships)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`, p.table)

	var id int64
	err := p.db.QueryRowxContext(ctx, query,
		row.OccurredAt, row.EventType, row.UserID, row.UserName, row.UserRole,
		row.UserIP, row.UserLocation, row.UserAgent,
		row.SubjectKind, row.SubjectKey, row.SubjectName, row.SubjectSubtype,
		row.Properties, row.Metas, row.Memberships,
	).Scan(&id)
	if err != nil {
		return nil, persistErr("save", err)
	}

	saved := event.withID(id)
	saved.memberships = dedupeMemberships(saved.memberships)
	return saved, nil
}

func (p *PostgresRepository) FindByID(ctx context.Context, id int64) (*Event, error) {
	var row eventRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, eventColumns, p.table)
	err := p.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, persistErr("find", err)
	}
	return row.event(), nil
}

// whereClause renders the filters of q with positional arguments.
func whereClause(q *EventQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(q.EventTypes) > 0 {
		add("event_type = ANY($%d)", pq.Array(q.EventTypes))
	}
	if q.ActorID != nil {
		add("user_id = $%d", *q.ActorID)
	}
	if q.SubjectKind != "" {
		add("subject_kind = $%d", string(q.SubjectKind))
	}
	if q.SubjectKey != "" {
		add("subject_key = $%d", q.SubjectKey)
	}
	if !q.StartDate.IsZero() {
		add("occurred_at >= $%d", q.StartDate.UTC())
	}
	if !q.EndDate.IsZero() {
		add("occurred_at <= $%d", q.EndDate.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (p *PostgresRepository) Query(ctx context.Context, q *EventQuery) (*EventQueryResult, error) {
	if q == nil {
		q = &EventQuery{}
	}
	where, args := whereClause(q)

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, p.table, where)
	if err := p.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, persistErr("count", err)
	}

	limit := q.limit()
	pageArgs := append(append([]any(nil), args...), limit, q.offset())
	selectQuery := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		eventColumns, p.table, where, len(args)+1, len(args)+2)

	var rows []eventRow
	if err := p.db.SelectContext(ctx, &rows, selectQuery, pageArgs...); err != nil {
		return nil, persistErr("query", err)
	}

	result := &EventQueryResult{Total: total, Limit: limit, Offset: q.offset(), Events: make([]*Event, 0, len(rows))}
	for _, row := range rows {
		result.Events = append(result.Events, row.event())
	}
	return result, nil
}

func (p *PostgresRepository) LatestByActorAndType(ctx context.Context, userID int64, eventType string) (*Event, error) {
	var row eventRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1 AND event_type = $2 ORDER BY occurred_at DESC, id DESC LIMIT 1`,
		eventColumns, p.table)
	err := p.db.GetContext(ctx, &row, query, userID, eventType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no %q event for user %d", ErrEventNotFound, eventType, userID)
	}
	if err != nil {
		return nil, persistErr("latest", err)
	}
	return row.event(), nil
}

// UpdateMetas locks the row, merges metas and writes them back.
func (p *PostgresRepository) UpdateMetas(ctx context.Context, id int64, metas *MetaSet) (updated *Event, err error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, persistErr("update metas", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var row eventRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, eventColumns, p.table)
	err = tx.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, persistErr("update metas", err)
	}

	updated = row.event().withMetas(metas)
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET metas = $1 WHERE id = $2`, p.table),
		jsoncolumn.New(updated.metas), id)
	if err != nil {
		return nil, persistErr("update metas", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, persistErr("update metas", err)
	}
	return updated, nil
}

func (p *PostgresRepository) DeleteOlderThan(ctx context.Context, date time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE occurred_at < $1`, p.table), date.UTC())
	if err != nil {
		return 0, persistErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistErr("delete", err)
	}
	return n, nil
}

func (p *PostgresRepository) Stats(ctx context.Context, start, end time.Time) (*EventStats, error) {
	stats := &EventStats{Start: start, End: end, TypeCounts: make(map[string]int64)}

	var summary struct {
		Total    int64   `db:"total"`
		Actors   int64   `db:"actors"`
		Subjects int64   `db:"subjects"`
		AvgProps float64 `db:"avg_props"`
	}
	summaryQuery := fmt.Sprintf(`SELECT COUNT(*) AS total,
		COUNT(DISTINCT user_id) AS actors,
		COUNT(DISTINCT subject_kind || ':' || subject_key) AS subjects,
		COALESCE(AVG(jsonb_array_length(COALESCE(properties, '[]'::jsonb))), 0) AS avg_props
		FROM %s WHERE occurred_at BETWEEN $1 AND $2`, p.table)
	if err := p.db.GetContext(ctx, &summary, summaryQuery, start.UTC(), end.UTC()); err != nil {
		return nil, persistErr("stats", err)
	}

	var counts []struct {
		EventType string `db:"event_type"`
		Count     int64  `db:"count"`
	}
	countQuery := fmt.Sprintf(`SELECT event_type, COUNT(*) AS count FROM %s
		WHERE occurred_at BETWEEN $1 AND $2 GROUP BY event_type`, p.table)
	if err := p.db.SelectContext(ctx, &counts, countQuery, start.UTC(), end.UTC()); err != nil {
		return nil, persistErr("stats", err)
	}

	stats.TotalRecords = summary.Total
	stats.UniqueActors = summary.Actors
	stats.UniqueSubjects = summary.Subjects
	stats.AveragePropsChanged = summary.AvgProps
	for _, c := range counts {
		stats.TypeCounts[c.EventType] = c.Count
	}
	return stats, nil
}

func (p *PostgresRepository) Close() error { return p.db.Close() }

func (p *PostgresRepository) Health(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return persistErr("health", err)
	}
	return nil
}
