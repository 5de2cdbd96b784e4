package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CaioWing/iotgateway/internal/domain"
)

type EventLogRepo struct {
	pool *pgxpool.Pool
}

func NewEventLogRepo(pool *pgxpool.Pool) *EventLogRepo {
	return &EventLogRepo{pool: pool}
}

func (r *EventLogRepo) Create(ctx context.Context, e *domain.EventLog) error {
	var detailsJSON []byte
	if e.Details != nil {
		var err error
		if detailsJSON, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO event_logs (event_kind, device_id, rule_id, call_id, target_number, result, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, e.EventKind, e.DeviceID, e.RuleID, e.CallID, e.TargetNumber, e.Result, detailsJSON).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return wrap("insert event log", err)
	}
	return nil
}

func (r *EventLogRepo) List(ctx context.Context, f domain.EventLogFilter) ([]*domain.EventLog, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 500 {
		f.PerPage = 50
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if f.EventKind != nil {
		where += fmt.Sprintf(" AND event_kind = $%d", argIdx)
		args = append(args, *f.EventKind)
		argIdx++
	}
	if f.DeviceID != nil {
		where += fmt.Sprintf(" AND device_id = $%d", argIdx)
		args = append(args, *f.DeviceID)
		argIdx++
	}
	if f.Result != nil {
		where += fmt.Sprintf(" AND result = $%d", argIdx)
		args = append(args, *f.Result)
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM event_logs "+where, args...).Scan(&total); err != nil {
		return nil, 0, wrap("count event logs", err)
	}

	offset := (f.Page - 1) * f.PerPage
	query := fmt.Sprintf(`
		SELECT id, event_kind, device_id, rule_id, call_id, target_number, result, details, created_at
		FROM event_logs %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, argIdx, argIdx+1)
	args = append(args, f.PerPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, wrap("list event logs", err)
	}
	defer rows.Close()

	entries := []*domain.EventLog{}
	for rows.Next() {
		e := &domain.EventLog{}
		var detailsJSON []byte
		if err := rows.Scan(
			&e.ID, &e.EventKind, &e.DeviceID, &e.RuleID, &e.CallID,
			&e.TargetNumber, &e.Result, &detailsJSON, &e.CreatedAt,
		); err != nil {
			return nil, 0, wrap("scan event log", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				e.Details = map[string]interface{}{}
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrap("list event logs", err)
	}

	return entries, total, nil
}

func (r *EventLogRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM event_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, wrap("prune event logs", err)
	}
	return tag.RowsAffected(), nil
}
