package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CaioWing/iotgateway/internal/domain"
)

type RuleRepo struct {
	pool *pgxpool.Pool
}

func NewRuleRepo(pool *pgxpool.Pool) *RuleRepo {
	return &RuleRepo{pool: pool}
}

const ruleColumns = `id, event_type, device_id, action_type, target, active, created_at, updated_at`

func (r *RuleRepo) Create(ctx context.Context, rule *domain.Rule) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO rules (event_type, device_id, action_type, target, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, rule.EventType, rule.DeviceID, rule.ActionType, rule.Target, rule.Active).
		Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return wrap("insert rule", err)
	}
	return nil
}

func (r *RuleRepo) GetByID(ctx context.Context, id int64) (*domain.Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get rule", err)
	}
	return rule, nil
}

func (r *RuleRepo) GetActiveByEventAndDevice(ctx context.Context, eventType, deviceID string) (*domain.Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE event_type = $1 AND device_id = $2 AND active
	`, eventType, deviceID))
	if err != nil {
		return nil, wrap("get active rule", err)
	}
	return rule, nil
}

func (r *RuleRepo) List(ctx context.Context) ([]*domain.Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY id`)
	if err != nil {
		return nil, wrap("list rules", err)
	}
	defer rows.Close()

	rules := []*domain.Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, wrap("scan rule", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list rules", err)
	}
	return rules, nil
}

func (r *RuleRepo) Update(ctx context.Context, id int64, upd domain.RuleUpdate) (*domain.Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `
		UPDATE rules SET
			action_type = COALESCE($2, action_type),
			target      = COALESCE($3, target),
			active      = COALESCE($4, active),
			updated_at  = NOW()
		WHERE id = $1
		RETURNING `+ruleColumns,
		id, upd.ActionType, upd.Target, upd.Active))
	if err != nil {
		return nil, wrap("update rule", err)
	}
	return rule, nil
}

func (r *RuleRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return wrap("delete rule", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanRule(row pgx.Row) (*domain.Rule, error) {
	rule := &domain.Rule{}
	if err := row.Scan(
		&rule.ID, &rule.EventType, &rule.DeviceID, &rule.ActionType,
		&rule.Target, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return rule, nil
}
