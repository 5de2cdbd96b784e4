package domain

import (
	"context"
	"time"
)

const ActionCall = "call"

type Rule struct {
	ID         int64     `json:"id"`
	EventType  string    `json:"event_type"`
	DeviceID   string    `json:"device_id"`
	ActionType string    `json:"action_type"`
	Target     string    `json:"target"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type RuleUpdate struct {
	ActionType *string
	Target     *string
	Active     *bool
}

type RuleRepository interface {
	Create(ctx context.Context, rule *Rule) error
	GetByID(ctx context.Context, id int64) (*Rule, error)
	// GetActiveByEventAndDevice returns the single active rule bound to the
	// (eventType, deviceID) pair. At most one can exist; the store enforces it.
	GetActiveByEventAndDevice(ctx context.Context, eventType, deviceID string) (*Rule, error)
	List(ctx context.Context) ([]*Rule, error)
	Update(ctx context.Context, id int64, upd RuleUpdate) (*Rule, error)
	Delete(ctx context.Context, id int64) error
}
