package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CaioWing/iotgateway/internal/domain"
	"github.com/CaioWing/iotgateway/internal/telephony"
)

type RuleService struct {
	repo domain.RuleRepository
	log  *slog.Logger
}

func NewRuleService(repo domain.RuleRepository, log *slog.Logger) *RuleService {
	return &RuleService{repo: repo, log: log}
}

type CreateRuleInput struct {
	EventType  string
	DeviceID   string
	ActionType string
	Target     string
	Active     *bool
}

func (s *RuleService) Create(ctx context.Context, input CreateRuleInput) (*domain.Rule, error) {
	rule := &domain.Rule{
		EventType:  strings.TrimSpace(input.EventType),
		DeviceID:   strings.TrimSpace(input.DeviceID),
		ActionType: input.ActionType,
		Target:     strings.TrimSpace(input.Target),
		Active:     true,
	}
	if rule.ActionType == "" {
		rule.ActionType = domain.ActionCall
	}
	if input.Active != nil {
		rule.Active = *input.Active
	}

	switch {
	case rule.EventType == "":
		return nil, fmt.Errorf("%w: event_type is required", domain.ErrInvalidInput)
	case rule.DeviceID == "":
		return nil, fmt.Errorf("%w: device_id is required", domain.ErrInvalidInput)
	case rule.Target == "":
		return nil, fmt.Errorf("%w: target is required", domain.ErrInvalidInput)
	}
	if err := domain.CheckField("event_type", rule.EventType, domain.MaxEventTypeLen); err != nil {
		return nil, err
	}
	if err := domain.CheckField("device_id", rule.DeviceID, domain.MaxDeviceIDLen); err != nil {
		return nil, err
	}
	if err := checkTarget(rule.Target); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.log.Info("rule created", "id", rule.ID, "event_type", rule.EventType, "device_id", rule.DeviceID)
	return rule, nil
}

func (s *RuleService) Get(ctx context.Context, id int64) (*domain.Rule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *RuleService) List(ctx context.Context) ([]*domain.Rule, error) {
	return s.repo.List(ctx)
}

func (s *RuleService) Update(ctx context.Context, id int64, upd domain.RuleUpdate) (*domain.Rule, error) {
	if upd.Target != nil {
		target := strings.TrimSpace(*upd.Target)
		if target == "" {
			return nil, fmt.Errorf("%w: target must not be empty", domain.ErrInvalidInput)
		}
		if err := checkTarget(target); err != nil {
			return nil, err
		}
		upd.Target = &target
	}
	if upd.ActionType != nil && *upd.ActionType == "" {
		return nil, fmt.Errorf("%w: action_type must not be empty", domain.ErrInvalidInput)
	}
	rule, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.log.Info("rule updated", "id", id, "active", rule.Active)
	return rule, nil
}

func (s *RuleService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// checkTarget accepts dial strings only. The target ends up on a FreeSWITCH
// command line.
func checkTarget(target string) error {
	if !telephony.ValidDestination(target) {
		return fmt.Errorf("%w: target must be a dial string of digits, '*' or '#' with an optional leading '+'", domain.ErrInvalidInput)
	}
	return nil
}
