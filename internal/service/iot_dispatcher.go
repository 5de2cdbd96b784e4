package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CaioWing/iotgateway/internal/domain"
	"github.com/CaioWing/iotgateway/internal/telephony"
)

// DeviceEventResult is returned for every handled device event.
type DeviceEventResult struct {
	Success    bool                  `json:"success"`
	RuleID     *int64                `json:"rule_id"`
	Target     *string               `json:"target"`
	CallResult *telephony.CallResult `json:"call_result"`
}

// IoTDispatcher turns device events into outbound calls.
type IoTDispatcher struct {
	devices  domain.DeviceRepository
	rules    domain.RuleRepository
	events   *EventLogService
	calls    telephony.Originator
	callerID string
	log      *slog.Logger
}

func NewIoTDispatcher(
	devices domain.DeviceRepository,
	rules domain.RuleRepository,
	events *EventLogService,
	calls telephony.Originator,
	callerID string,
	log *slog.Logger,
) *IoTDispatcher {
	return &IoTDispatcher{
		devices:  devices,
		rules:    rules,
		events:   events,
		calls:    calls,
		callerID: callerID,
		log:      log,
	}
}

// HandleDeviceEvent resolves the active call rule for the device event, places
// the call and records exactly one event log entry. Errors are either
// ErrInvalidInput for identifiers the store cannot hold, rejected before any
// lookup or log entry, or a storage failure. Every other outcome is in the
// result.
func (d *IoTDispatcher) HandleDeviceEvent(ctx context.Context, eventType, deviceID string) (*DeviceEventResult, error) {
	if err := checkDeviceEvent(eventType, deviceID); err != nil {
		return nil, err
	}

	start := time.Now()
	entry := &domain.EventLog{
		EventKind: domain.EventKindSmokeTriggerCall,
		DeviceID:  &deviceID,
		Result:    domain.ResultFailure,
	}

	if _, err := d.devices.GetByDeviceID(ctx, deviceID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup device: %w", err)
		}
		entry.Details = map[string]interface{}{"reason": domain.ReasonDeviceNotFound}
		d.log.Info("device event for unknown device", "device_id", deviceID, "event_type", eventType)
		return d.finish(ctx, entry, start, &DeviceEventResult{})
	}

	rule, err := d.rules.GetActiveByEventAndDevice(ctx, eventType, deviceID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup rule: %w", err)
	}
	if rule == nil || rule.ActionType != domain.ActionCall {
		entry.Details = map[string]interface{}{
			"reason":     domain.ReasonNoRuleOrNotCall,
			"event_type": eventType,
		}
		d.log.Info("no call rule for device event", "device_id", deviceID, "event_type", eventType)
		return d.finish(ctx, entry, start, &DeviceEventResult{})
	}

	target := rule.Target
	call := d.calls.Originate(ctx, telephony.OriginateRequest{
		Destination: target,
		CallerID:    d.callerID,
	})

	entry.Result = domain.ResultOf(call.Success)
	entry.RuleID = &rule.ID
	entry.CallID = call.CallID
	entry.TargetNumber = &target
	entry.Details = call.Details()

	d.log.Info("device event dispatched",
		"device_id", deviceID,
		"event_type", eventType,
		"rule_id", rule.ID,
		"target", target,
		"backend", d.calls.Backend(),
		"success", call.Success,
	)

	return d.finish(ctx, entry, start, &DeviceEventResult{
		Success:    call.Success,
		RuleID:     &rule.ID,
		Target:     &target,
		CallResult: &call,
	})
}

func (d *IoTDispatcher) finish(ctx context.Context, entry *domain.EventLog, start time.Time, res *DeviceEventResult) (*DeviceEventResult, error) {
	if err := d.events.Record(ctx, entry, time.Since(start)); err != nil {
		return nil, err
	}
	return res, nil
}

func checkDeviceEvent(eventType, deviceID string) error {
	if err := domain.CheckField("event_type", eventType, domain.MaxEventTypeLen); err != nil {
		return err
	}
	return domain.CheckField("device_id", deviceID, domain.MaxDeviceIDLen)
}
