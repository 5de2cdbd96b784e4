package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/CaioWing/iotgateway/internal/domain"
	"github.com/CaioWing/iotgateway/internal/notify"
)

const eventIncomingCall = "incoming_call"

type IncomingCallResult struct {
	Notified bool    `json:"notified"`
	DeviceID *string `json:"device_id"`
	Error    *string `json:"error"`
	CallID   string  `json:"call_id"`
}

type incomingCallPayload struct {
	Event   string `json:"event"`
	FromCLI string `json:"from_cli"`
	CallID  string `json:"call_id"`
}

// CallDispatcher turns incoming calls into speaker notifications.
type CallDispatcher struct {
	devices  domain.DeviceRepository
	events   *EventLogService
	notifier notify.Notifier
	log      *slog.Logger
}

func NewCallDispatcher(
	devices domain.DeviceRepository,
	events *EventLogService,
	notifier notify.Notifier,
	log *slog.Logger,
) *CallDispatcher {
	return &CallDispatcher{
		devices:  devices,
		events:   events,
		notifier: notifier,
		log:      log,
	}
}

// HandleIncomingCall notifies the speaker registered for toMSISDN. An empty
// callID is replaced with a random UUID. Exactly one event log entry is
// written. Errors are ErrInvalidInput for unstorable identifiers, returned
// before anything is looked up, or storage failures.
func (d *CallDispatcher) HandleIncomingCall(ctx context.Context, toMSISDN, fromCLI, callID string) (*IncomingCallResult, error) {
	if err := checkIncomingCall(toMSISDN, fromCLI, callID); err != nil {
		return nil, err
	}

	start := time.Now()
	if callID == "" {
		callID = uuid.NewString()
	}

	entry := &domain.EventLog{
		EventKind: domain.EventKindIncomingCallNotify,
		CallID:    &callID,
		Result:    domain.ResultFailure,
	}

	device, err := d.devices.GetSpeakerByMSISDN(ctx, toMSISDN)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup speaker: %w", err)
		}
		entry.Details = map[string]interface{}{
			"reason":    domain.ReasonNoSpeakerForMSISDN,
			"to_msisdn": toMSISDN,
		}
		d.log.Info("incoming call for unregistered msisdn", "to_msisdn", toMSISDN, "call_id", callID)
		return d.finish(ctx, entry, start, &IncomingCallResult{
			Error:  domain.Ptr(domain.ReasonNoSpeakerForMSISDN),
			CallID: callID,
		})
	}

	entry.DeviceID = &device.DeviceID

	if !device.HasEndpoint() {
		entry.Details = map[string]interface{}{"reason": domain.ReasonNoEndpoint}
		d.log.Warn("speaker has no endpoint", "device_id", device.DeviceID)
		return d.finish(ctx, entry, start, &IncomingCallResult{
			DeviceID: &device.DeviceID,
			Error:    domain.Ptr(domain.ReasonNoEndpoint),
			CallID:   callID,
		})
	}

	res := d.notifier.Notify(ctx, *device.Endpoint, incomingCallPayload{
		Event:   eventIncomingCall,
		FromCLI: fromCLI,
		CallID:  callID,
	})

	entry.Result = domain.ResultOf(res.Success)
	entry.Details = res.Details()

	out := &IncomingCallResult{
		Notified: res.Success,
		DeviceID: &device.DeviceID,
		CallID:   callID,
	}
	if !res.Success {
		out.Error = notifyError(res)
	}

	d.log.Info("incoming call dispatched",
		"device_id", device.DeviceID,
		"call_id", callID,
		"notified", res.Success,
	)
	return d.finish(ctx, entry, start, out)
}

func (d *CallDispatcher) finish(ctx context.Context, entry *domain.EventLog, start time.Time, res *IncomingCallResult) (*IncomingCallResult, error) {
	if err := d.events.Record(ctx, entry, time.Since(start)); err != nil {
		return nil, err
	}
	return res, nil
}

// notifyError picks the caller-facing error: the transport error, else the
// device's response body, else its status.
func notifyError(res notify.Result) *string {
	switch {
	case res.Error != nil:
		return res.Error
	case res.Body != nil:
		return res.Body
	case res.StatusCode != nil:
		return domain.Ptr(fmt.Sprintf("status %d", *res.StatusCode))
	}
	return domain.Ptr("notify failed")
}

func checkIncomingCall(toMSISDN, fromCLI, callID string) error {
	if err := domain.CheckField("to_msisdn", toMSISDN, domain.MaxMSISDNLen); err != nil {
		return err
	}
	if err := domain.CheckField("from_cli", fromCLI, domain.MaxCallIDLen); err != nil {
		return err
	}
	return domain.CheckField("call_id", callID, domain.MaxCallIDLen)
}
