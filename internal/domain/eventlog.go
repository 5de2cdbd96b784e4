package domain

import (
	"context"
	"time"
	"unicode/utf8"
)

type EventKind string

const (
	EventKindSmokeTriggerCall   EventKind = "smoke_trigger_call"
	EventKindIncomingCallNotify EventKind = "incoming_call_notify"
)

type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

func ResultOf(ok bool) Result {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// Failure reasons recorded under details["reason"].
const (
	ReasonDeviceNotFound     = "device_not_found"
	ReasonNoRuleOrNotCall    = "no_rule_or_not_call"
	ReasonNoSpeakerForMSISDN = "no_speaker_for_msisdn"
	ReasonNoEndpoint         = "no_endpoint"
)

// EventLog is one dispatch attempt. Rows are append-only.
type EventLog struct {
	ID           int64                  `json:"id"`
	EventKind    EventKind              `json:"event_kind"`
	DeviceID     *string                `json:"device_id"`
	RuleID       *int64                 `json:"rule_id"`
	CallID       *string                `json:"call_id"`
	TargetNumber *string                `json:"target_number"`
	Result       Result                 `json:"result"`
	Details      map[string]interface{} `json:"details"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Sanitize makes an entry storable. Values reported by remote peers, such as
// call ids or response bodies, may carry NUL bytes or exceed the column width.
func (e *EventLog) Sanitize() {
	e.DeviceID = sanitizePtr(e.DeviceID, MaxDeviceIDLen)
	e.CallID = sanitizePtr(e.CallID, MaxCallIDLen)
	e.TargetNumber = sanitizePtr(e.TargetNumber, MaxTargetLen)
	if e.Details != nil {
		e.Details = sanitizeValue(e.Details).(map[string]interface{})
	}
}

func sanitizePtr(s *string, max int) *string {
	if s == nil {
		return nil
	}
	v := StripNUL(*s)
	if utf8.RuneCountInString(v) > max {
		v = string([]rune(v)[:max])
	}
	return &v
}

func sanitizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return StripNUL(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[StripNUL(k)] = sanitizeValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = sanitizeValue(val)
		}
		return out
	}
	return v
}

type EventLogFilter struct {
	EventKind *EventKind
	DeviceID  *string
	Result    *Result
	Page      int
	PerPage   int
}

type EventLogRepository interface {
	Create(ctx context.Context, entry *EventLog) error
	List(ctx context.Context, filter EventLogFilter) ([]*EventLog, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
