package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/CaioWing/iotgateway/internal/domain"
	"github.com/CaioWing/iotgateway/internal/notify"
	"github.com/CaioWing/iotgateway/internal/telephony"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// errUnstorable stands in for the Postgres data errors (22001, 22021, 22P05)
// raised for values the schema cannot hold.
var errUnstorable = errors.New("value not storable")

func checkColumn(name string, v *string, width int) error {
	if v == nil {
		return nil
	}
	if strings.IndexByte(*v, 0) >= 0 || utf8.RuneCountInString(*v) > width {
		return fmt.Errorf("%w: %s", errUnstorable, name)
	}
	return nil
}

// --- Mock Device Repository ---

type mockDeviceRepo struct {
	mu      sync.RWMutex
	nextID  int64
	devices map[string]*domain.Device
	err     error // returned by every call when set
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{devices: make(map[string]*domain.Device)}
}

func (m *mockDeviceRepo) Create(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, exists := m.devices[d.DeviceID]; exists {
		return domain.ErrConflict
	}
	m.nextID++
	d.ID = m.nextID
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	m.devices[d.DeviceID] = d
	return nil
}

func (m *mockDeviceRepo) GetByDeviceID(_ context.Context, deviceID string) (*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if err := checkColumn("device_id", &deviceID, domain.MaxDeviceIDLen); err != nil {
		return nil, err
	}
	if d, ok := m.devices[deviceID]; ok {
		return d, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockDeviceRepo) GetSpeakerByMSISDN(_ context.Context, msisdn string) (*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if strings.IndexByte(msisdn, 0) >= 0 {
		return nil, fmt.Errorf("%w: msisdn", errUnstorable)
	}
	var found *domain.Device
	for _, d := range m.devices {
		if d.Type != domain.DeviceTypeSpeaker || d.MSISDN == nil || *d.MSISDN != msisdn {
			continue
		}
		if found == nil || d.ID < found.ID {
			found = d
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return found, nil
}

func (m *mockDeviceRepo) List(_ context.Context, f domain.DeviceFilter) ([]*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	var result []*domain.Device
	for _, d := range m.devices {
		if f.MSISDN != nil && (d.MSISDN == nil || *d.MSISDN != *f.MSISDN) {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockDeviceRepo) Update(_ context.Context, deviceID string, upd domain.DeviceUpdate) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.devices[deviceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if upd.MSISDN != nil {
		d.MSISDN = upd.MSISDN
	}
	if upd.SubscriberID != nil {
		d.SubscriberID = upd.SubscriberID
	}
	if upd.Vendor != nil {
		d.Vendor = upd.Vendor
	}
	if upd.Endpoint != nil {
		d.Endpoint = upd.Endpoint
	}
	if upd.Metadata != nil {
		d.Metadata = upd.Metadata
	}
	d.UpdatedAt = time.Now()
	return d, nil
}

func (m *mockDeviceRepo) Delete(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.devices[deviceID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.devices, deviceID)
	return nil
}

// --- Mock Rule Repository ---

type mockRuleRepo struct {
	mu     sync.RWMutex
	nextID int64
	rules  map[int64]*domain.Rule
	err    error
}

func newMockRuleRepo() *mockRuleRepo {
	return &mockRuleRepo{rules: make(map[int64]*domain.Rule)}
}

func (m *mockRuleRepo) activeClash(r *domain.Rule) bool {
	if !r.Active {
		return false
	}
	for _, other := range m.rules {
		if other.ID != r.ID && other.Active && other.EventType == r.EventType && other.DeviceID == r.DeviceID {
			return true
		}
	}
	return false
}

func (m *mockRuleRepo) Create(_ context.Context, r *domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.activeClash(r) {
		return domain.ErrConflict
	}
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.rules[r.ID] = r
	return nil
}

func (m *mockRuleRepo) GetByID(_ context.Context, id int64) (*domain.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if r, ok := m.rules[id]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockRuleRepo) GetActiveByEventAndDevice(_ context.Context, eventType, deviceID string) (*domain.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.rules {
		if r.Active && r.EventType == eventType && r.DeviceID == deviceID {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockRuleRepo) List(_ context.Context) ([]*domain.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	var result []*domain.Rule
	for _, r := range m.rules {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockRuleRepo) Update(_ context.Context, id int64, upd domain.RuleUpdate) (*domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.rules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := *r
	if upd.ActionType != nil {
		next.ActionType = *upd.ActionType
	}
	if upd.Target != nil {
		next.Target = *upd.Target
	}
	if upd.Active != nil {
		next.Active = *upd.Active
	}
	if m.activeClash(&next) {
		return nil, domain.ErrConflict
	}
	next.UpdatedAt = time.Now()
	*r = next
	return r, nil
}

func (m *mockRuleRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.rules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

// --- Mock Event Log Repository ---

type mockEventLogRepo struct {
	mu      sync.Mutex
	entries []*domain.EventLog
	err     error
	cutoff  time.Time
}

func newMockEventLogRepo() *mockEventLogRepo {
	return &mockEventLogRepo{}
}

func (m *mockEventLogRepo) Create(_ context.Context, e *domain.EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if err := storable(e); err != nil {
		return err
	}
	e.ID = int64(len(m.entries) + 1)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, e)
	return nil
}

// storable applies the event_logs column rules.
func storable(e *domain.EventLog) error {
	for _, c := range []struct {
		name  string
		v     *string
		width int
	}{
		{"device_id", e.DeviceID, domain.MaxDeviceIDLen},
		{"call_id", e.CallID, domain.MaxCallIDLen},
		{"target_number", e.TargetNumber, domain.MaxTargetLen},
	} {
		if err := checkColumn(c.name, c.v, c.width); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	if strings.Contains(string(raw), `\u0000`) {
		return fmt.Errorf("%w: details", errUnstorable)
	}
	return nil
}

func (m *mockEventLogRepo) List(_ context.Context, f domain.EventLogFilter) ([]*domain.EventLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, m.err
	}
	var result []*domain.EventLog
	for _, e := range m.entries {
		if f.EventKind != nil && e.EventKind != *f.EventKind {
			continue
		}
		if f.Result != nil && e.Result != *f.Result {
			continue
		}
		if f.DeviceID != nil && (e.DeviceID == nil || *e.DeviceID != *f.DeviceID) {
			continue
		}
		result = append(result, e)
	}
	return result, len(result), nil
}

func (m *mockEventLogRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.cutoff = cutoff
	kept := m.entries[:0]
	var removed int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}

func (m *mockEventLogRepo) all() []*domain.EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.EventLog(nil), m.entries...)
}

// --- Stub collaborators ---

type stubOriginator struct {
	mu     sync.Mutex
	result telephony.CallResult
	calls  []telephony.OriginateRequest
}

func (s *stubOriginator) Originate(_ context.Context, req telephony.OriginateRequest) telephony.CallResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return s.result
}

func (s *stubOriginator) Backend() string { return "stub" }

func (s *stubOriginator) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type notifyCall struct {
	endpoint string
	payload  any
}

type stubNotifier struct {
	mu     sync.Mutex
	result notify.Result
	calls  []notifyCall
}

func (s *stubNotifier) Notify(_ context.Context, endpoint string, payload any) notify.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, notifyCall{endpoint: endpoint, payload: payload})
	return s.result
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []domain.Result
}

func (o *recordingObserver) ObserveDispatch(_ domain.EventKind, result domain.Result, _ string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, result)
}
