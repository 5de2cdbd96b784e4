package domain

import (
	"context"
	"time"
)

type DeviceType string

const (
	DeviceTypeSpeaker     DeviceType = "speaker"
	DeviceTypeSmokeSensor DeviceType = "smoke-sensor"
)

func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeSpeaker, DeviceTypeSmokeSensor:
		return true
	}
	return false
}

type Device struct {
	ID           int64                  `json:"id"`
	DeviceID     string                 `json:"device_id"`
	Type         DeviceType             `json:"type"`
	MSISDN       *string                `json:"msisdn"`
	SubscriberID *string                `json:"subscriber_id"`
	Vendor       *string                `json:"vendor"`
	Endpoint     *string                `json:"endpoint"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// HasEndpoint reports whether the device can receive notifications.
func (d *Device) HasEndpoint() bool {
	return d.Endpoint != nil && *d.Endpoint != ""
}

// DeviceUpdate carries the mutable device fields. Nil fields are left untouched.
type DeviceUpdate struct {
	MSISDN       *string
	SubscriberID *string
	Vendor       *string
	Endpoint     *string
	Metadata     map[string]interface{}
}

type DeviceFilter struct {
	MSISDN *string
}

type DeviceRepository interface {
	Create(ctx context.Context, device *Device) error
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)
	GetSpeakerByMSISDN(ctx context.Context, msisdn string) (*Device, error)
	List(ctx context.Context, filter DeviceFilter) ([]*Device, error)
	Update(ctx context.Context, deviceID string, upd DeviceUpdate) (*Device, error)
	Delete(ctx context.Context, deviceID string) error
}
