package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/CaioWing/iotgateway/internal/domain"
)

type DeviceService struct {
	repo domain.DeviceRepository
	log  *slog.Logger
}

func NewDeviceService(repo domain.DeviceRepository, log *slog.Logger) *DeviceService {
	return &DeviceService{repo: repo, log: log}
}

type CreateDeviceInput struct {
	DeviceID     string
	Type         domain.DeviceType
	MSISDN       *string
	SubscriberID *string
	Vendor       *string
	Endpoint     *string
	Metadata     map[string]interface{}
}

func (s *DeviceService) Create(ctx context.Context, input CreateDeviceInput) (*domain.Device, error) {
	deviceID := strings.TrimSpace(input.DeviceID)
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", domain.ErrInvalidInput)
	}
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: type must be %q or %q",
			domain.ErrInvalidInput, domain.DeviceTypeSpeaker, domain.DeviceTypeSmokeSensor)
	}
	if err := domain.CheckField("device_id", deviceID, domain.MaxDeviceIDLen); err != nil {
		return nil, err
	}
	if err := validateProfile(input.MSISDN, input.SubscriberID, input.Vendor, input.Endpoint); err != nil {
		return nil, err
	}

	device := &domain.Device{
		DeviceID:     deviceID,
		Type:         input.Type,
		MSISDN:       input.MSISDN,
		SubscriberID: input.SubscriberID,
		Vendor:       input.Vendor,
		Endpoint:     input.Endpoint,
		Metadata:     input.Metadata,
	}
	if device.Metadata == nil {
		device.Metadata = map[string]interface{}{}
	}

	if err := s.repo.Create(ctx, device); err != nil {
		return nil, err
	}
	s.log.Info("device registered", "device_id", device.DeviceID, "type", device.Type)
	return device, nil
}

func (s *DeviceService) Get(ctx context.Context, deviceID string) (*domain.Device, error) {
	return s.repo.GetByDeviceID(ctx, deviceID)
}

func (s *DeviceService) List(ctx context.Context, filter domain.DeviceFilter) ([]*domain.Device, error) {
	return s.repo.List(ctx, filter)
}

func (s *DeviceService) Update(ctx context.Context, deviceID string, upd domain.DeviceUpdate) (*domain.Device, error) {
	if err := validateProfile(upd.MSISDN, upd.SubscriberID, upd.Vendor, upd.Endpoint); err != nil {
		return nil, err
	}
	device, err := s.repo.Update(ctx, deviceID, upd)
	if err != nil {
		return nil, err
	}
	s.log.Info("device updated", "device_id", deviceID)
	return device, nil
}

// Delete removes the device. Rules and event logs referencing it are kept.
func (s *DeviceService) Delete(ctx context.Context, deviceID string) error {
	if err := s.repo.Delete(ctx, deviceID); err != nil {
		return err
	}
	s.log.Info("device deleted", "device_id", deviceID)
	return nil
}

func validateProfile(msisdn, subscriberID, vendor, endpoint *string) error {
	fields := []struct {
		name  string
		value *string
		max   int
	}{
		{"msisdn", msisdn, domain.MaxMSISDNLen},
		{"subscriber_id", subscriberID, domain.MaxSubscriberIDLen},
		{"vendor", vendor, domain.MaxVendorLen},
		{"endpoint", endpoint, domain.MaxEndpointLen},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		if err := domain.CheckField(f.name, *f.value, f.max); err != nil {
			return err
		}
	}
	return validateEndpoint(endpoint)
}

func validateEndpoint(endpoint *string) error {
	if endpoint == nil || *endpoint == "" {
		return nil
	}
	u, err := url.Parse(*endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: endpoint must be an http(s) URL", domain.ErrInvalidInput)
	}
	return nil
}
