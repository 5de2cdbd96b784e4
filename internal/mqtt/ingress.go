package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CaioWing/iotgateway/internal/domain"
	"github.com/CaioWing/iotgateway/internal/service"
)

var ErrMalformedEvent = errors.New("malformed device event")

type DeviceEventDispatcher interface {
	HandleDeviceEvent(ctx context.Context, eventType, deviceID string) (*service.DeviceEventResult, error)
}

type deviceEvent struct {
	EventType string                 `json:"event_type"`
	DeviceID  string                 `json:"device_id"`
	Timestamp *string                `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// Ingress feeds device events received over MQTT into the dispatcher. Each
// message is one dispatch; malformed messages never reach it.
type Ingress struct {
	dispatcher DeviceEventDispatcher
	prefix     string
	timeout    time.Duration
	log        *slog.Logger
}

// NewIngress builds an ingress for topics under prefix. timeout bounds one
// dispatch, including the outbound call.
func NewIngress(dispatcher DeviceEventDispatcher, prefix string, timeout time.Duration, log *slog.Logger) *Ingress {
	return &Ingress{dispatcher: dispatcher, prefix: prefix, timeout: timeout, log: log}
}

// Start subscribes the ingress on c.
func (in *Ingress) Start(c *Client, qos byte) error {
	return c.Subscribe(DeviceEventsTopic(in.prefix), qos, in.Handle)
}

func (in *Ingress) Handle(topic string, payload []byte) error {
	eventType, deviceID, err := in.parse(topic, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), in.timeout)
	defer cancel()

	res, err := in.dispatcher.HandleDeviceEvent(ctx, eventType, deviceID)
	if err != nil {
		return fmt.Errorf("dispatch %s from %s: %w", eventType, deviceID, err)
	}
	in.log.Info("mqtt device event dispatched",
		"device_id", deviceID,
		"event_type", eventType,
		"success", res.Success,
	)
	return nil
}

func (in *Ingress) parse(topic string, payload []byte) (eventType, deviceID string, err error) {
	var ev deviceEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	deviceID = deviceIDFromTopic(in.prefix, topic)
	if deviceID == "" {
		deviceID = strings.TrimSpace(ev.DeviceID)
	}
	eventType = strings.TrimSpace(ev.EventType)

	if eventType == "" || deviceID == "" {
		return "", "", fmt.Errorf("%w: event_type and device id are required", ErrMalformedEvent)
	}
	if err := domain.CheckField("event_type", eventType, domain.MaxEventTypeLen); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := domain.CheckField("device_id", deviceID, domain.MaxDeviceIDLen); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return eventType, deviceID, nil
}
