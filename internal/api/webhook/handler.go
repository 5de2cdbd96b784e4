// Package webhook exposes the two dispatch entry points over HTTP.
package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CaioWing/iotgateway/internal/api/response"
	"github.com/CaioWing/iotgateway/internal/domain"
	"github.com/CaioWing/iotgateway/internal/service"
)

type DeviceEventDispatcher interface {
	HandleDeviceEvent(ctx context.Context, eventType, deviceID string) (*service.DeviceEventResult, error)
}

type IncomingCallDispatcher interface {
	HandleIncomingCall(ctx context.Context, toMSISDN, fromCLI, callID string) (*service.IncomingCallResult, error)
}

type Handler struct {
	events DeviceEventDispatcher
	calls  IncomingCallDispatcher
	log    *slog.Logger
}

func NewHandler(events DeviceEventDispatcher, calls IncomingCallDispatcher, log *slog.Logger) *Handler {
	return &Handler{events: events, calls: calls, log: log}
}

type deviceEventRequest struct {
	EventType string                 `json:"event_type"`
	DeviceID  string                 `json:"device_id"`
	Timestamp *string                `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

type incomingCallRequest struct {
	ToMSISDN string  `json:"to_msisdn"`
	FromCLI  string  `json:"from_cli"`
	CallID   *string `json:"call_id"`
}

// DeviceEvent handles POST /webhook.
func (h *Handler) DeviceEvent(w http.ResponseWriter, r *http.Request) {
	var req deviceEventRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.BodyError(w, err)
		return
	}
	if strings.TrimSpace(req.EventType) == "" || strings.TrimSpace(req.DeviceID) == "" {
		response.Error(w, http.StatusBadRequest, "event_type and device_id are required")
		return
	}

	res, err := h.events.HandleDeviceEvent(r.Context(), req.EventType, req.DeviceID)
	if err != nil {
		h.log.Error("device event dispatch failed", "device_id", req.DeviceID, "err", err)
		response.DomainError(w, err, "dispatch failed")
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// IncomingCall handles POST /simulate/incoming-call.
func (h *Handler) IncomingCall(w http.ResponseWriter, r *http.Request) {
	var req incomingCallRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.BodyError(w, err)
		return
	}
	if strings.TrimSpace(req.ToMSISDN) == "" {
		response.Error(w, http.StatusBadRequest, "to_msisdn is required")
		return
	}

	var callID string
	if req.CallID != nil {
		callID = *req.CallID
	}

	res, err := h.calls.HandleIncomingCall(r.Context(), req.ToMSISDN, req.FromCLI, callID)
	if err != nil {
		h.log.Error("incoming call dispatch failed", "to_msisdn", req.ToMSISDN, "err", err)
		response.DomainError(w, err, "dispatch failed")
		return
	}
	if !res.Notified && res.Error != nil && *res.Error == domain.ReasonNoSpeakerForMSISDN {
		response.Error(w, http.StatusNotFound, "no speaker device for this msisdn")
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// TestNotify handles POST /test/notify. It stands in for a speaker endpoint
// during demos and echoes what it received.
func (h *Handler) TestNotify(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := response.DecodeJSON(w, r, &payload); err != nil {
		response.BodyError(w, err)
		return
	}
	h.log.Info("test notify received", "payload", payload)
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"received": payload,
	})
}
