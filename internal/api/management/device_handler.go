package management

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CaioWing/iotgateway/internal/api/response"
	"github.com/CaioWing/iotgateway/internal/domain"
	"github.com/CaioWing/iotgateway/internal/service"
)

type DeviceHandler struct {
	deviceSvc *service.DeviceService
}

func NewDeviceHandler(deviceSvc *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceSvc: deviceSvc}
}

type createDeviceRequest struct {
	DeviceID     string                 `json:"device_id"`
	Type         domain.DeviceType      `json:"type"`
	MSISDN       *string                `json:"msisdn"`
	SubscriberID *string                `json:"subscriber_id"`
	Vendor       *string                `json:"vendor"`
	Endpoint     *string                `json:"endpoint"`
	Metadata     map[string]interface{} `json:"metadata"`
}

type updateDeviceRequest struct {
	MSISDN       *string                `json:"msisdn"`
	SubscriberID *string                `json:"subscriber_id"`
	Vendor       *string                `json:"vendor"`
	Endpoint     *string                `json:"endpoint"`
	Metadata     map[string]interface{} `json:"metadata"`
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter domain.DeviceFilter
	if v := r.URL.Query().Get("msisdn"); v != "" {
		filter.MSISDN = &v
	}

	devices, err := h.deviceSvc.List(r.Context(), filter)
	if err != nil {
		response.DomainError(w, err, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []*domain.Device{}
	}
	response.JSON(w, http.StatusOK, devices)
}

func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device, err := h.deviceSvc.Create(r.Context(), service.CreateDeviceInput{
		DeviceID:     req.DeviceID,
		Type:         req.Type,
		MSISDN:       req.MSISDN,
		SubscriberID: req.SubscriberID,
		Vendor:       req.Vendor,
		Endpoint:     req.Endpoint,
		Metadata:     req.Metadata,
	})
	if err != nil {
		response.DomainError(w, err, "failed to create device")
		return
	}
	response.JSON(w, http.StatusCreated, device)
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	device, err := h.deviceSvc.Get(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		response.DomainError(w, err, "failed to get device")
		return
	}
	response.JSON(w, http.StatusOK, device)
}

func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device, err := h.deviceSvc.Update(r.Context(), chi.URLParam(r, "deviceID"), domain.DeviceUpdate{
		MSISDN:       req.MSISDN,
		SubscriberID: req.SubscriberID,
		Vendor:       req.Vendor,
		Endpoint:     req.Endpoint,
		Metadata:     req.Metadata,
	})
	if err != nil {
		response.DomainError(w, err, "failed to update device")
		return
	}
	response.JSON(w, http.StatusOK, device)
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.deviceSvc.Delete(r.Context(), chi.URLParam(r, "deviceID")); err != nil {
		response.DomainError(w, err, "failed to delete device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
