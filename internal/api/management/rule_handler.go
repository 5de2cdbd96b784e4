package management

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CaioWing/iotgateway/internal/api/response"
	"github.com/CaioWing/iotgateway/internal/domain"
	"github.com/CaioWing/iotgateway/internal/service"
)

type RuleHandler struct {
	ruleSvc *service.RuleService
}

func NewRuleHandler(ruleSvc *service.RuleService) *RuleHandler {
	return &RuleHandler{ruleSvc: ruleSvc}
}

type createRuleRequest struct {
	EventType  string `json:"event_type"`
	DeviceID   string `json:"device_id"`
	ActionType string `json:"action_type"`
	Target     string `json:"target"`
	Active     *bool  `json:"active"`
}

type updateRuleRequest struct {
	ActionType *string `json:"action_type"`
	Target     *string `json:"target"`
	Active     *bool   `json:"active"`
}

func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.ruleSvc.List(r.Context())
	if err != nil {
		response.DomainError(w, err, "failed to list rules")
		return
	}
	if rules == nil {
		rules = []*domain.Rule{}
	}
	response.JSON(w, http.StatusOK, rules)
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := h.ruleSvc.Create(r.Context(), service.CreateRuleInput(req))
	if err != nil {
		response.DomainError(w, err, "failed to create rule")
		return
	}
	response.JSON(w, http.StatusCreated, rule)
}

func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	rule, err := h.ruleSvc.Get(r.Context(), id)
	if err != nil {
		response.DomainError(w, err, "failed to get rule")
		return
	}
	response.JSON(w, http.StatusOK, rule)
}

func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	var req updateRuleRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := h.ruleSvc.Update(r.Context(), id, domain.RuleUpdate(req))
	if err != nil {
		response.DomainError(w, err, "failed to update rule")
		return
	}
	response.JSON(w, http.StatusOK, rule)
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	if err := h.ruleSvc.Delete(r.Context(), id); err != nil {
		response.DomainError(w, err, "failed to delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ruleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		response.Error(w, http.StatusBadRequest, "invalid rule id")
		return 0, false
	}
	return id, true
}
