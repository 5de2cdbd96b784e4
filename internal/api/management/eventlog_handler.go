package management

import (
	"net/http"

	"github.com/CaioWing/iotgateway/internal/api/response"
	"github.com/CaioWing/iotgateway/internal/domain"
	"github.com/CaioWing/iotgateway/internal/service"
)

type EventLogHandler struct {
	eventSvc *service.EventLogService
}

func NewEventLogHandler(eventSvc *service.EventLogService) *EventLogHandler {
	return &EventLogHandler{eventSvc: eventSvc}
}

func (h *EventLogHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := response.ParsePagination(r)
	q := r.URL.Query()

	filter := domain.EventLogFilter{
		Page:    page,
		PerPage: perPage,
	}

	if v := q.Get("event_kind"); v != "" {
		kind := domain.EventKind(v)
		filter.EventKind = &kind
	}
	if v := q.Get("device_id"); v != "" {
		filter.DeviceID = &v
	}
	if v := q.Get("result"); v != "" {
		result := domain.Result(v)
		if result != domain.ResultSuccess && result != domain.ResultFailure {
			response.Error(w, http.StatusBadRequest, "result must be success or failure")
			return
		}
		filter.Result = &result
	}

	entries, total, err := h.eventSvc.List(r.Context(), filter)
	if err != nil {
		response.DomainError(w, err, "failed to list event logs")
		return
	}
	if entries == nil {
		entries = []*domain.EventLog{}
	}

	response.Paginated(w, http.StatusOK, entries, page, perPage, total)
}
