package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RESTOriginator posts originate requests to an HTTP front of FreeSWITCH.
type RESTOriginator struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

func NewRESTOriginator(baseURL string, timeout time.Duration, log *slog.Logger) *RESTOriginator {
	return &RESTOriginator{
		url:    strings.TrimRight(baseURL, "/") + "/api/originate",
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

type originatePayload struct {
	Destination     string `json:"destination"`
	Endpoint        string `json:"endpoint"`
	CallerID        string `json:"caller_id,omitempty"`
	Application     string `json:"application,omitempty"`
	ApplicationData string `json:"application_data,omitempty"`
}

type originateReply struct {
	UUID   string `json:"uuid"`
	CallID string `json:"call_id"`
}

func (o *RESTOriginator) Originate(ctx context.Context, req OriginateRequest) CallResult {
	if err := checkRequest(req); err != nil {
		return failure("%v", err)
	}

	payload := originatePayload{
		Destination: req.Destination,
		Endpoint:    "user/" + req.Destination,
		CallerID:    req.CallerID,
	}
	if req.Playback != "" {
		payload.Application = "playback"
		payload.ApplicationData = req.Playback
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return failure("encode request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return failure("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		o.log.Warn("rest originate failed", "destination", req.Destination, "err", err)
		return failure("%v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure("read response: %v", err)
	}

	if resp.StatusCode >= 400 {
		o.log.Warn("rest originate rejected", "destination", req.Destination, "status", resp.StatusCode)
		return failure("%s", string(raw))
	}

	var reply originateReply
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &reply); err != nil {
			return failure("invalid response: %v", err)
		}
	}

	callID := reply.UUID
	if callID == "" {
		callID = reply.CallID
	}
	return success(callID)
}

func (o *RESTOriginator) Backend() string { return BackendREST }
