// Package notify pushes JSON events to device HTTP endpoints.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/CaioWing/iotgateway/internal/domain"
)

const DefaultBodyLimit = 500

type Result struct {
	Success    bool    `json:"success"`
	StatusCode *int    `json:"status_code"`
	Body       *string `json:"response"`
	Error      *string `json:"error"`
}

// Details renders the result for an event log entry: status code and
// response on a completed exchange, the error text otherwise.
func (r Result) Details() map[string]interface{} {
	if r.StatusCode == nil {
		d := map[string]interface{}{"error": nil}
		if r.Error != nil {
			d["error"] = *r.Error
		}
		return d
	}
	d := map[string]interface{}{
		"status_code": *r.StatusCode,
		"response":    nil,
	}
	if r.Body != nil {
		d["response"] = *r.Body
	}
	return d
}

type Notifier interface {
	Notify(ctx context.Context, endpoint string, payload any) Result
}

type HTTPNotifier struct {
	client    *http.Client
	bodyLimit int
	log       *slog.Logger
}

func NewHTTPNotifier(timeout time.Duration, bodyLimit int, log *slog.Logger) *HTTPNotifier {
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyLimit
	}
	return &HTTPNotifier{
		client:    &http.Client{Timeout: timeout},
		bodyLimit: bodyLimit,
		log:       log,
	}
}

// Notify POSTs payload as JSON. It never returns an error; transport failures
// and non-2xx replies are reported through Result.
func (n *HTTPNotifier) Notify(ctx context.Context, endpoint string, payload any) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return errResult(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errResult(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("device notify failed", "endpoint", endpoint, "err", err)
		return errResult(err)
	}
	defer resp.Body.Close()

	// Only the first bodyLimit characters are kept, so never buffer more.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(n.bodyLimit)*utf8.UTFMax+1))
	if err != nil {
		return errResult(err)
	}

	status := resp.StatusCode
	res := Result{
		Success:    status >= 200 && status < 300,
		StatusCode: &status,
	}
	if len(raw) > 0 {
		text := Truncate(string(raw), n.bodyLimit)
		res.Body = &text
	}
	return res
}

// Truncate cuts s to at most limit characters after dropping NUL bytes.
func Truncate(s string, limit int) string {
	s = domain.StripNUL(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func errResult(err error) Result {
	msg := domain.StripNUL(err.Error())
	return Result{Success: false, Error: &msg}
}
