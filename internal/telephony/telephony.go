// Package telephony places outbound calls on the FreeSWITCH platform.
//
// Every backend honours the same contract: Originate never returns an error.
// Unreachable hosts, timeouts and malformed replies all come back as a
// CallResult with Success false and Error set.
package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/CaioWing/iotgateway/internal/config"
	"github.com/CaioWing/iotgateway/internal/domain"
)

const (
	BackendREST = "rest"
	BackendESL  = "esl"
	BackendMock = "mock"
)

type OriginateRequest struct {
	Destination string
	CallerID    string
	// Playback is an optional sound file played to the callee on answer.
	Playback string
}

type CallResult struct {
	Success bool    `json:"success"`
	CallID  *string `json:"call_id"`
	Error   *string `json:"error"`
	Mock    bool    `json:"mock,omitempty"`
}

// Details renders the result for an event log entry.
func (r CallResult) Details() map[string]interface{} {
	d := map[string]interface{}{
		"success": r.Success,
		"call_id": nil,
		"error":   nil,
	}
	if r.CallID != nil {
		d["call_id"] = *r.CallID
	}
	if r.Error != nil {
		d["error"] = *r.Error
	}
	if r.Mock {
		d["mock"] = true
	}
	return d
}

type Originator interface {
	Originate(ctx context.Context, req OriginateRequest) CallResult
	Backend() string
}

// New picks the backend once from configuration: REST when a URL is set,
// the event socket when a host is set, mock otherwise.
func New(cfg config.TelephonyConfig, log *slog.Logger) Originator {
	switch {
	case cfg.RESTURL != "":
		log.Info("telephony backend selected", "backend", BackendREST, "url", cfg.RESTURL)
		return NewRESTOriginator(cfg.RESTURL, cfg.Timeout, log)
	case cfg.ESLHost != "":
		addr := fmt.Sprintf("%s:%d", cfg.ESLHost, cfg.ESLPort)
		log.Info("telephony backend selected", "backend", BackendESL, "addr", addr)
		return NewESLOriginator(addr, cfg.ESLPassword, cfg.Timeout, log)
	default:
		log.Warn("no telephony backend configured, calls will be simulated")
		return NewMockOriginator(log)
	}
}

var destinationPattern = regexp.MustCompile(`^\+?[0-9*#]+$`)

// ValidDestination reports whether s is a dial string: an optional leading
// plus, then digits, '*' or '#'.
func ValidDestination(s string) bool {
	return len(s) <= domain.MaxTargetLen && destinationPattern.MatchString(s)
}

// checkRequest rejects requests whose fields could break out of a dial
// command.
func checkRequest(req OriginateRequest) error {
	if !ValidDestination(req.Destination) {
		return fmt.Errorf("invalid destination %q", req.Destination)
	}
	if strings.ContainsFunc(req.CallerID, unsafeRune) {
		return fmt.Errorf("invalid caller id %q", req.CallerID)
	}
	if strings.ContainsFunc(req.Playback, unsafeRune) {
		return fmt.Errorf("invalid playback %q", req.Playback)
	}
	return nil
}

func unsafeRune(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune("'{},", r)
}

func success(callID string) CallResult {
	callID = domain.StripNUL(callID)
	r := CallResult{Success: true}
	if callID != "" {
		r.CallID = &callID
	}
	return r
}

func failure(format string, args ...any) CallResult {
	msg := domain.StripNUL(fmt.Sprintf(format, args...))
	return CallResult{Success: false, Error: &msg}
}

func callerIDOrDefault(cid string) string {
	if cid == "" {
		return "IoT"
	}
	return cid
}
