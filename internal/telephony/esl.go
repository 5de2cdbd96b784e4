package telephony

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// ESLOriginator drives FreeSWITCH through the inbound event socket. Each call
// opens its own connection, authenticates, issues one bgapi originate and
// disconnects.
type ESLOriginator struct {
	addr     string
	password string
	timeout  time.Duration
	dialer   net.Dialer
	log      *slog.Logger
}

func NewESLOriginator(addr, password string, timeout time.Duration, log *slog.Logger) *ESLOriginator {
	return &ESLOriginator{
		addr:     addr,
		password: password,
		timeout:  timeout,
		dialer:   net.Dialer{Timeout: timeout},
		log:      log,
	}
}

func (o *ESLOriginator) Backend() string { return BackendESL }

func (o *ESLOriginator) Originate(ctx context.Context, req OriginateRequest) CallResult {
	if err := checkRequest(req); err != nil {
		o.log.Warn("esl originate refused", "err", err)
		return failure("ESL originate: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	conn, err := o.dialer.DialContext(ctx, "tcp", o.addr)
	if err != nil {
		o.log.Warn("esl connect failed", "addr", o.addr, "err", err)
		return failure("ESL connection failed: %v", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return failure("ESL connection failed: %v", err)
		}
	}

	s := &eslSession{conn: conn, r: textproto.NewReader(bufio.NewReader(conn))}

	if err := s.authenticate(o.password); err != nil {
		o.log.Warn("esl auth failed", "addr", o.addr, "err", err)
		return failure("ESL connection failed: %v", err)
	}

	reply, err := s.command("bgapi " + originateCommand(req))
	if err != nil {
		return failure("ESL originate: %v", err)
	}
	if text := reply.Get("Reply-Text"); strings.HasPrefix(text, "-ERR") {
		return failure("ESL originate: %s", text)
	}

	// The job is queued; a failed goodbye does not change the outcome.
	_, _ = s.command("exit")
	return success(reply.Get("Job-UUID"))
}

func originateCommand(req OriginateRequest) string {
	vars := fmt.Sprintf("{origination_caller_id_number=%s}", callerIDOrDefault(req.CallerID))
	if req.Playback != "" {
		return fmt.Sprintf("originate %suser/%s 'playback:%s' &echo", vars, req.Destination, req.Playback)
	}
	return fmt.Sprintf("originate %suser/%s &echo", vars, req.Destination)
}

type eslSession struct {
	conn net.Conn
	r    *textproto.Reader
}

func (s *eslSession) authenticate(password string) error {
	hdr, err := s.read()
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	if ct := hdr.Get("Content-Type"); ct != "auth/request" {
		return fmt.Errorf("unexpected greeting %q", ct)
	}

	reply, err := s.command("auth " + password)
	if err != nil {
		return err
	}
	if text := reply.Get("Reply-Text"); !strings.HasPrefix(text, "+OK") {
		return fmt.Errorf("auth rejected: %s", text)
	}
	return nil
}

// command writes one command and waits for its command/reply, skipping any
// unsolicited frames in between.
func (s *eslSession) command(cmd string) (textproto.MIMEHeader, error) {
	if _, err := io.WriteString(s.conn, cmd+"\n\n"); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	for {
		hdr, err := s.read()
		if err != nil {
			return nil, err
		}
		if hdr.Get("Content-Type") == "command/reply" {
			return hdr, nil
		}
	}
}

// read consumes one frame: a header block and an optional Content-Length body.
func (s *eslSession) read() (textproto.MIMEHeader, error) {
	hdr, err := s.r.ReadMIMEHeader()
	if err != nil {
		return nil, err
	}
	if cl := hdr.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil {
			return nil, fmt.Errorf("bad content-length %q", cl)
		}
		if _, err := io.CopyN(io.Discard, s.r.R, int64(n)); err != nil {
			return nil, err
		}
	}
	return hdr, nil
}
