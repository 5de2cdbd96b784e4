package telephony

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CaioWing/iotgateway/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_SelectsBackend(t *testing.T) {
	log := discardLogger()

	assert.Equal(t, BackendMock, New(config.TelephonyConfig{Timeout: time.Second}, log).Backend())
	assert.Equal(t, BackendESL, New(config.TelephonyConfig{ESLHost: "fs", ESLPort: 8021, Timeout: time.Second}, log).Backend())
	assert.Equal(t, BackendREST, New(config.TelephonyConfig{
		RESTURL: "http://fs:8080",
		ESLHost: "fs",
		Timeout: time.Second,
	}, log).Backend())
}

func TestMock_ReportsSimulatedSuccess(t *testing.T) {
	res := NewMockOriginator(discardLogger()).Originate(context.Background(), OriginateRequest{Destination: "+15550001"})

	assert.True(t, res.Success)
	assert.Nil(t, res.CallID)
	assert.Nil(t, res.Error)
	assert.True(t, res.Mock)
	assert.Equal(t, true, res.Details()["mock"])
}

func TestREST_Success(t *testing.T) {
	var got originatePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/originate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"uuid":"abc-123"}`))
	}))
	defer srv.Close()

	o := NewRESTOriginator(srv.URL+"/", time.Second, discardLogger())
	res := o.Originate(context.Background(), OriginateRequest{
		Destination: "+15550001",
		CallerID:    "IoT-Gateway",
		Playback:    "alarm.wav",
	})

	require.True(t, res.Success)
	require.NotNil(t, res.CallID)
	assert.Equal(t, "abc-123", *res.CallID)
	assert.Equal(t, "user/+15550001", got.Endpoint)
	assert.Equal(t, "IoT-Gateway", got.CallerID)
	assert.Equal(t, "playback", got.Application)
	assert.Equal(t, "alarm.wav", got.ApplicationData)
}

func TestREST_CallIDFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"call_id":"xyz"}`))
	}))
	defer srv.Close()

	res := NewRESTOriginator(srv.URL, time.Second, discardLogger()).
		Originate(context.Background(), OriginateRequest{Destination: "100"})
	require.True(t, res.Success)
	require.NotNil(t, res.CallID)
	assert.Equal(t, "xyz", *res.CallID)
}

func TestREST_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	res := NewRESTOriginator(srv.URL, time.Second, discardLogger()).
		Originate(context.Background(), OriginateRequest{Destination: "100"})
	assert.True(t, res.Success)
	assert.Nil(t, res.CallID)
	assert.False(t, res.Mock)
}

func TestREST_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no route", http.StatusBadGateway)
	}))
	defer srv.Close()

	res := NewRESTOriginator(srv.URL, time.Second, discardLogger()).
		Originate(context.Background(), OriginateRequest{Destination: "100"})

	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, *res.Error, "no route")
}

func TestREST_MalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	res := NewRESTOriginator(srv.URL, time.Second, discardLogger()).
		Originate(context.Background(), OriginateRequest{Destination: "100"})

	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, *res.Error, "invalid response")
}

func TestREST_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	res := NewRESTOriginator(srv.URL, 50*time.Millisecond, discardLogger()).
		Originate(context.Background(), OriginateRequest{Destination: "100"})

	assert.False(t, res.Success)
	assert.NotNil(t, res.Error)
}

func TestREST_Unreachable(t *testing.T) {
	res := NewRESTOriginator("http://127.0.0.1:1", time.Second, discardLogger()).
		Originate(context.Background(), OriginateRequest{Destination: "100"})

	assert.False(t, res.Success)
	assert.NotNil(t, res.Error)
}

// fakeESL serves one event socket session and returns the commands it saw.
func fakeESL(t *testing.T, password string, originateReply string) (addr string, commands <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 8)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := textproto.NewReader(bufio.NewReader(conn))

		io.WriteString(conn, "Content-Type: auth/request\n\n")
		for {
			line, err := r.ReadLine()
			if err != nil {
				close(out)
				return
			}
			if line == "" {
				continue
			}
			out <- line
			switch {
			case strings.HasPrefix(line, "auth "):
				if strings.TrimPrefix(line, "auth ") == password {
					io.WriteString(conn, "Content-Type: command/reply\nReply-Text: +OK accepted\n\n")
				} else {
					io.WriteString(conn, "Content-Type: command/reply\nReply-Text: -ERR invalid\n\n")
				}
			case strings.HasPrefix(line, "bgapi "):
				io.WriteString(conn, "Content-Type: log/data\nContent-Length: 5\n\nhello")
				io.WriteString(conn, originateReply)
			case line == "exit":
				io.WriteString(conn, "Content-Type: command/reply\nReply-Text: +OK bye\n\n")
				close(out)
				return
			}
		}
	}()
	return ln.Addr().String(), out
}

func TestESL_Originate(t *testing.T) {
	addr, commands := fakeESL(t, "ClueCon",
		"Content-Type: command/reply\nReply-Text: +OK Job-UUID: 7f4d\nJob-UUID: 7f4d\n\n")

	o := NewESLOriginator(addr, "ClueCon", time.Second, discardLogger())
	res := o.Originate(context.Background(), OriginateRequest{Destination: "+15550001", CallerID: "IoT-Gateway"})

	require.True(t, res.Success, "error: %v", res.Error)
	require.NotNil(t, res.CallID)
	assert.Equal(t, "7f4d", *res.CallID)

	var seen []string
	for c := range commands {
		seen = append(seen, c)
	}
	require.Len(t, seen, 3)
	assert.Equal(t, "auth ClueCon", seen[0])
	assert.Equal(t, "bgapi originate {origination_caller_id_number=IoT-Gateway}user/+15550001 &echo", seen[1])
	assert.Equal(t, "exit", seen[2])
}

func TestESL_AuthRejected(t *testing.T) {
	addr, _ := fakeESL(t, "ClueCon", "")

	res := NewESLOriginator(addr, "wrong", time.Second, discardLogger()).
		Originate(context.Background(), OriginateRequest{Destination: "100"})

	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, *res.Error, "ESL connection failed")
}

func TestESL_OriginateError(t *testing.T) {
	addr, _ := fakeESL(t, "ClueCon", "Content-Type: command/reply\nReply-Text: -ERR USER_NOT_REGISTERED\n\n")

	res := NewESLOriginator(addr, "ClueCon", time.Second, discardLogger()).
		Originate(context.Background(), OriginateRequest{Destination: "100"})

	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, *res.Error, "USER_NOT_REGISTERED")
}

func TestESL_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	res := NewESLOriginator(addr, "ClueCon", 200*time.Millisecond, discardLogger()).
		Originate(context.Background(), OriginateRequest{Destination: "100"})

	assert.False(t, res.Success)
	assert.NotNil(t, res.Error)
}

func TestOriginateCommand_Playback(t *testing.T) {
	cmd := originateCommand(OriginateRequest{Destination: "200", Playback: "fire.wav"})
	assert.Equal(t, "originate {origination_caller_id_number=IoT}user/200 'playback:fire.wav' &echo", cmd)
}

func TestESL_RefusesUnsafeDestination(t *testing.T) {
	addr, commands := fakeESL(t, "ClueCon",
		"Content-Type: command/reply\nReply-Text: +OK Job-UUID: 7f4d\nJob-UUID: 7f4d\n\n")

	res := NewESLOriginator(addr, "ClueCon", time.Second, discardLogger()).
		Originate(context.Background(), OriginateRequest{Destination: "100\n\napi fsctl shutdown"})

	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, *res.Error, "invalid destination")
	assert.Empty(t, commands)
}

func TestREST_RefusesUnsafeDestination(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer srv.Close()

	res := NewRESTOriginator(srv.URL, time.Second, discardLogger()).
		Originate(context.Background(), OriginateRequest{Destination: "100 &park"})

	assert.False(t, res.Success)
	assert.False(t, hit)
}

func TestValidDestination(t *testing.T) {
	for _, ok := range []string{"100", "+15550001", "*98#", strings.Repeat("1", 64)} {
		assert.True(t, ValidDestination(ok), ok)
	}
	for _, bad := range []string{"", "+", "100\n\napi fsctl shutdown", "user/100", "1 2", "++1", strings.Repeat("1", 65)} {
		assert.False(t, ValidDestination(bad), bad)
	}
}

func TestCheckRequest_CallerIDAndPlayback(t *testing.T) {
	assert.NoError(t, checkRequest(OriginateRequest{Destination: "100", CallerID: "IoT-Gateway", Playback: "/sounds/alarm.wav"}))
	assert.Error(t, checkRequest(OriginateRequest{Destination: "100", CallerID: "a}user/200"}))
	assert.Error(t, checkRequest(OriginateRequest{Destination: "100", Playback: "x' &park"}))
}

func TestFailure_DropsNUL(t *testing.T) {
	res := failure("%s", "oops\x00boom")
	require.NotNil(t, res.Error)
	assert.Equal(t, "oopsboom", *res.Error)
}
