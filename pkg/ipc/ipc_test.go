package ipc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplepos/shell/pkg/ipc"
	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/workerpool"
)

type echoArgs struct {
	Text string    `json:"text"`
	Data ipc.Bytes `json:"data"`
}

func newDispatcher(t *testing.T) *ipc.Dispatcher {
	t.Helper()
	reg := ipc.NewRegistry()
	reg.MustRegister("echo", ipc.Typed(func(_ context.Context, a echoArgs) (any, error) {
		return map[string]any{"text": a.Text, "len": len(a.Data)}, nil
	}))
	reg.MustRegister("greet", ipc.Typed(func(_ context.Context, a struct {
		Name string `json:"name" validate:"required,max=8"`
	}) (any, error) {
		return "hi " + a.Name, nil
	}))
	reg.MustRegister("fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("Failed to connect: connection refused")
	})
	reg.MustRegister("panic", func(context.Context, json.RawMessage) (any, error) {
		panic("boom")
	})
	reg.MustRegister("slow", func(ctx context.Context, _ json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	pool := workerpool.New(4)
	t.Cleanup(pool.Shutdown)
	return ipc.NewDispatcher(reg, pool)
}

func TestBytes_Decode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr bool
	}{
		{"number array", `[27,64,0,255]`, []byte{27, 64, 0, 255}, false},
		{"empty array", `[]`, []byte{}, false},
		{"base64", `"G0AK"`, []byte{27, 64, 10}, false},
		{"indexed object", `{"1":64,"0":27}`, []byte{27, 64}, false},
		{"null", `null`, nil, false},
		{"out of range", `[256]`, nil, true},
		{"negative", `[-1]`, nil, true},
		{"gap in object", `{"0":1,"2":3}`, nil, true},
		{"bad base64", `"!!"`, nil, true},
		{"bool", `true`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b ipc.Bytes
			err := json.Unmarshal([]byte(tt.in), &b)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, []byte(b))
		})
	}
}

func TestBytes_EncodeAsNumberArray(t *testing.T) {
	out, err := json.Marshal(ipc.Bytes{27, 64})
	require.NoError(t, err)
	assert.JSONEq(t, `[27,64]`, string(out))
}

func TestRegistry(t *testing.T) {
	reg := ipc.NewRegistry()
	noop := func(context.Context, json.RawMessage) (any, error) { return nil, nil }

	require.NoError(t, reg.Register("b", noop))
	require.NoError(t, reg.Register("a", noop))
	assert.ErrorIs(t, reg.Register("a", noop), ipc.ErrDuplicateCommand)
	assert.Error(t, reg.Register("", noop))
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}

func TestDispatcher_Invoke(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	got, err := d.Invoke(ctx, "echo", json.RawMessage(`{"text":"hi","data":[1,2,3]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "hi", "len": 3}, got)

	_, err = d.Invoke(ctx, "echo", nil)
	require.NoError(t, err, "missing args decode to the zero value")

	_, err = d.Invoke(ctx, "echo", json.RawMessage(`{"data":"not base64!"}`))
	assert.ErrorIs(t, err, ipc.ErrInvalidArgs)

	got, err = d.Invoke(ctx, "greet", json.RawMessage(`{"name":"ana"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi ana", got)

	_, err = d.Invoke(ctx, "greet", nil)
	assert.ErrorIs(t, err, ipc.ErrInvalidArgs)
	assert.ErrorContains(t, err, "The name field is required.")

	_, err = d.Invoke(ctx, "nope", nil)
	assert.ErrorIs(t, err, ipc.ErrUnknownCommand)

	_, err = d.Invoke(ctx, "fail", nil)
	assert.EqualError(t, err, "Failed to connect: connection refused")

	_, err = d.Invoke(ctx, "panic", nil)
	assert.ErrorContains(t, err, "internal error")

	// The pool survives the panic.
	_, err = d.Invoke(ctx, "echo", nil)
	assert.NoError(t, err)
}

func TestDispatcher_ContextCancel(t *testing.T) {
	d := newDispatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := d.Invoke(ctx, "slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_RunsConcurrently(t *testing.T) {
	reg := ipc.NewRegistry()
	var inFlight, peak atomic.Int32
	reg.MustRegister("work", func(context.Context, json.RawMessage) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})
	pool := workerpool.New(4)
	defer pool.Shutdown()
	d := ipc.NewDispatcher(reg, pool)

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := d.Invoke(context.Background(), "work", nil)
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-errs)
	}
	assert.Greater(t, peak.Load(), int32(1))
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestHTTPHandler(t *testing.T) {
	d := newDispatcher(t)
	r := chi.NewRouter()
	r.Post("/invoke/{command}", d.HTTPHandler())

	call := func(cmd, body string) (int, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/invoke/"+cmd, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		var env map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		return rec.Code, env
	}

	code, env := call("echo", `{"text":"ok","data":[1]}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"text": "ok", "len": float64(1)}, env["data"])

	code, env = call("fail", `{}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to connect: connection refused", env["message"])

	code, _ = call("missing", `{}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call("echo", `{"data":[999]}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHTTPHandler_RequiresJSONContentType(t *testing.T) {
	reg := ipc.NewRegistry()
	var calls atomic.Int32
	reg.MustRegister("count", func(context.Context, json.RawMessage) (any, error) {
		calls.Add(1)
		return nil, nil
	})
	pool := workerpool.New(1)
	defer pool.Shutdown()
	r := chi.NewRouter()
	r.Post("/invoke/{command}", ipc.NewDispatcher(reg, pool).HTTPHandler())

	for _, ct := range []string{"", "text/plain", "application/x-www-form-urlencoded", "multipart/form-data; boundary=x"} {
		req := httptest.NewRequest(http.MethodPost, "/invoke/count", strings.NewReader(`{}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, ct)
	}
	assert.Zero(t, calls.Load())
}

func TestHTTPHandler_EscapedPluginCommand(t *testing.T) {
	reg := ipc.NewRegistry()
	reg.MustRegister("plugin:sql|load", func(context.Context, json.RawMessage) (any, error) { return "sqlite:simple-pos.db", nil })
	pool := workerpool.New(1)
	defer pool.Shutdown()
	r := chi.NewRouter()
	r.Post("/invoke/{command}", ipc.NewDispatcher(reg, pool).HTTPHandler())

	req := httptest.NewRequest(http.MethodPost, "/invoke/plugin%3Asql%7Cload", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "simple-pos.db")
}

type gatewayError struct{}

func (gatewayError) Error() string   { return "Failed to connect: refused" }
func (gatewayError) StatusCode() int { return http.StatusBadGateway }

func TestHTTPHandler_LogsUnclassifiedFailuresOnce(t *testing.T) {
	var buf bytes.Buffer
	closer, err := logger.Setup(logger.Options{Level: slog.LevelInfo, Console: &buf})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	reg := ipc.NewRegistry()
	reg.MustRegister("gateway", func(context.Context, json.RawMessage) (any, error) { return nil, gatewayError{} })
	reg.MustRegister("plain", func(context.Context, json.RawMessage) (any, error) { return nil, errors.New("disk full") })
	pool := workerpool.New(1)
	defer pool.Shutdown()
	r := chi.NewRouter()
	r.Post("/invoke/{command}", ipc.NewDispatcher(reg, pool).HTTPHandler())

	call := func(cmd string) int {
		req := httptest.NewRequest(http.MethodPost, "/invoke/"+cmd, strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusBadGateway, call("gateway"))
	assert.NotContains(t, buf.String(), "ipc: command failed")

	assert.Equal(t, http.StatusInternalServerError, call("plain"))
	assert.Contains(t, buf.String(), "ipc: command failed")
}
