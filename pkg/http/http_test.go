package http_test

import (
	"context"
	"errors"
	gohttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplepos/shell/pkg/http"
)

func TestSend_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(gohttp.StatusBadGateway)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"version":"1.1.0"}`))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL).Client(srv.Client()).Retry(3, time.Millisecond).Send()
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	var m struct{ Version string }
	require.NoError(t, resp.JSON(&m))
	assert.Equal(t, "1.1.0", m.Version)
}

func TestSend_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, _ *gohttp.Request) {
		calls.Add(1)
		gohttp.Error(w, "gone", gohttp.StatusNotFound)
	}))
	defer srv.Close()

	_, err := http.Get(srv.URL).Client(srv.Client()).Retry(3, time.Millisecond).Send()
	var se *http.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, gohttp.StatusNotFound, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_Limit(t *testing.T) {
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, _ *gohttp.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	_, err := http.Get(srv.URL).Client(srv.Client()).Limit(10).Send()
	assert.ErrorIs(t, err, http.ErrTooLarge)
}

func TestSend_PostJSON(t *testing.T) {
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		assert.Equal(t, gohttp.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(gohttp.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := http.Post(srv.URL).Client(srv.Client()).Body(map[string]int{"code": 0}).Send()
	require.NoError(t, err)
	assert.Equal(t, gohttp.StatusNoContent, resp.StatusCode)
}

func TestDownload_Progress(t *testing.T) {
	payload := []byte(strings.Repeat("a", 100_000))
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, _ *gohttp.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	var last http.Progress
	chunks := 0
	resp, err := http.Get(srv.URL).Client(srv.Client()).Download(func(p http.Progress) {
		chunks++
		last = p
	})
	require.NoError(t, err)
	assert.Equal(t, payload, resp.Raw)
	assert.Positive(t, chunks)
	assert.Equal(t, int64(len(payload)), last.Downloaded)
	assert.Equal(t, int64(len(payload)), last.ContentLength)
}

func TestSend_ContextStopsRetries(t *testing.T) {
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, _ *gohttp.Request) {
		w.WriteHeader(gohttp.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := http.Get(srv.URL).Client(srv.Client()).WithContext(ctx).Retry(5, time.Second).Send()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
