package logplugin_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplepos/shell/pkg/app"
	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/plugins/logplugin"
)

func setup(t *testing.T) (*logplugin.Plugin, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	p := logplugin.New().WithOptions(logger.Options{
		Level:   slog.LevelInfo,
		Targets: map[string]slog.Level{"tao": slog.LevelError},
		Console: &buf,
	})
	host := app.NewHost("test", t.TempDir(), func() {})
	require.NoError(t, p.Init(context.Background(), host))
	t.Cleanup(func() { _ = p.Close() })
	return p, &buf
}

func TestLog_ForwardsWithTarget(t *testing.T) {
	p, buf := setup(t)
	buf.Reset()

	_, err := p.Commands()["log"](context.Background(), []byte(`{"level":4,"message":"drawer open too long","keyValues":{"till":"2"}}`))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="drawer open too long"`)
	assert.Contains(t, out, "target=webview")
	assert.Contains(t, out, "till=2")
}

func TestLog_LevelFiltering(t *testing.T) {
	p, buf := setup(t)
	buf.Reset()
	log := p.Commands()["log"]

	_, err := log(context.Background(), []byte(`{"level":"debug","message":"hidden"}`))
	require.NoError(t, err)
	_, err = log(context.Background(), []byte(`{"level":"warn","target":"tao","message":"also hidden"}`))
	require.NoError(t, err)
	_, err = log(context.Background(), []byte(`{"level":5,"target":"tao","message":"shown"}`))
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestLog_BadLevel(t *testing.T) {
	p, _ := setup(t)
	_, err := p.Commands()["log"](context.Background(), []byte(`{"level":true}`))
	assert.Error(t, err)
}
