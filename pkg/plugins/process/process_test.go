package process_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplepos/shell/pkg/app"
	"github.com/simplepos/shell/pkg/event"
	"github.com/simplepos/shell/pkg/plugins/process"
)

func TestExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	host := app.NewHost("test", t.TempDir(), cancel)

	var got []event.Event
	host.Events.Listen(app.EventExitRequested, func(e event.Event) { got = append(got, e) })

	p := process.New()
	require.NoError(t, p.Init(ctx, host))

	_, err := p.Commands()["exit"](ctx, []byte(`{"code":3}`))
	require.NoError(t, err)

	assert.Equal(t, 3, host.ExitCode())
	assert.Error(t, ctx.Err(), "exit cancels the app context")
	require.Len(t, got, 1)
}

func TestRestart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	host := app.NewHost("test", t.TempDir(), cancel)

	p := process.New()
	require.NoError(t, p.Init(ctx, host))

	_, err := p.Commands()["restart"](ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, host.ExitCode())
	assert.Error(t, ctx.Err())
}

func TestUninitialised(t *testing.T) {
	_, err := process.New().Commands()["exit"](context.Background(), nil)
	assert.Error(t, err)
}
