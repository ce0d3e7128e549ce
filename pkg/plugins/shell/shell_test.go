package shell

import (
	"context"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, p *Plugin, name string, args any) (any, error) {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return p.Commands()[name](context.Background(), raw)
}

func TestExecute(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	p := New().Allow("sh")

	out, err := call(t, p, "execute", map[string]any{"program": "sh", "args": []string{"-c", "echo hi; echo oops >&2; exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, Output{Code: 3, Stdout: "hi\n", Stderr: "oops\n"}, out)

	out, err = call(t, p, "execute", map[string]any{"program": "sh", "args": []string{"-c", "echo $TILL"}, "env": []string{"TILL=7"}})
	require.NoError(t, err)
	assert.Equal(t, "7\n", out.(Output).Stdout)
}

func TestExecute_NotAllowed(t *testing.T) {
	p := New()
	_, err := call(t, p, "execute", map[string]any{"program": "rm", "args": []string{"-rf", "/"}})
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestOpen_Scope(t *testing.T) {
	var opened []string
	p := New()
	p.opener = func(_ context.Context, target string) error {
		opened = append(opened, target)
		return nil
	}

	for _, ok := range []string{"https://simplepos.app/help", "mailto:support", "tel:0123456"} {
		_, err := call(t, p, "open", map[string]any{"path": ok})
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"file:///etc/passwd", "/usr/bin/xterm", "javascript:alert(1)"} {
		_, err := call(t, p, "open", map[string]any{"path": bad})
		assert.ErrorIs(t, err, ErrOpenScope, bad)
	}
	assert.Len(t, opened, 3)
}
