// Package shell lets the webview run allowlisted programs and open URLs
// with the system handler (browser, mail client, dialer).
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"time"

	"github.com/simplepos/shell/config"
	"github.com/simplepos/shell/pkg/app"
	"github.com/simplepos/shell/pkg/ipc"
	"github.com/simplepos/shell/pkg/logger"
)

const Name = "shell"

// DefaultOpenScope is what open accepts unless overridden.
var DefaultOpenScope = regexp.MustCompile(`^((mailto:\w+)|(tel:\w+)|(https?://\w+)).+`)

var (
	ErrNotAllowed = errors.New("shell: program is not allowed")
	ErrOpenScope  = errors.New("shell: path is not allowed by the open scope")
)

const defaultTimeout = 60 * time.Second

// Output is the result of execute.
type Output struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Plugin runs processes on behalf of the webview.
type Plugin struct {
	allow     map[string]struct{}
	openScope *regexp.Regexp
	timeout   time.Duration
	opener    func(ctx context.Context, target string) error
}

// New returns a Plugin using SHELL_ALLOW and the default open scope.
func New() *Plugin {
	return &Plugin{openScope: DefaultOpenScope, timeout: defaultTimeout, opener: systemOpen}
}

// Allow adds programs to the allowlist on top of SHELL_ALLOW.
func (p *Plugin) Allow(programs ...string) *Plugin {
	if p.allow == nil {
		p.allow = map[string]struct{}{}
	}
	for _, prog := range programs {
		p.allow[prog] = struct{}{}
	}
	return p
}

// OpenScope replaces the pattern open targets must match.
func (p *Plugin) OpenScope(re *regexp.Regexp) *Plugin {
	p.openScope = re
	return p
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Init(context.Context, *app.Host) error {
	p.Allow(config.ShellAllow()...)
	logger.Target("shell").Debug("shell: ready", "allowed", len(p.allow))
	return nil
}

func (p *Plugin) Close() error { return nil }

type executeArgs struct {
	Program string   `json:"program" validate:"required"`
	Args    []string `json:"args"`
	Cwd     string   `json:"cwd"`
	Env     []string `json:"env"`
}

type openArgs struct {
	Path string `json:"path" validate:"required"`
}

func (p *Plugin) Commands() map[string]ipc.Handler {
	return map[string]ipc.Handler{
		"execute": ipc.Typed(p.execute),
		"open":    ipc.Typed(p.open),
	}
}

// execute runs an allowlisted program to completion. A non-zero exit is
// reported in Code, not as an error.
func (p *Plugin) execute(ctx context.Context, a executeArgs) (any, error) {
	if _, ok := p.allow[a.Program]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotAllowed, a.Program)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.Program, a.Args...)
	cmd.Dir = a.Cwd
	if len(a.Env) > 0 {
		cmd.Env = append(cmd.Environ(), a.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.Code = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("shell: execute %s: %w", a.Program, err)
	}

	logger.Target("shell").Info("shell: executed", "program", a.Program, "code", out.Code)
	return out, nil
}

func (p *Plugin) open(ctx context.Context, a openArgs) (any, error) {
	if p.openScope == nil || !p.openScope.MatchString(a.Path) {
		return nil, fmt.Errorf("%w: %q", ErrOpenScope, a.Path)
	}
	if err := p.opener(ctx, a.Path); err != nil {
		return nil, fmt.Errorf("shell: open: %w", err)
	}
	return nil, nil
}

// systemOpen hands target to the platform's default handler without
// waiting for it.
func systemOpen(_ context.Context, target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	case "darwin":
		cmd = exec.Command("open", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait() //nolint:errcheck
	return nil
}
