package app

import (
	"context"
	"os"
	"os/exec"
	"sync"

	"github.com/simplepos/shell/pkg/event"
	"github.com/simplepos/shell/pkg/ipc"
	"github.com/simplepos/shell/pkg/migration"
	"github.com/simplepos/shell/pkg/schedule"
)

// Plugin is a unit of native functionality the webview can call into.
// Plugins are initialised in the order they were added and closed in
// reverse order.
type Plugin interface {
	Name() string
	Init(ctx context.Context, host *Host) error
	// Commands are exposed as "plugin:<name>|<command>".
	Commands() map[string]ipc.Handler
	Close() error
}

// Migrator is implemented by plugins that own database migrations, so the
// migrate:* commands can run them without booting the rest of the app.
type Migrator interface {
	Migrations() map[string][]migration.Migration
}

// CommandName is the bridge name of a plugin command.
func CommandName(plugin, command string) string {
	return "plugin:" + plugin + "|" + command
}

// Event names emitted by the host.
const (
	EventReady         = "app://ready"
	EventExitRequested = "app://exit-requested"
)

// Host is what plugins see of the running application.
type Host struct {
	Name      string
	Events    *event.Bus
	Scheduler *schedule.Scheduler
	DataDir   string

	mu       sync.Mutex
	stop     context.CancelFunc
	code     int
	exiting  bool
	restart  bool
	relaunch func() error
}

// NewHost returns a Host whose Exit calls stop. Boot builds one; plugin
// tests can use it directly.
func NewHost(name, dataDir string, stop context.CancelFunc) *Host {
	return &Host{
		Name:      name,
		Events:    event.New(),
		Scheduler: schedule.New(),
		DataDir:   dataDir,
		stop:      stop,
		relaunch:  relaunchSelf,
	}
}

// Exit asks the application to shut down and exit with code. Only the first
// call wins.
func (h *Host) Exit(code int) {
	h.mu.Lock()
	if h.exiting {
		h.mu.Unlock()
		return
	}
	h.exiting = true
	h.code = code
	h.mu.Unlock()

	h.Events.Emit(EventExitRequested, map[string]int{"code": code})
	h.stop()
}

// Restart shuts the application down and starts it again with the same
// arguments.
func (h *Host) Restart() {
	h.mu.Lock()
	h.restart = true
	h.mu.Unlock()
	h.Exit(0)
}

// ExitCode returns the code passed to Exit, or zero.
func (h *Host) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code
}

func (h *Host) restartRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restart
}

// relaunchSelf starts a detached copy of the running executable.
func relaunchSelf() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	return cmd.Start()
}
