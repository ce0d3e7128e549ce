// Package app is the application builder every entry point uses.
//
//	func main() {
//	    app.New("simple-pos").
//	        Plugin(logplugin.New()).
//	        Plugin(sqlplugin.New().AddMigrations(migrations.NativeDatabase, migrations.Native())).
//	        Plugin(shell.New()).
//	        Command("print_raw", printer.Default().RawCommand()).
//	        Run()
//	}
//
// Run reads os.Args and dispatches:
//
//	serve            boot plugins and serve the bridge (default)
//	migrate          run pending migrations of every database plugin
//	migrate:rollback roll back the last batch
//	migrate:status   show migration status
//	seed             run the registered seeders
//	commands         list bridge commands
//	route:list       list bridge routes
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/simplepos/shell/pkg/ipc"
)

// SetupFunc runs after every plugin is initialised and before the bridge
// starts serving.
type SetupFunc func(ctx context.Context, host *Host) error

type namedCommand struct {
	name    string
	handler ipc.Handler
}

// Application is the central configuration object. Build one with New,
// attach plugins and commands, then call Run.
type Application struct {
	name     string
	plugins  []Plugin
	commands []namedCommand
	setups   []SetupFunc
	out      io.Writer
}

// New creates an Application.
func New(name string) *Application {
	return &Application{name: name, out: os.Stdout}
}

// Name returns the application name.
func (a *Application) Name() string { return a.name }

// Plugin adds p. Plugins initialise in the order they are added.
func (a *Application) Plugin(p Plugin) *Application {
	a.plugins = append(a.plugins, p)
	return a
}

// Command exposes a native command to the webview under name.
func (a *Application) Command(name string, h ipc.Handler) *Application {
	a.commands = append(a.commands, namedCommand{name: name, handler: h})
	return a
}

// Setup registers fn to run once plugins are up.
func (a *Application) Setup(fn SetupFunc) *Application {
	a.setups = append(a.setups, fn)
	return a
}

// Output redirects CLI output. Defaults to stdout.
func (a *Application) Output(w io.Writer) *Application {
	a.out = w
	return a
}

// Plugins returns the attached plugins in init order.
func (a *Application) Plugins() []Plugin { return append([]Plugin(nil), a.plugins...) }

// Run dispatches os.Args[1] and exits the process with the resulting code.
// This is the ONLY function main needs to call.
func (a *Application) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code, err := a.Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

// ErrUnknownCommand is returned by Execute for an unknown sub-command.
var ErrUnknownCommand = errors.New("app: unknown command")

// Execute runs the sub-command in args and returns the process exit code.
func (a *Application) Execute(ctx context.Context, args []string) (int, error) {
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	var err error
	switch cmd {
	case "serve", "start", "run":
		return a.serve(ctx)
	case "migrate":
		err = a.cmdMigrate(ctx)
	case "migrate:rollback", "migrate:down":
		err = a.cmdMigrateRollback(ctx)
	case "migrate:status":
		err = a.cmdMigrateStatus(ctx)
	case "seed":
		err = a.cmdSeed(ctx)
	case "commands":
		err = a.cmdCommands()
	case "route:list", "routes":
		err = a.cmdRouteList()
	case "help", "--help", "-h":
		a.printHelp()
	default:
		return 2, fmt.Errorf("%w: %q (run with --help for usage)", ErrUnknownCommand, cmd)
	}
	if err != nil {
		return 1, err
	}
	return 0, nil
}

// CommandNames lists every bridge command the application exposes: its own
// commands and those of its plugins.
func (a *Application) CommandNames() []string {
	var names []string
	for _, c := range a.commands {
		names = append(names, c.name)
	}
	for _, p := range a.plugins {
		for cmd := range p.Commands() {
			names = append(names, CommandName(p.Name(), cmd))
		}
	}
	sort.Strings(names)
	return names
}

func (a *Application) printHelp() {
	fmt.Fprintf(a.out, `%s

Usage:
  %s [command]

Commands:
  serve            Boot plugins and serve the bridge (default)
  migrate          Run all pending database migrations
  migrate:rollback Roll back the last batch of migrations
  migrate:status   Show migration status
  seed             Run all registered database seeders
  commands         List bridge commands
  route:list       List bridge routes

`, a.name, a.name)
}
