// Package ipc is the command layer between the webview and the shell.
//
// The UI calls a named command with a JSON object of arguments; the shell
// runs the registered Handler on a bounded worker pool and returns either a
// JSON value or an error string:
//
//	reg := ipc.NewRegistry()
//	reg.MustRegister("print_raw", ipc.Typed(func(ctx context.Context, a PrintArgs) (any, error) {
//	    return nil, printer.PrintRaw(ctx, a.Connection, a.Data)
//	}))
//
//	d := ipc.NewDispatcher(reg, workerpool.New(16))
//	result, err := d.Invoke(ctx, "print_raw", json.RawMessage(`{"connection":"tcp:10.0.0.9:9100","data":[27,64]}`))
package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/simplepos/shell/pkg/validate"
)

var (
	// ErrUnknownCommand is returned for a command nobody registered.
	ErrUnknownCommand = errors.New("ipc: unknown command")
	// ErrDuplicateCommand is returned when a name is registered twice.
	ErrDuplicateCommand = errors.New("ipc: duplicate command")
	// ErrInvalidArgs wraps argument decoding failures.
	ErrInvalidArgs = errors.New("ipc: invalid arguments")
)

// Handler runs one command. args is the raw JSON argument object; it may be
// empty. The result is encoded as JSON.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Typed adapts a function taking a decoded argument struct to a Handler.
func Typed[A any](fn func(ctx context.Context, args A) (any, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		args, err := Decode[A](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}
}

// Decode unmarshals raw into A and checks its `validate` tags. Empty input
// yields the zero value, which is validated too.
func Decode[A any](raw json.RawMessage) (A, error) {
	var args A
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return args, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
		}
	}
	if err := validate.Check(&args); err != nil {
		return args, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return args, nil
}

// Registry maps command names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under name. Names are unique.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("ipc: register: empty name or nil handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	r.handlers[name] = h
	return nil
}

// MustRegister is Register for wiring code that cannot continue on error.
func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
