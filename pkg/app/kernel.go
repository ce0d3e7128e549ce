package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/simplepos/shell/config"
	"github.com/simplepos/shell/pkg/auth"
	"github.com/simplepos/shell/pkg/database"
	"github.com/simplepos/shell/pkg/ipc"
	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/metrics"
	"github.com/simplepos/shell/pkg/middleware"
	"github.com/simplepos/shell/pkg/reqid"
	"github.com/simplepos/shell/pkg/response"
	"github.com/simplepos/shell/pkg/router"
	"github.com/simplepos/shell/pkg/sse"
	"github.com/simplepos/shell/pkg/workerpool"
	"github.com/simplepos/shell/pkg/ws"
)

// Runtime is a booted application: plugins initialised, commands
// registered, background services ready to start.
type Runtime struct {
	Host       *Host
	Dispatcher *ipc.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc
	pool   *workerpool.Pool
	hub    *ws.Hub
	inited []Plugin
	wg     sync.WaitGroup
	once   sync.Once
}

// Boot initialises every plugin in order and registers all commands. A
// plugin that fails to initialise aborts the boot; plugins already
// initialised are closed again.
func (a *Application) Boot(ctx context.Context) (*Runtime, error) {
	rt := a.newRuntime(ctx)
	ctx, host, registry := rt.ctx, rt.Host, rt.Dispatcher.Registry()
	log := logger.Target("app")

	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	for _, c := range a.commands {
		if err := registry.Register(c.name, c.handler); err != nil {
			return fail(err)
		}
	}

	for _, p := range a.plugins {
		start := time.Now()
		if err := p.Init(ctx, host); err != nil {
			return fail(fmt.Errorf("app: plugin %s: %w", p.Name(), err))
		}
		rt.inited = append(rt.inited, p)
		for cmd, h := range p.Commands() {
			if err := registry.Register(CommandName(p.Name(), cmd), h); err != nil {
				return fail(err)
			}
		}
		log.Info("app: plugin ready", "plugin", p.Name(), "elapsed", time.Since(start))
	}

	for _, fn := range a.setups {
		if err := fn(ctx, host); err != nil {
			return fail(fmt.Errorf("app: setup: %w", err))
		}
	}

	return rt, nil
}

func (a *Application) newRuntime(parent context.Context) *Runtime {
	ctx, cancel := context.WithCancel(parent)
	host := NewHost(a.name, config.DataDir(), cancel)
	rt := &Runtime{
		Host:   host,
		ctx:    ctx,
		cancel: cancel,
		pool:   workerpool.New(config.WorkerPoolSize()),
		hub:    ws.NewHub(host.Events, config.BridgeOrigins()...),
	}
	rt.Dispatcher = ipc.NewDispatcher(ipc.NewRegistry(), rt.pool)
	return rt
}

// Context is cancelled when the application shuts down.
func (rt *Runtime) Context() context.Context { return rt.ctx }

// Start runs the event hub and the scheduler in the background.
func (rt *Runtime) Start() {
	rt.wg.Add(2)
	go func() {
		defer rt.wg.Done()
		rt.hub.Run(rt.ctx)
	}()
	go func() {
		defer rt.wg.Done()
		rt.Host.Scheduler.Start(rt.ctx)
	}()
}

// Close stops background services, closes plugins in reverse order, drains
// the worker pool and closes every database. It is safe to call twice.
func (rt *Runtime) Close() error {
	var errs []error
	rt.once.Do(func() {
		rt.cancel()
		rt.wg.Wait()

		for i := len(rt.inited) - 1; i >= 0; i-- {
			p := rt.inited[i]
			if err := p.Close(); err != nil {
				errs = append(errs, fmt.Errorf("app: close %s: %w", p.Name(), err))
			}
		}
		rt.pool.Shutdown()
		if err := database.CloseAll(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// Handler builds the bridge: global middleware, then the guarded command,
// event and listing endpoints.
func (rt *Runtime) Handler() http.Handler {
	return rt.Router().Handler()
}

// Router returns the bridge route table.
func (rt *Runtime) Router() *router.Router {
	r := router.New()

	// Global middleware stack (outermost → innermost):
	//  1. Prometheus metrics, for total latency
	//  2. Recovery
	//  3. Request ID, before anything logs
	//  4. Logger
	//  5. CORS
	r.Use(metrics.Middleware())
	r.Use(middleware.Recovery)
	r.Use(reqid.Middleware())
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(middleware.BridgeCORSOptions(config.BridgeOrigins())))

	r.Get("/health", "health", func(w http.ResponseWriter, _ *http.Request) {
		response.Success(w, map[string]string{"app": rt.Host.Name, "status": "ok"})
	})
	r.Get("/metrics", "metrics", metrics.Handler())

	guarded := []router.Middleware{middleware.Auth(auth.FromConfig())}
	if n := config.BridgeRateLimit(); n > 0 {
		guarded = append(guarded, middleware.NewRateLimiter(n, time.Minute).Middleware)
	}
	api := r.Group("/", guarded...)
	api.Post("/invoke/{command}", "invoke", rt.Dispatcher.HTTPHandler())
	api.Get("/commands", "commands", func(w http.ResponseWriter, _ *http.Request) {
		response.Success(w, rt.Dispatcher.Registry().Names())
	})
	api.Get("/events", "events", rt.hub.Handler())
	api.Get("/events/stream", "events.stream", sse.Handler(rt.Host.Events))

	return r
}
