package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maptoposter/posterd/internal/log"
	"github.com/maptoposter/posterd/internal/model"
	"github.com/maptoposter/posterd/internal/paths"
	"github.com/maptoposter/posterd/internal/tool"
)

var ErrClosed = errors.New("dispatcher closed")

// Ticket acknowledges an accepted request. OutputPath is where the poster
// will be written, it does not exist yet when Dispatch returns.
type Ticket struct {
	ID         string
	OutputPath string
	Request    model.GenerationRequest
	Accepted   time.Time
}

// ObserverFunc receives the outcome of every detached generation.
type ObserverFunc func(ctx context.Context, ticket Ticket, out Outcome)

// Dispatcher starts generations as detached tasks. There is no queue, no
// concurrency limit and no deduplication: two dispatches of the same request
// both run and the last one to finish owns the file.
type Dispatcher struct {
	exec     Executor
	tool     tool.Tool
	resolver paths.Resolver
	timeout  time.Duration
	observe  ObserverFunc

	base   context.Context
	cancel context.CancelFunc

	mx     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(exec Executor, t tool.Tool, resolver paths.Resolver, timeout time.Duration) *Dispatcher {
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		exec:     exec,
		tool:     t,
		resolver: resolver,
		timeout:  timeout,
		observe:  LogOutcome,
		base:     base,
		cancel:   cancel,
	}
}

// WithObserver replaces the default logging observer.
func (d *Dispatcher) WithObserver(fn ObserverFunc) *Dispatcher {
	if fn != nil {
		d.observe = fn
	}
	return d
}

// Dispatch resolves the output path, schedules the generation and returns
// without waiting for it. The task runs on the dispatcher's own context, so
// the end of ctx does not stop it; only the log attributes of ctx are kept.
// A nil error means the request was accepted, not that it will succeed.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.GenerationRequest) (Ticket, error) {
	ticket, cmd, err := d.prepare(req)
	if err != nil {
		return Ticket{}, err
	}

	d.mx.Lock()
	defer d.mx.Unlock()
	if d.closed {
		return Ticket{}, ErrClosed
	}

	jobCtx := log.ContextAttrs(d.base, append(log.Attrs(ctx), slog.String("job_id", ticket.ID))...)
	d.wg.Go(func() {
		d.run(jobCtx, ticket, cmd)
	})
	slog.InfoContext(jobCtx, "generation dispatched",
		"location", req.Location,
		"style", req.Style,
		"output_path", ticket.OutputPath,
	)
	return ticket, nil
}

// Generate runs a generation in the foreground and returns its outcome.
func (d *Dispatcher) Generate(ctx context.Context, req model.GenerationRequest) (Ticket, Outcome, error) {
	ticket, cmd, err := d.prepare(req)
	if err != nil {
		return Ticket{}, Outcome{}, err
	}
	ctx = log.ContextAttrs(ctx, slog.String("job_id", ticket.ID))
	out := d.exec.Run(ctx, cmd)
	if out.OK() {
		out.OutputPath = ticket.OutputPath
	}
	return ticket, out, nil
}

func (d *Dispatcher) prepare(req model.GenerationRequest) (Ticket, Command, error) {
	if err := d.resolver.Ensure(); err != nil {
		return Ticket{}, Command{}, err
	}
	ticket := Ticket{
		ID:         uuid.NewString(),
		OutputPath: d.resolver.Resolve(req.Location, req.Style, req.OutputFormat),
		Request:    req,
		Accepted:   time.Now().UTC(),
	}
	cmd := Command{
		Path:    d.tool.Executable(),
		Dir:     d.tool.Workdir(),
		Args:    d.tool.GenerateArgs(req, ticket.OutputPath),
		Env:     d.tool.Env(),
		Timeout: d.timeout,
	}
	return ticket, cmd, nil
}

func (d *Dispatcher) run(ctx context.Context, ticket Ticket, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "generation panicked", "panic", fmt.Sprint(r), "output_path", ticket.OutputPath)
		}
	}()

	slog.DebugContext(ctx, "generation started", "output_path", ticket.OutputPath)
	out := d.exec.Run(ctx, cmd)
	if out.OK() {
		out.OutputPath = ticket.OutputPath
	}
	d.observe(ctx, ticket, out)
}

// Wait blocks until every dispatched generation has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting new requests and waits for running generations. If
// ctx ends first, the running generators are killed and Close returns once
// they have exited.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mx.Lock()
	d.closed = true
	d.mx.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded, killing running generations")
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// LogOutcome is the default observer. Failures are logged with the captured
// stderr, a success whose artifact is missing is logged as a warning.
func LogOutcome(ctx context.Context, ticket Ticket, out Outcome) {
	if !out.OK() {
		slog.ErrorContext(ctx, "generation failed", "outcome", out)
		return
	}
	if _, err := os.Stat(ticket.OutputPath); err != nil {
		slog.WarnContext(ctx, "generator succeeded without writing the poster", "outcome", out, "error", err)
		return
	}
	slog.InfoContext(ctx, "generation done", "outcome", out)
}
