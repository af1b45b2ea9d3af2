package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	ErrTimeout     = errors.New("generator timed out")
	ErrToolFailure = errors.New("generator failed")
	ErrEnvironment = errors.New("generator unavailable")
	ErrCanceled    = errors.New("generator canceled")
)

// Reason classifies a failed Outcome.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonTimeout     Reason = "timeout"
	ReasonToolFailure Reason = "tool_failure"
	ReasonEnvironment Reason = "environment"
	ReasonCanceled    Reason = "canceled"
)

// waitDelay bounds how long Wait keeps reading pipes inherited by
// grandchildren after the process group was killed.
const waitDelay = 2 * time.Second

// Command is a single execution of an external program.
type Command struct {
	Path    string
	Dir     string
	Args    []string
	Env     []string // appended to the service environment
	Timeout time.Duration
}

// Outcome is the result of one Command.
type Outcome struct {
	Path       string
	Dir        string
	Args       []string
	Started    time.Time
	Stopped    time.Time
	ExitCode   int
	Stdout     string
	Stderr     string
	Err        error
	OutputPath string // set on success by the caller which knows what was produced
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

func (o Outcome) Elapsed() time.Duration {
	return o.Stopped.Sub(o.Started)
}

func (o Outcome) Reason() Reason {
	switch {
	case o.Err == nil:
		return ReasonNone
	case errors.Is(o.Err, ErrTimeout):
		return ReasonTimeout
	case errors.Is(o.Err, ErrEnvironment):
		return ReasonEnvironment
	case errors.Is(o.Err, ErrCanceled):
		return ReasonCanceled
	default:
		return ReasonToolFailure
	}
}

// Diagnostic returns the text explaining a failure: the error followed by
// the captured stderr, unmodified.
func (o Outcome) Diagnostic() string {
	if o.Err == nil {
		return ""
	}
	if strings.TrimSpace(o.Stderr) == "" {
		return o.Err.Error()
	}
	return o.Err.Error() + ": " + o.Stderr
}

func (o Outcome) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("path", o.Path),
		slog.Any("args", o.Args),
		slog.String("dir", o.Dir),
		slog.Int("exit_code", o.ExitCode),
		slog.Int64("elapsed_ms", o.Elapsed().Milliseconds()),
	}
	if o.Err != nil {
		attrs = append(attrs,
			slog.String("reason", string(o.Reason())),
			slog.String("error", o.Err.Error()),
			slog.String("stderr", o.Stderr),
		)
	}
	if o.OutputPath != "" {
		attrs = append(attrs, slog.String("output_path", o.OutputPath))
	}
	return slog.GroupValue(attrs...)
}

// Executor runs a Command to completion.
type Executor interface {
	Run(ctx context.Context, cmd Command) Outcome
}

// Runner is a thin wrapper around os/exec. Each Run starts exactly one
// process in its own process group; on timeout the whole group is killed.
type Runner struct{}

func NewRunner() Runner {
	return Runner{}
}

// Run blocks until the process exits, is killed by the timeout, or fails to
// start. It never retries.
func (Runner) Run(ctx context.Context, proto Command) Outcome {
	out := Outcome{
		Path:     proto.Path,
		Dir:      proto.Dir,
		Args:     append([]string(nil), proto.Args...),
		ExitCode: -1,
	}

	var cancel context.CancelFunc
	if proto.Timeout == 0 {
		slog.WarnContext(ctx, "command has no timeout", "path", proto.Path)
		ctx, cancel = context.WithCancel(ctx)
	} else {
		ctx, cancel = context.WithTimeout(ctx, proto.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(ctx, out.Path, out.Args...)
	cmd.Dir = proto.Dir
	if len(proto.Env) > 0 {
		cmd.Env = append(os.Environ(), proto.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	slog.DebugContext(ctx, "starting command", "path", out.Path, "args", out.Args, "dir", out.Dir)
	out.Started = time.Now().UTC()
	err := cmd.Run()
	out.Stopped = time.Now().UTC()

	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
	out.Err = classify(ctx, proto, err)
	return out
}

func classify(ctx context.Context, proto Command, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s: %w", ErrTimeout, proto.Timeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %w", ErrToolFailure, err)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", ErrEnvironment, err)
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%w: %w", ErrEnvironment, err)
	}
	return fmt.Errorf("%w: %w", ErrToolFailure, err)
}
