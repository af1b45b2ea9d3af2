package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maptoposter/posterd/internal/tool"
)

// Readiness is the result of a single Probe.Check. It is never cached.
type Readiness struct {
	Ready   bool          `json:"ready"`
	Detail  string        `json:"detail,omitempty"`
	Checked time.Time     `json:"checked"`
	Elapsed time.Duration `json:"elapsed"`
}

// ProbeConfig configures the synthetic request used by the readiness check.
type ProbeConfig struct {
	Timeout time.Duration
	City    string
	Country string
	TempDir string // parent of the disposable output dir, os.TempDir() if empty
}

// Probe verifies that the generator works by running it on a synthetic
// request.
type Probe struct {
	exec Executor
	tool tool.Tool
	cfg  ProbeConfig
}

func NewProbe(exec Executor, t tool.Tool, cfg ProbeConfig) *Probe {
	return &Probe{exec: exec, tool: t, cfg: cfg}
}

// Check runs preflight checks followed by one bounded execution of the
// generator writing into a temporary directory, which is removed
// afterwards.
func (p *Probe) Check(ctx context.Context) Readiness {
	start := time.Now()
	res := p.check(ctx)
	res.Checked = start.UTC()
	res.Elapsed = time.Since(start)
	if res.Ready {
		slog.DebugContext(ctx, "readiness check passed", "elapsed_ms", res.Elapsed.Milliseconds())
	} else {
		slog.WarnContext(ctx, "readiness check failed", "detail", res.Detail, "elapsed_ms", res.Elapsed.Milliseconds())
	}
	return res
}

func (p *Probe) check(ctx context.Context) Readiness {
	if err := p.tool.Preflight(); err != nil {
		return Readiness{Detail: fmt.Errorf("%w: %w", ErrEnvironment, err).Error()}
	}

	tmp, err := os.MkdirTemp(p.cfg.TempDir, "posterd-ready-*")
	if err != nil {
		return Readiness{Detail: fmt.Errorf("%w: creating temp dir: %w", ErrEnvironment, err).Error()}
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			slog.WarnContext(ctx, "removing readiness temp dir", "dir", tmp, "error", err)
		}
	}()

	output := filepath.Join(tmp, "test.png")
	out := p.exec.Run(ctx, Command{
		Path:    p.tool.Executable(),
		Dir:     p.tool.Workdir(),
		Args:    p.tool.ProbeArgs(p.cfg.City, p.cfg.Country, output),
		Env:     p.tool.Env(),
		Timeout: p.cfg.Timeout,
	})
	if !out.OK() {
		return Readiness{Detail: out.Diagnostic()}
	}
	return Readiness{Ready: true}
}
