// Package tool holds the command line contract of the external poster
// generator. Flag names come from configuration, the generator owns their
// meaning.
package tool

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/maptoposter/posterd/internal/model"
)

var ErrNotFound = errors.New("poster generator not found")

type Tool struct {
	cfg model.Tool
}

func New(cfg model.Tool) Tool {
	return Tool{cfg: cfg}
}

func (t Tool) Executable() string { return t.cfg.Executable }
func (t Tool) Workdir() string    { return t.cfg.Workdir }

// Env returns a copy of the extra environment.
func (t Tool) Env() []string {
	return append([]string(nil), t.cfg.Env...)
}

// GenerateArgs builds the argument vector for a generation run. The order is
// fixed: city, country, output, zoom, width, height and, when configured,
// theme.
func (t Tool) GenerateArgs(req model.GenerationRequest, output string) []string {
	f := t.cfg.Flags
	args := t.prefix(7*2 + 1)
	args = append(args,
		f.City, req.Location,
		f.Country, req.Country,
		f.Output, output,
		f.Zoom, req.ZoomArg(),
		f.Width, req.WidthArg(),
		f.Height, req.HeightArg(),
	)
	if f.Theme != "" {
		args = append(args, f.Theme, req.Style)
	}
	return args
}

// ProbeArgs builds the minimal argument vector used by the readiness check.
func (t Tool) ProbeArgs(city, country, output string) []string {
	f := t.cfg.Flags
	args := t.prefix(3*2 + 1)
	return append(args,
		f.City, city,
		f.Country, country,
		f.Output, output,
	)
}

func (t Tool) prefix(size int) []string {
	args := make([]string, 0, size)
	if t.cfg.Script != "" {
		args = append(args, t.cfg.Script)
	}
	return args
}

// Preflight checks that the executable can be found, the working directory
// exists and the script, if any, is present in it.
func (t Tool) Preflight() error {
	var errs []error
	if _, err := exec.LookPath(t.cfg.Executable); err != nil {
		errs = append(errs, fmt.Errorf("%w: executable: %w", ErrNotFound, err))
	}
	info, err := os.Stat(t.cfg.Workdir)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("%w: workdir: %w", ErrNotFound, err))
	case !info.IsDir():
		errs = append(errs, fmt.Errorf("%w: workdir %s is not a directory", ErrNotFound, t.cfg.Workdir))
	case t.cfg.Script != "":
		script := t.cfg.Script
		if !filepath.IsAbs(script) {
			script = filepath.Join(t.cfg.Workdir, script)
		}
		if _, err := os.Stat(script); err != nil {
			errs = append(errs, fmt.Errorf("%w: script: %w", ErrNotFound, err))
		}
	}
	return errors.Join(errs...)
}
