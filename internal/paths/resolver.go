// Package paths maps poster requests to their output file.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var unsafe = strings.NewReplacer(
	",", "_",
	" ", "_",
	"/", "_",
	"\\", "_",
)

// Resolver derives output paths under a fixed directory.
type Resolver struct {
	dir string
}

func NewResolver(dir string) (Resolver, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return Resolver{}, errors.New("paths: output directory is required")
	}
	if !filepath.IsAbs(dir) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	return Resolver{dir: filepath.Clean(dir)}, nil
}

func (r Resolver) Dir() string {
	return r.dir
}

// Resolve returns <dir>/<location>_<style>.<format>. The result depends on
// the three arguments only, so the same triple always maps to the same file.
// All three segments go through Sanitize, the format included, so a format
// can never add a directory to the path.
func (r Resolver) Resolve(location, style, format string) string {
	name := Sanitize(location) + "_" + Sanitize(style) + "." + Sanitize(format)
	return filepath.Join(r.dir, name)
}

// Ensure creates the output directory if it does not exist yet.
func (r Resolver) Ensure() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("paths: ensure output directory: %w", err)
	}
	return nil
}

// Sanitize replaces characters which are unsafe in a file name segment.
func Sanitize(segment string) string {
	s := unsafe.Replace(segment)
	if s == "." || s == ".." {
		return strings.Repeat("_", len(s))
	}
	return s
}
