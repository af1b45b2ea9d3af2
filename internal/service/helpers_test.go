package service_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/maptoposter/posterd/internal/model"
	"github.com/stretchr/testify/require"
)

// shell returns the path of sh, skipping the test when it is missing.
func shell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	return sh
}

// script writes a stand-in generator into dir and returns its path.
func script(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)
	require.NoError(t, err)
	return path
}

// posterScript parses --output like the real generator, optionally sleeps
// $POSTER_DELAY seconds, records the output path in $POSTER_RECORD and
// writes the poster.
const posterScript = `out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift ;;
  esac
  shift
done
if [ -n "$POSTER_DELAY" ]; then sleep "$POSTER_DELAY"; fi
if [ -n "$POSTER_RECORD" ]; then echo "$out" >> "$POSTER_RECORD"; fi
echo "poster $$" > "$out"`

// fakeTool installs script body as poster.sh in a fresh workdir and returns
// a generator configuration running it through sh.
func fakeTool(t *testing.T, body string, env ...string) model.Tool {
	t.Helper()
	sh := shell(t)
	dir := t.TempDir()
	script(t, dir, "poster.sh", body)
	return model.Tool{
		Executable: sh,
		Script:     "poster.sh",
		Workdir:    dir,
		Env:        env,
		Flags:      model.DefaultFlags(),
	}
}
