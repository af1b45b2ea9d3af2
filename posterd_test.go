package posterd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	posterdPath string

	// tmpDir is a function used to create a tempdir
	// -test.keepdir flag says test to use os.MkdirTemp
	// default is t.TempDir, which will be cleaned up
	tmpDir func(t *testing.T) string
)

const posterScript = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
	case "$1" in
		--output) out="$2"; shift 2 ;;
		*) shift ;;
	esac
done
[ -n "$out" ] || { echo "missing --output" >&2; exit 2; }
printf 'poster' > "$out"
`

func TestMain(m *testing.M) {
	var keepTestDir bool
	flag.BoolVar(&keepTestDir, "test.keepdir", false, "use os.TempDir instead of t.TempDir to keep test artifacts")

	flag.Parse()

	if testing.Short() {
		slog.Warn("integration tests with -short are ignored")
		os.Exit(0)
	}

	if !keepTestDir {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			return t.TempDir()
		}
	} else {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			dir, err := os.MkdirTemp("", strings.ReplaceAll(t.Name(), "/", "_")+"*")
			require.NoError(t, err)
			_, err = fmt.Fprintf(t.Output(), "TEMPDIR %s: -test.keepdir used, so it won't be automatically deleted", dir)
			require.NoError(t, err)
			return dir
		}
	}

	if !isExecutable("posterd-ci") {
		slog.Warn("integration tests ignored, run go build -race -o posterd-ci ./cmd/posterd/ first")
		os.Exit(0)
	}

	var err error
	posterdPath, err = filepath.Abs("posterd-ci")
	if err != nil {
		slog.Error("can't get abspath for posterd-ci", "error", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func TestGenerate(t *testing.T) {
	dir := chDir(t)
	creat(t, "posterd.yaml", []byte(config(t, dir, "127.0.0.1:0")))

	stdout, stderr, err := posterd(t, "generate", "Paris, France", "noir", "--zoom", "13", "--config", "posterd.yaml")
	if err != nil {
		t.Logf("%s", stderr)
		require.NoError(t, err)
	}
	want := filepath.Join(dir, "posters", "Paris__France_noir.png")
	require.Equal(t, want, strings.TrimSpace(stdout))
	b, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, "poster", string(b))
}

func TestReady(t *testing.T) {
	dir := chDir(t)
	creat(t, "posterd.yaml", []byte(config(t, dir, "127.0.0.1:0")))

	stdout, stderr, err := posterd(t, "ready")
	if err != nil {
		t.Logf("%s", stderr)
		require.NoError(t, err)
	}
	var res struct {
		Ready bool `json:"ready"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	require.True(t, res.Ready)

	creat(t, "poster.sh", []byte("#!/bin/sh\necho 'No module named osmnx' >&2\nexit 1\n"))
	stdout, _, err = posterd(t, "ready")
	require.Error(t, err)
	require.Contains(t, stdout, "No module named osmnx")
}

func TestServe(t *testing.T) {
	dir := chDir(t)
	addr := freeAddr(t)
	creat(t, "posterd.yaml", []byte(config(t, dir, addr)))

	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Second)
	t.Cleanup(cancel)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, posterdPath, "serve")
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Start())

	base := "http://" + addr
	client := &http.Client{Timeout: 5 * time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get(base + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond, stderr.String())

	resp, err := client.Post(base+"/generate", "application/json", strings.NewReader(`{"location":"Oslo","style":"noir"}`))
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, filepath.Join(dir, "posters", "Oslo_noir.png"), got["output_path"])

	require.Eventually(t, func() bool {
		resp, err := client.Get(base + "/posters/Oslo_noir.png")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, cmd.Process.Signal(syscall.SIGTERM))
	if err := cmd.Wait(); err != nil {
		t.Logf("%s", stderr.String())
		require.NoError(t, err)
	}
}

func config(t *testing.T, dir, addr string) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	creat(t, "poster.sh", []byte(posterScript))
	return fmt.Sprintf(`
version: 0
server:
    addr: %q
    shutdown_timeout: 5s
tool:
    executable: %q
    script: poster.sh
    workdir: %q
generate:
    output_dir: %q
    timeout: 10s
ready:
    timeout: 10s
log:
    verbose: true
    format: text
`, addr, sh, dir, filepath.Join(dir, "posters"))
}

func posterd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Second)
	t.Cleanup(cancel)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, posterdPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

func chDir(t *testing.T) string {
	t.Helper()
	tempdir := tmpDir(t)
	t.Chdir(tempdir)
	return tempdir
}

func creat(t *testing.T, path string, content []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()
	_, err = f.Write(content)
	require.NoError(t, err)
	err = f.Sync()
	require.NoError(t, err)
}
