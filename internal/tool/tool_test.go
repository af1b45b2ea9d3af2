package tool_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/maptoposter/posterd/internal/model"
	"github.com/maptoposter/posterd/internal/tool"
	"github.com/stretchr/testify/require"
)

func TestGenerateArgs(t *testing.T) {
	cfg := model.DefaultConfig().Tool
	tt := tool.New(cfg)

	req := model.PosterRequest{Location: model.Ptr("Paris, France"), Style: model.Ptr("noir")}.Resolve()
	got := tt.GenerateArgs(req, "/out/Paris__France_noir.png")
	require.Equal(t, []string{
		"create_map_poster.py",
		"--city", "Paris, France",
		"--country", "",
		"--output", "/out/Paris__France_noir.png",
		"--zoom", "11",
		"--width", "1200",
		"--height", "800",
	}, got)

	cfg.Script = ""
	cfg.Flags.Theme = "--theme"
	cfg.Flags.City = "-c"
	got = tool.New(cfg).GenerateArgs(req, "out.png")
	require.Equal(t, []string{
		"-c", "Paris, France",
		"--country", "",
		"--output", "out.png",
		"--zoom", "11",
		"--width", "1200",
		"--height", "800",
		"--theme", "noir",
	}, got)
}

func TestProbeArgs(t *testing.T) {
	tt := tool.New(model.DefaultConfig().Tool)
	require.Equal(t, []string{
		"create_map_poster.py",
		"--city", "TestCity",
		"--country", "TestCountry",
		"--output", "/tmp/x/test.png",
	}, tt.ProbeArgs("TestCity", "TestCountry", "/tmp/x/test.png"))
}

func TestPreflight(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "poster.sh"), []byte("exit 0\n"), 0o755))

	ok := model.Tool{Executable: sh, Script: "poster.sh", Workdir: dir}
	require.NoError(t, tool.New(ok).Preflight())

	t.Run("missing executable", func(t *testing.T) {
		cfg := ok
		cfg.Executable = filepath.Join(dir, "does-not-exist")
		err := tool.New(cfg).Preflight()
		require.ErrorIs(t, err, tool.ErrNotFound)
		require.ErrorContains(t, err, "executable")
	})
	t.Run("missing workdir", func(t *testing.T) {
		cfg := ok
		cfg.Workdir = filepath.Join(dir, "nope")
		err := tool.New(cfg).Preflight()
		require.ErrorIs(t, err, tool.ErrNotFound)
		require.ErrorContains(t, err, "workdir")
	})
	t.Run("workdir is a file", func(t *testing.T) {
		cfg := ok
		cfg.Workdir = filepath.Join(dir, "poster.sh")
		require.ErrorContains(t, tool.New(cfg).Preflight(), "is not a directory")
	})
	t.Run("missing script", func(t *testing.T) {
		cfg := ok
		cfg.Script = "create_map_poster.py"
		err := tool.New(cfg).Preflight()
		require.ErrorIs(t, err, tool.ErrNotFound)
		require.ErrorContains(t, err, "script")
	})
}
