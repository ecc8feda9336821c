package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mk2ninja/internal/cli"
)

func TestParse(t *testing.T) {
	t.Run("manifest only", func(t *testing.T) {
		var out bytes.Buffer
		app, shouldExit, err := cli.Parse([]string{"build.hcl"}, &out)
		require.NoError(t, err)
		require.False(t, shouldExit)
		assert.Equal(t, "build.hcl", app.Manifest)
		assert.Equal(t, ".", app.Config.OutDir)
		assert.Equal(t, runtime.NumCPU(), app.Config.NumJobs)
		assert.Empty(t, app.Config.Targets)
	})

	t.Run("flags and targets", func(t *testing.T) {
		var out bytes.Buffer
		app, shouldExit, err := cli.Parse([]string{
			"-C", "out", "-suffix", "-arm", "-j", "16",
			"-accel-dir", "/opt/accel", "-remote-jobs", "500",
			"-debug-comments", "-android-heuristics",
			"build.hcl", "droid", "tests",
		}, &out)
		require.NoError(t, err)
		require.False(t, shouldExit)
		assert.Equal(t, "build.hcl", app.Manifest)
		assert.Equal(t, "out", app.Config.OutDir)
		assert.Equal(t, "-arm", app.Config.Suffix)
		assert.Equal(t, 16, app.Config.NumJobs)
		assert.Equal(t, "/opt/accel", app.Config.AccelDir)
		assert.Equal(t, 500, app.Config.RemoteNumJobs)
		assert.True(t, app.Config.EnableDebug)
		assert.True(t, app.Config.AndroidHeuristics)
		assert.Equal(t, []string{"droid", "tests"}, app.Config.Targets)
	})

	t.Run("no arguments prints usage", func(t *testing.T) {
		var out bytes.Buffer
		app, shouldExit, err := cli.Parse(nil, &out)
		require.NoError(t, err)
		assert.True(t, shouldExit)
		assert.Nil(t, app)
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("help requested", func(t *testing.T) {
		var out bytes.Buffer
		app, shouldExit, err := cli.Parse([]string{"-h"}, &out)
		require.NoError(t, err)
		assert.True(t, shouldExit)
		assert.Nil(t, app)
	})

	t.Run("unknown flag", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := cli.Parse([]string{"-bogus", "build.hcl"}, &out)
		var exitErr *cli.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("zero jobs falls back to CPU count", func(t *testing.T) {
		var out bytes.Buffer
		app, _, err := cli.Parse([]string{"-j", "0", "build.hcl"}, &out)
		require.NoError(t, err)
		assert.Equal(t, runtime.NumCPU(), app.Config.NumJobs)
	})

	t.Run("invalid value rejected", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := cli.Parse([]string{"-j", "-2", "build.hcl"}, &out)
		var exitErr *cli.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
		assert.Contains(t, exitErr.Message, "num_jobs must be positive")
	})
}

func TestParseConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gen.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
out_dir  = "from-file"
num_jobs = 4
suffix   = "-file"
`), 0644))

	t.Run("file settings applied", func(t *testing.T) {
		var out bytes.Buffer
		app, _, err := cli.Parse([]string{"-config", cfgPath, "build.hcl"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "from-file", app.Config.OutDir)
		assert.Equal(t, 4, app.Config.NumJobs)
		assert.Equal(t, "-file", app.Config.Suffix)
	})

	t.Run("explicit flags override the file", func(t *testing.T) {
		var out bytes.Buffer
		app, _, err := cli.Parse([]string{"-config", cfgPath, "-C", "from-flag", "build.hcl"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "from-flag", app.Config.OutDir)
		// Settings without a matching flag keep the file's value.
		assert.Equal(t, 4, app.Config.NumJobs)
		assert.Equal(t, "-file", app.Config.Suffix)
	})

	t.Run("unreadable config file", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := cli.Parse([]string{"-config", filepath.Join(dir, "absent.hcl"), "build.hcl"}, &out)
		var exitErr *cli.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})
}
