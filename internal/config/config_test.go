package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mk2ninja/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, ".", cfg.OutDir)
	assert.Equal(t, runtime.NumCPU(), cfg.NumJobs)
	assert.True(t, cfg.DetectDepfiles)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		path := writeConfig(t, `
out_dir     = "out"
suffix      = "-arm"
num_jobs    = 8
accel_dir   = "/opt/accel"
remote_jobs = 500
targets     = ["droid", "tests"]
log_level   = "debug"
`)
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "out", cfg.OutDir)
		assert.Equal(t, "-arm", cfg.Suffix)
		assert.Equal(t, 8, cfg.NumJobs)
		assert.Equal(t, "/opt/accel", cfg.AccelDir)
		assert.Equal(t, 500, cfg.RemoteNumJobs)
		assert.Equal(t, []string{"droid", "tests"}, cfg.Targets)
		assert.Equal(t, "debug", cfg.LogLevel)
		// Untouched settings keep their defaults.
		assert.True(t, cfg.DetectDepfiles)
		assert.Equal(t, "console", cfg.LogFormat)
	})

	t.Run("explicit false overrides the default", func(t *testing.T) {
		path := writeConfig(t, `detect_depfiles = false`)
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.False(t, cfg.DetectDepfiles)
	})

	t.Run("error cases", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.hcl"))
		assert.Error(t, err)

		_, err = config.Load(writeConfig(t, `out_dir = `))
		assert.Error(t, err)

		_, err = config.Load(writeConfig(t, `num_jobs = 0`))
		assert.ErrorContains(t, err, "num_jobs must be positive")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"zero jobs", func(c *config.Config) { c.NumJobs = 0 }, "num_jobs must be positive"},
		{"negative remote jobs", func(c *config.Config) { c.RemoteNumJobs = -1 }, "remote_jobs must not be negative"},
		{"bad log format", func(c *config.Config) { c.LogFormat = "xml" }, "invalid log_format"},
		{"bad log level", func(c *config.Config) { c.LogLevel = "trace" }, "invalid log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestFilename(t *testing.T) {
	cfg := config.Default()
	cfg.OutDir = "out"
	cfg.Suffix = "-arm"
	assert.Equal(t, "out/build-arm.ninja", cfg.Filename("build%s.ninja"))

	cfg.OutDir = ""
	cfg.Suffix = ""
	assert.Equal(t, "./build.ninja", cfg.Filename("build%s.ninja"))
}
