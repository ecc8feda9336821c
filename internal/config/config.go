// Package config holds the generator configuration: output placement,
// concurrency, acceleration, and the behavior toggles consumed by the
// lowering engine. Settings come from an optional HCL file with CLI flags
// layered on top.
package config

import (
	"fmt"
	"runtime"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the effective generator configuration.
type Config struct {
	// OutDir is where build.ninja, the companion scripts and the stamp are
	// written. Defaults to ".".
	OutDir string
	// Suffix is inserted into every artifact name (build<suffix>.ninja).
	Suffix string
	// NumJobs sets the depth of the local execution pool.
	NumJobs int

	// AccelDir, when set, enables the distributed-compilation rewrite; the
	// wrapper invoked is AccelDir + "/accelcc".
	AccelDir string
	// RemoteNumJobs overrides the -j value in the launcher script.
	RemoteNumJobs int
	// DefaultPool names a pool applied to every non-phony rule that does
	// not pick its own.
	DefaultPool string

	EnableDebug       bool
	DetectDepfiles    bool
	UsePhonyOutput    bool
	GenerateEmpty     bool
	AndroidHeuristics bool
	NoPrelude         bool

	// Targets are the explicitly requested default targets; empty means
	// "use the graph's default-target node".
	Targets []string

	LogLevel  string
	LogFormat string
}

// Default returns the configuration used when no file and no flags are
// given.
func Default() *Config {
	return &Config{
		OutDir:         ".",
		NumJobs:        runtime.NumCPU(),
		DetectDepfiles: true,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// fileConfig mirrors Config with pointer fields so an absent attribute is
// distinguishable from an explicit zero.
type fileConfig struct {
	OutDir            *string  `hcl:"out_dir,optional"`
	Suffix            *string  `hcl:"suffix,optional"`
	NumJobs           *int     `hcl:"num_jobs,optional"`
	AccelDir          *string  `hcl:"accel_dir,optional"`
	RemoteNumJobs     *int     `hcl:"remote_jobs,optional"`
	DefaultPool       *string  `hcl:"default_pool,optional"`
	EnableDebug       *bool    `hcl:"debug_comments,optional"`
	DetectDepfiles    *bool    `hcl:"detect_depfiles,optional"`
	UsePhonyOutput    *bool    `hcl:"native_phony_output,optional"`
	GenerateEmpty     *bool    `hcl:"generate_empty,optional"`
	AndroidHeuristics *bool    `hcl:"android_heuristics,optional"`
	NoPrelude         *bool    `hcl:"no_prelude,optional"`
	Targets           []string `hcl:"targets,optional"`
	LogLevel          *string  `hcl:"log_level,optional"`
	LogFormat         *string  `hcl:"log_format,optional"`
}

// Load reads an HCL configuration file and applies it over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	var fc fileConfig
	if err := hclsimple.DecodeFile(path, nil, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	fc.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&cfg.OutDir, fc.OutDir)
	setString(&cfg.Suffix, fc.Suffix)
	setInt(&cfg.NumJobs, fc.NumJobs)
	setString(&cfg.AccelDir, fc.AccelDir)
	setInt(&cfg.RemoteNumJobs, fc.RemoteNumJobs)
	setString(&cfg.DefaultPool, fc.DefaultPool)
	setBool(&cfg.EnableDebug, fc.EnableDebug)
	setBool(&cfg.DetectDepfiles, fc.DetectDepfiles)
	setBool(&cfg.UsePhonyOutput, fc.UsePhonyOutput)
	setBool(&cfg.GenerateEmpty, fc.GenerateEmpty)
	setBool(&cfg.AndroidHeuristics, fc.AndroidHeuristics)
	setBool(&cfg.NoPrelude, fc.NoPrelude)
	if fc.Targets != nil {
		cfg.Targets = fc.Targets
	}
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
}

// Validate checks value ranges; it does not touch the filesystem.
func (c *Config) Validate() error {
	if c.NumJobs < 1 {
		return fmt.Errorf("num_jobs must be positive, got %d", c.NumJobs)
	}
	if c.RemoteNumJobs < 0 {
		return fmt.Errorf("remote_jobs must not be negative, got %d", c.RemoteNumJobs)
	}
	switch c.LogFormat {
	case "console", "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q: must be 'console', 'text' or 'json'", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q: must be 'debug', 'info', 'warn', or 'error'", c.LogLevel)
	}
	return nil
}

// Filename expands an artifact name pattern ("build%s.ninja") with the
// configured suffix under the output directory.
func (c *Config) Filename(pattern string) string {
	dir := c.OutDir
	if dir == "" {
		dir = "."
	}
	return dir + "/" + fmt.Sprintf(pattern, c.Suffix)
}
