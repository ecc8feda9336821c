package cli

import (
	"flag"
	"fmt"
	"io"
	"runtime"

	"github.com/vk/mk2ninja/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// App is the parsed invocation: the effective configuration plus the
// manifest to lower.
type App struct {
	Config   *config.Config
	Manifest string
}

// Parse processes command-line arguments. It returns a populated App, a
// boolean indicating if the program should exit cleanly, or an ExitError.
// Flags given explicitly override settings from the -config file.
func Parse(args []string, output io.Writer) (*App, bool, error) {
	flagSet := flag.NewFlagSet("mk2ninja", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
mk2ninja - lowers a resolved Make-style dependency graph to a ninja file.

Usage:
  mk2ninja [options] MANIFEST [TARGET...]

Arguments:
  MANIFEST
    Path to the .hcl manifest describing variables and targets.
  TARGET...
    Explicit default targets for the generated file.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to an HCL configuration file.")
	outDirFlag := flagSet.String("C", ".", "Directory the artifacts are written to.")
	suffixFlag := flagSet.String("suffix", "", "Suffix inserted into artifact names.")
	jobsFlag := flagSet.Int("j", 0, "Depth of the local execution pool (0 = number of CPUs).")
	accelDirFlag := flagSet.String("accel-dir", "", "Directory of the acceleration wrapper; enables compile rewriting.")
	remoteJobsFlag := flagSet.Int("remote-jobs", 0, "Launcher -j value when remote execution is available.")
	defaultPoolFlag := flagSet.String("default-pool", "", "Pool applied to rules that pick none themselves.")
	debugFlag := flagSet.Bool("debug-comments", false, "Emit source locations as comments into the build file.")
	detectDepfilesFlag := flagSet.Bool("detect-depfiles", true, "Discover dependency files from compiler flags.")
	phonyOutputFlag := flagSet.Bool("native-phony-output", false, "Use phony_output instead of the always-build sentinel.")
	emptyFlag := flagSet.Bool("empty", false, "Generate a build file without any build statements.")
	androidFlag := flagSet.Bool("android-heuristics", false, "Enable the echo/mkdir recipe heuristics used by the Android tree.")
	noPreludeFlag := flagSet.Bool("no-prelude", false, "Skip the builddir/pool prelude.")
	logFormatFlag := flagSet.String("log-format", "console", "Log output format: 'console', 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Logging level: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, true, nil
	}
	manifest := flagSet.Arg(0)
	targets := flagSet.Args()[1:]

	cfg := config.Default()
	if *configFlag != "" {
		loaded, err := config.Load(*configFlag)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		cfg = loaded
	}

	// Only flags the user actually set override the config file.
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "C":
			cfg.OutDir = *outDirFlag
		case "suffix":
			cfg.Suffix = *suffixFlag
		case "j":
			if *jobsFlag == 0 {
				cfg.NumJobs = runtime.NumCPU()
			} else {
				cfg.NumJobs = *jobsFlag
			}
		case "accel-dir":
			cfg.AccelDir = *accelDirFlag
		case "remote-jobs":
			cfg.RemoteNumJobs = *remoteJobsFlag
		case "default-pool":
			cfg.DefaultPool = *defaultPoolFlag
		case "debug-comments":
			cfg.EnableDebug = *debugFlag
		case "detect-depfiles":
			cfg.DetectDepfiles = *detectDepfilesFlag
		case "native-phony-output":
			cfg.UsePhonyOutput = *phonyOutputFlag
		case "empty":
			cfg.GenerateEmpty = *emptyFlag
		case "android-heuristics":
			cfg.AndroidHeuristics = *androidFlag
		case "no-prelude":
			cfg.NoPrelude = *noPreludeFlag
		case "log-format":
			cfg.LogFormat = *logFormatFlag
		case "log-level":
			cfg.LogLevel = *logLevelFlag
		}
	})
	if len(targets) > 0 {
		cfg.Targets = targets
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return &App{Config: cfg, Manifest: manifest}, false, nil
}
