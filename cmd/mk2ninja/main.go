package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/vk/mk2ninja/internal/cli"
	"github.com/vk/mk2ninja/internal/ctxlog"
	"github.com/vk/mk2ninja/internal/gen"
	"github.com/vk/mk2ninja/internal/manifest"
	"github.com/vk/mk2ninja/internal/vars"
)

// main is the entrypoint for the mk2ninja generator.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(ctxlog.NewConsoleHandler(os.Stderr, slog.LevelInfo)))

	if err := run(os.Stderr, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) error {
	app, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger := ctxlog.NewLogger(app.Config.LogLevel, app.Config.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	ev := vars.NewEvaluator(logger)
	roots, err := manifest.Load(app.Manifest, app.Config, ev)
	if err != nil {
		return err
	}

	g, err := gen.New(app.Config, ev, gen.Inputs{Makefiles: []string{app.Manifest}})
	if err != nil {
		return err
	}
	return g.Generate(ctx, roots, strings.Join(args, " "))
}
