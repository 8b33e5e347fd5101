package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"respbg/internal/config"
	"respbg/internal/state"
)

const appName = "respbg"

// initializeAppContext prepares application context before command execution but
// after command line has been parsed
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error

	env := state.EnvFromContext(ctx)

	configFile := cmd.String("config")
	if env.Cfg, err = config.Load(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		env.Cfg.Logging.Level = "debug"
	}
	if env.Log, err = env.Cfg.Logging.Prepare(); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("runtime", runtime.Version()))
	if len(configFile) == 0 {
		env.Log.Debug("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	env.Close()
	env.RestoreStdLog()
	return nil
}

// Ignore urfave/cli default error handling, subcommands return regular
// errors.
var errWasHandled bool

// this is called before appContext is destroyed, so we have a chance to
// properly log any error from subcommand
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := state.EnvFromContext(ctx)
	if env.Log != nil {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	app := newApp()

	var err error
	// NOTE: os.Exit is called at the end of main to set exit code, make sure
	// there are no other deffered functions after that
	defer func() {
		stop()
		if err != nil {
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:            appName,
		Usage:           "picks responsive background images for HTML pages",
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML or TOML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log at debug level"},
		},
		Commands: []*cli.Command{
			{
				Name:         "serve",
				Usage:        "Runs the HTTP service",
				OnUsageError: usageErrorHandler,
				Action:       runServe,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen `ADDRESS`, e.g. :81 or 0.0.0.0:8081 (overrides configuration)"},
				},
			},
			{
				Name:         "apply",
				Usage:        "Picks background images for a page and writes the result",
				OnUsageError: usageErrorHandler,
				Action:       runApply,
				ArgsUsage:    "SOURCE [DESTINATION]",
				Flags: []cli.Flag{
					&cli.FloatFlag{Name: "width", Aliases: []string{"w"}, Usage: "viewport `WIDTH` in CSS pixels"},
					&cli.FloatFlag{Name: "dpr", Usage: "device pixel `RATIO`"},
					&cli.StringFlag{Name: "selector", Aliases: []string{"s"}, Usage: "attribute suffix, elements are found by data-`NAME`"},
					&cli.BoolFlag{Name: "js", Usage: "load the page in the headless browser"},
					&cli.FloatSliceFlag{Name: "resize", Usage: "after the first pass resize the viewport to each `WIDTH` in turn"},
				},
				CustomHelpTemplate: fmt.Sprintf(`%s
SOURCE:
    path to an HTML file, "-" for STDIN, or an http(s) URL

DESTINATION:
    output file, if absent - STDOUT
`, cli.CommandHelpTemplate),
			},
			{
				Name:         "parse",
				Usage:        "Parses a declaration and shows the pick for a width",
				OnUsageError: usageErrorHandler,
				Action:       runParse,
				ArgsUsage:    "DECLARATION",
				Flags: []cli.Flag{
					&cli.FloatFlag{Name: "width", Aliases: []string{"w"}, Usage: "measured element `WIDTH`"},
					&cli.FloatFlag{Name: "dpr", Value: 1, Usage: "device pixel `RATIO`"},
				},
			},
			{
				Name:  "dumpconfig",
				Usage: "Dumps either default or actual configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default configuration"},
				},
				OnUsageError: usageErrorHandler,
				Action:       outputConfiguration,
				ArgsUsage:    "DESTINATION",
			},
		},
	}
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	fname := cmd.Args().Get(0)

	var (
		err   error
		data  []byte
		state string
	)

	out := os.Stdout
	if len(fname) > 0 {
		out, err = os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
		}
		defer out.Close()
	}

	if cmd.Bool("default") {
		state = "default"
		data, err = config.Dump(config.Default())
	} else {
		state = "actual"
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	if len(fname) == 0 {
		fname = "STDOUT"
	}
	env.Log.Info("Outputing configuration", zap.String("state", state), zap.String("file", fname))

	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
