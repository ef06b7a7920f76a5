// Package cmd implements the gitdir command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/zjrosen/gitdir/internal/config"
	"github.com/zjrosen/gitdir/internal/log"
	"github.com/zjrosen/gitdir/internal/telemetry"
	"github.com/zjrosen/gitdir/pkg/gitdir"
)

// Version information injected at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ErrNotFound is returned when no metadata directory was found.
// The CLI reports it through the exit status only.
var ErrNotFound = errors.New("no git directory found")

const (
	logBufferSize = 500
	recentLogs    = 50
)

// app holds the state of one CLI invocation.
type app struct {
	fs         afero.Fs
	configFile string

	cfg      *config.Config
	resolver *gitdir.Resolver
	cleanups []func()
}

// Execute runs the CLI against the process's standard streams and host
// filesystem. The returned error has already been reported on stderr.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{fs: afero.NewOsFs()}
	return a.run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return 1
	default:
		return 2
	}
}

func (a *app) run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.ErrorErr(log.CatCLI, "command failed", err)
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if a.cfg != nil && a.cfg.Log.Debug {
			for _, line := range log.GetRecentLogs(recentLogs) {
				_, _ = fmt.Fprint(stderr, line)
			}
		}
	}

	a.close()
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gitdir [dir] [roam]",
		Short: "Print the git metadata directory of a working tree",
		Long: `Print the git metadata directory of a working tree.

The directory defaults to the current directory. A .git directory is printed
as is; a .git file ("gitdir: <path>") is followed to the directory it names.
With --roam the nearest ancestor holding a .git entry is used. With --common a
linked worktree resolves to the repository's common directory.

The optional second argument is a boolean that sets --roam, for scripts
written against the older calling form.

Exits with status 1 when nothing is found.

Examples:
  gitdir                      # .git of the current directory
  gitdir -r src/pkg           # search upward from src/pkg
  gitdir . true               # same as gitdir -r .
  gitdir -rc --format json    # common directory as JSON`,
		Args:              cobra.MaximumNArgs(2),
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runResolve,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/gitdir/config.yaml)")
	flags.BoolP("roam", "r", false, "search ancestor directories")
	flags.BoolP("common", "c", false, "resolve linked worktrees to the common directory")
	flags.StringP("format", "f", "text", "output format: text, json, yaml or table")
	flags.Bool("debug", false, "log at DEBUG level (to a temp file unless --log-file is set)")
	flags.String("log-file", "", `write logs to this file ("-" for stderr)`)
	flags.String("log-level", "INFO", "minimum log level: DEBUG, INFO, WARN or ERROR")
	flags.Bool("trace", false, "record OpenTelemetry spans for each resolution")

	root.AddCommand(a.batchCmd(), a.watchCmd(), versionCmd())
	return root
}

// setup loads configuration and starts logging and tracing. It runs before
// every command.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(cmd.ErrOrStderr()); err != nil {
		return err
	}
	if err := a.initTelemetry(cmd.Context(), cmd.ErrOrStderr()); err != nil {
		return err
	}

	// Created after telemetry so the resolver picks up the tracer provider.
	a.resolver = gitdir.New(gitdir.WithFs(a.fs))
	log.Debug(log.CatCLI, "running", "command", cmd.Name(), "format", cfg.Format)
	return nil
}

func (a *app) initLogging(stderr io.Writer) error {
	switch a.cfg.Log.File {
	case "":
		return nil
	case "-":
		a.cleanups = append(a.cleanups, log.InitWithWriter(stderr, logBufferSize))
	default:
		cleanup, err := log.Init(a.cfg.Log.File, logBufferSize)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		a.cleanups = append(a.cleanups, cleanup)
	}

	level, _ := log.ParseLevel(a.cfg.Log.Level)
	log.SetMinLevel(level)
	return nil
}

func (a *app) initTelemetry(ctx context.Context, stderr io.Writer) error {
	tc := a.cfg.Telemetry
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        tc.Enabled,
		Exporter:       tc.Exporter,
		Endpoint:       tc.Endpoint,
		Insecure:       tc.Insecure,
		ServiceName:    "gitdir",
		ServiceVersion: version,
	}, stderr)
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}

	a.cleanups = append(a.cleanups, func() {
		if err := shutdown(context.Background()); err != nil {
			log.ErrorErr(log.CatTrace, "telemetry shutdown failed", err)
		}
	})
	return nil
}

// close releases what setup acquired, most recent first.
func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

// arg builds the resolution argument from configuration. legacy is the
// optional positional roam boolean.
func (a *app) arg(legacy []string) (gitdir.Arg, error) {
	cfg := gitdir.Config{Roam: a.cfg.Roam, Common: a.cfg.Common}
	if len(legacy) == 0 {
		return cfg, nil
	}

	roam, err := strconv.ParseBool(legacy[0])
	if err != nil {
		return nil, fmt.Errorf("invalid roam argument %q: %w", legacy[0], err)
	}
	if !cfg.Common {
		return gitdir.Roam(roam), nil
	}
	cfg.Roam = roam
	return cfg, nil
}

func (a *app) runResolve(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	var legacy []string
	if len(args) > 1 {
		legacy = args[1:]
	}
	arg, err := a.arg(legacy)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	path, err := a.resolver.Resolve(ctx, dir, arg).Wait(ctx)
	if err != nil {
		return err
	}
	log.Debug(log.CatCLI, "resolved", "dir", dir, "path", path)

	res := result{Path: path, Found: path != ""}
	if res.Found || a.cfg.Format != formatText {
		p := newPrinter(cmd.OutOrStdout(), a.cfg.Format)
		if err := p.print(res); err != nil {
			return err
		}
		if err := p.close(); err != nil {
			return err
		}
	}

	if !res.Found {
		return ErrNotFound
	}
	return nil
}
