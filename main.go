package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"github.com/utilitywarehouse/git-mirror-push/mirror"
)

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	// apart from filename all flags are only set via envs
	// as only `--filename <file_name>` is accepted on command line
	flags = []cli.Flag{
		&cli.StringFlag{
			Name:     "filename",
			Required: true,
			Usage:    "Path to the mirrors config file (YAML or TOML).",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Value:   "info",
			Usage:   "Log level",
		},
		&cli.DurationFlag{
			Name:    "mirror-timeout",
			Sources: cli.EnvVars("MIRROR_TIMEOUT"),
			Usage:   "Max time allowed for a single mirror update, 0 means no limit.",
		},
		&cli.StringFlag{
			Name:    "scratch-root",
			Sources: cli.EnvVars("MIRROR_SCRATCH_ROOT"),
			Value:   mirror.DefaultScratchRoot(),
			Usage:   "Dir where temporary workspaces are created.",
		},
		&cli.StringFlag{
			Name:    "git-executable",
			Sources: cli.EnvVars("GIT_EXECUTABLE"),
			Usage:   "Path to git executable, defaults to git found on PATH.",
		},
		&cli.StringFlag{
			Name:    "metrics-textfile",
			Sources: cli.EnvVars("METRICS_TEXTFILE"),
			Usage:   "If set prometheus metrics are written to this file on exit.",
		},
	}
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

// options holds everything needed for a single run
type options struct {
	filename    string
	timeout     time.Duration
	scratchRoot string
	gitExec     string
	metricsFile string
}

// validArgs returns true only for `<program> --filename <file_name>`
func validArgs(args []string) bool {
	return len(args) == 3 && args[1] == "--filename"
}

func usage(w io.Writer, program string) {
	fmt.Fprintf(w, "Usage: %s --filename <file_name>\n", program)
}

// run loads config and updates all mirrors, updated mirrors are reported to out
func run(ctx context.Context, opts options, out io.Writer) (err error) {
	conf, err := parseConfigFile(opts.filename)
	if err != nil {
		return err
	}

	if opts.metricsFile != "" {
		registry := prometheus.NewRegistry()
		mirror.EnableMetrics("", registry)
		defer func() {
			if wErr := prometheus.WriteToTextfile(opts.metricsFile, registry); wErr != nil {
				logger.Error("unable to write metrics textfile", "path", opts.metricsFile, "err", wErr)
				if err == nil {
					err = errors.Wrap(wErr, "unable to write metrics textfile")
				}
			}
		}()
	}

	cleanupOrphanedWorkspaces(opts.scratchRoot, orphanedWorkspaceAge)

	git := mirror.NewExecGit(opts.gitExec, nil, logger.With("logger", "git"))
	updater := mirror.NewUpdater(git, opts.scratchRoot, logger.With("logger", "updater"))
	runner := mirror.NewRunner(updater, out, conf.ContinueOnError, opts.timeout, logger.With("logger", "runner"))

	logger.Debug("config loaded", "path", opts.filename, "mirrors", len(conf.Mirrors), "continue_on_error", conf.ContinueOnError)

	return runner.Run(ctx, conf.Mirrors)
}

// logError logs error message only, full error chain with stack traces is
// logged at debug level
func logError(log *slog.Logger, msg string, err error) {
	log.Error(msg, "err", err.Error())
	log.Debug("error details", "err", fmt.Sprintf("%+v", err))
}

func main() {
	if !validArgs(os.Args) {
		usage(os.Stdout, os.Args[0])
		os.Exit(1)
	}

	cmd := &cli.Command{
		Name:     "git-mirror-push",
		Usage:    "git-mirror-push pushes source repositories to their mirrors.",
		Flags:    flags,
		HideHelp: true,
		Action: func(ctx context.Context, c *cli.Command) error {
			// set log level according to argument
			if v, ok := levelStrings[strings.ToLower(c.String("log-level"))]; ok {
				loggerLevel.Set(v)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, options{
				filename:    c.String("filename"),
				timeout:     c.Duration("mirror-timeout"),
				scratchRoot: c.String("scratch-root"),
				gitExec:     c.String("git-executable"),
				metricsFile: c.String("metrics-textfile"),
			}, os.Stdout)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logError(logger, "failed to mirror repositories", err)
		os.Exit(1)
	}
}
