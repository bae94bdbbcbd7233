// Package mirror pushes the current state of source repositories to
// destination repositories by driving the git executable.
//
// For every configured pair the source is cloned into a private scratch
// workspace, the destination is added as remote `target`, fetched and finally
// `HEAD` and all tags are pushed to it. The push is never forced so the
// destination must accept the new history as a fast-forward. The workspace is
// removed once the update finishes, whatever the outcome.
//
// Pairs are processed strictly one after another in configuration order.
// By default the first failure aborts the whole run, see [Config.ContinueOnError].
//
// # Logging:
//
// package takes slog reference for logging and prints logs up to 'trace' level
//
// Example:
//
//	loggerLevel  = new(slog.LevelVar)
//	levelStrings = map[string]slog.Level{
//		"trace": slog.Level(-8),
//		"debug": slog.LevelDebug,
//		"info":  slog.LevelInfo,
//		"warn":  slog.LevelWarn,
//		"error": slog.LevelError,
//	}
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//		Level: loggerLevel,
//	}))
//	loggerLevel.Set(levelStrings["trace"])
//
//	updater := mirror.NewUpdater(mirror.NewExecGit("", nil, logger), "", logger)
//	runner := mirror.NewRunner(updater, os.Stdout, false, 0, logger)
//	if err := runner.Run(ctx, conf.Mirrors); err != nil {
//		panic(err)
//	}
package mirror
