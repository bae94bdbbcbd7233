package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
)

// Runner updates list of mirrors one by one in the given order.
type Runner struct {
	updater         *Updater
	out             io.Writer     // receives one `Updated <from> -> <to>` line per updated mirror
	continueOnError bool          // attempt all mirrors even if one fails
	timeout         time.Duration // max time allowed for single mirror update, 0 means no limit
	log             *slog.Logger
}

// NewRunner creates Runner which uses given updater for each mirror.
func NewRunner(updater *Updater, out io.Writer, continueOnError bool, timeout time.Duration, log *slog.Logger) *Runner {
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		updater:         updater,
		out:             out,
		continueOnError: continueOnError,
		timeout:         timeout,
		log:             log,
	}
}

// Run updates given mirrors sequentially.
// By default it stops at the first failing mirror and returns its error,
// mirrors after it are not attempted. With continueOnError every mirror is
// attempted and all failures are returned together.
func (r *Runner) Run(ctx context.Context, specs []Spec) error {
	var errs []error

	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, errors.Wrapf(err, "mirror run interrupted before %s", spec))
			break
		}

		if err := r.update(ctx, spec); err != nil {
			err = errors.Wrapf(err, "unable to update mirror %s", spec)
			if !r.continueOnError {
				return err
			}
			r.log.Error("mirror update failed, continuing with next mirror", "index", i, "from", spec.From, "to", spec.To, "err", err.Error())
			errs = append(errs, err)
			continue
		}

		fmt.Fprintf(r.out, "Updated %s -> %s\n", spec.From, spec.To)
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Wrapf(errors.Join(errs...), "%d of %d mirrors failed", len(errs), len(specs))
}

func (r *Runner) update(ctx context.Context, spec Spec) error {
	if r.timeout <= 0 {
		return r.updater.Update(ctx, spec)
	}
	// to stop git running indefinitely we will use time-out
	uCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.updater.Update(uCtx, spec)
}
