package mirror

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/utilitywarehouse/git-mirror-push/giturl"
)

const (
	defaultDirMode fs.FileMode = os.FileMode(0755) // 'rwxr-xr-x'

	// WorkspacePrefix is the name prefix of every scratch workspace dir
	WorkspacePrefix = "mirror-"

	// name of the dir inside workspace where source is cloned
	cloneDirName = "src"
	// name of the remote pointing to destination, must differ from `origin`
	// which is created by clone
	targetRemoteName = "target"
	// reference pushed to the destination
	pushRef = "HEAD"
)

// DefaultScratchRoot returns default path of the dir where scratch
// workspaces are created
func DefaultScratchRoot() string {
	return filepath.Join(os.TempDir(), "git-mirror-push")
}

// Updater updates a single mirror. Every update uses its own scratch workspace
// which is removed before Update returns.
type Updater struct {
	git         Git
	scratchRoot string // absolute path of the dir where workspaces are created
	log         *slog.Logger
}

// NewUpdater creates Updater using given git implementation.
// if scratchRoot is empty DefaultScratchRoot is used.
func NewUpdater(git Git, scratchRoot string, log *slog.Logger) *Updater {
	if scratchRoot == "" {
		scratchRoot = DefaultScratchRoot()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Updater{
		git:         git,
		scratchRoot: scratchRoot,
		log:         log,
	}
}

// Update pushes current HEAD and all tags of spec.From to spec.To
//  1. clone source into new workspace
//  2. add destination as `target` remote
//  3. fetch `target` so push knows destination's state
//  4. push HEAD and tags to `target`
//
// any failure skips remaining steps and is returned as *StepError.
func (u *Updater) Update(ctx context.Context, spec Spec) (err error) {
	label := mirrorLabel(spec)
	log := u.log.With("mirror", label)

	defer updateLatency(label, time.Now())
	defer func() { recordMirrorUpdate(label, err) }()

	ws, err := u.createWorkspace()
	if err != nil {
		return errors.Wrap(err, "unable to create scratch workspace")
	}
	defer func() {
		if rmErr := os.RemoveAll(ws); rmErr != nil {
			log.Error("unable to remove scratch workspace", "path", ws, "err", rmErr)
			if err == nil {
				err = errors.Wrapf(rmErr, "unable to remove scratch workspace %s", ws)
			}
		}
	}()
	log.Log(ctx, -8, "created scratch workspace", "path", ws)

	repoDir := filepath.Join(ws, cloneDirName)

	steps := []struct {
		step  Step
		state string // state reached once step succeeds
		run   func() error
	}{
		{StepClone, "cloned", func() error {
			return u.git.Clone(ctx, ws, spec.From, cloneDirName)
		}},
		{StepAddRemote, "remote-added", func() error {
			return u.git.AddRemote(ctx, repoDir, targetRemoteName, spec.To)
		}},
		{StepFetch, "fetched", func() error {
			return u.git.Fetch(ctx, repoDir, targetRemoteName)
		}},
		{StepPush, "pushed", func() error {
			return u.git.Push(ctx, repoDir, targetRemoteName, pushRef, true)
		}},
	}

	start := time.Now()
	for _, s := range steps {
		if err := s.run(); err != nil {
			log.Debug("mirror update state", "state", "failed", "step", s.step)
			return &StepError{Step: s.step, Err: err}
		}
		log.Debug("mirror update state", "state", s.state)
	}

	log.Info("mirror updated", "from", spec.From, "to", spec.To, "time", time.Since(start))
	return nil
}

// createWorkspace creates new uniquely named dir inside scratch root
func (u *Updater) createWorkspace() (string, error) {
	if err := os.MkdirAll(u.scratchRoot, defaultDirMode); err != nil {
		return "", err
	}
	return os.MkdirTemp(u.scratchRoot, WorkspacePrefix+"*")
}

// mirrorLabel returns short name of the mirror to be used in logs and metrics
func mirrorLabel(spec Spec) string {
	return giturl.Name(spec.From) + "->" + giturl.Name(spec.To)
}
