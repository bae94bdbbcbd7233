package mirror

import (
	"context"
	"io/fs"
	"log/slog"
	"os/exec"

	"github.com/cockroachdb/errors"
	"github.com/utilitywarehouse/git-mirror-push/internal/utils"
)

var gitExecutablePath string

func init() {
	gitExecutablePath = exec.Command("git").String()
}

// Git is the set of git operations required to update a mirror.
// Implementations must only report failure through the returned error,
// the caller never inspects command output.
type Git interface {
	// Clone clones url into dir, dir is relative to cwd
	Clone(ctx context.Context, cwd, url, dir string) error
	// AddRemote registers url as remote name of the repository at repoDir
	AddRemote(ctx context.Context, repoDir, name, url string) error
	// Fetch fetches refs of the given remote into repository at repoDir
	Fetch(ctx context.Context, repoDir, remote string) error
	// Push pushes ref to the given remote, with tags all tags are pushed as well
	Push(ctx context.Context, repoDir, remote, ref string, tags bool) error
}

// ExecGit implements Git by running git executable.
type ExecGit struct {
	cmd  string   // git executable
	envs []string // envs which will be passed to git commands
	log  *slog.Logger
}

// NewExecGit returns Git which runs given git executable. If gitExec is empty
// `git` found on PATH is used. envs are added to the current process
// environment of every git command.
func NewExecGit(gitExec string, envs []string, log *slog.Logger) *ExecGit {
	if gitExec == "" {
		gitExec = gitExecutablePath
	}
	if log == nil {
		log = slog.Default()
	}
	return &ExecGit{
		cmd:  gitExec,
		envs: envs,
		log:  log,
	}
}

// Clone runs `git clone <url> <dir>` in cwd
func (g *ExecGit) Clone(ctx context.Context, cwd, url, dir string) error {
	return g.run(ctx, cwd, "clone", url, dir)
}

// AddRemote runs `git remote add <name> <url>`
func (g *ExecGit) AddRemote(ctx context.Context, repoDir, name, url string) error {
	return g.run(ctx, repoDir, "remote", "add", name, url)
}

// Fetch runs `git fetch <remote>`
func (g *ExecGit) Fetch(ctx context.Context, repoDir, remote string) error {
	return g.run(ctx, repoDir, "fetch", remote)
}

// Push runs `git push <remote> <ref> [--tags]`
func (g *ExecGit) Push(ctx context.Context, repoDir, remote, ref string, tags bool) error {
	args := []string{"push", remote, ref}
	if tags {
		args = append(args, "--tags")
	}
	return g.run(ctx, repoDir, args...)
}

func (g *ExecGit) run(ctx context.Context, cwd string, args ...string) error {
	_, err := utils.RunCommand(ctx, g.log, g.envs, cwd, g.cmd, args...)
	if err == nil {
		return nil
	}

	// exec.Error is returned when executable is not found on PATH,
	// PathError when executable or cwd does not exist
	var execErr *exec.Error
	var pathErr *fs.PathError
	if errors.As(err, &execErr) || errors.As(err, &pathErr) {
		return errors.Mark(err, ErrLaunch)
	}
	return errors.Mark(err, ErrCommandFailed)
}
