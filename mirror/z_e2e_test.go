package mirror

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

const (
	testUpstreamRepo    = "upstream"
	testDestinationRepo = "destination.git"
	testScratch         = "scratch"

	testMainBranch = "e2e-main"
	testGitUser    = "git-mirror-push-e2e"
)

var (
	testLog  = slog.Default()
	txtCtx   = context.TODO()
	testENVs []string
)

func TestMain(m *testing.M) {
	t := &testing.T{}

	testTmpDir := mustTmpDir(t)

	testENVs = []string{
		fmt.Sprintf(
			"GIT_CONFIG_GLOBAL=%s/gitconfig", testTmpDir,
		),
		`GIT_CONFIG_SYSTEM=/dev/null`,
		// make sure git never waits for credentials
		`GIT_TERMINAL_PROMPT=0`,
	}

	mustExec(t, "", "git", "config", "--global", "user.name", testGitUser)
	mustExec(t, "", "git", "config", "--global", "user.email", testGitUser+"@example.com")

	code := m.Run()

	// clean up
	os.RemoveAll(testTmpDir)

	os.Exit(code)
}

func Test_update_new_destination(t *testing.T) {
	testTmpDir := mustTmpDir(t)
	defer os.RemoveAll(testTmpDir)

	upstream := filepath.Join(testTmpDir, testUpstreamRepo)
	destination := filepath.Join(testTmpDir, testDestinationRepo)
	scratch := filepath.Join(testTmpDir, testScratch)

	t.Log("TEST-1: init upstream with tag and empty destination")
	hash := mustInitRepo(t, upstream, "file", t.Name())
	mustExec(t, upstream, "git", "tag", "v1.0.0")
	mustInitBareRepo(t, destination)

	u := newTestUpdater(scratch)
	if err := u.Update(txtCtx, Spec{From: upstream, To: destination}); err != nil {
		t.Fatalf("unable to update mirror error: %v", err)
	}

	assertRef(t, destination, "refs/heads/"+testMainBranch, hash)
	assertRef(t, destination, "refs/tags/v1.0.0", hash)
	assertEmptyDir(t, scratch)
}

func Test_update_idempotent_and_forward(t *testing.T) {
	testTmpDir := mustTmpDir(t)
	defer os.RemoveAll(testTmpDir)

	upstream := filepath.Join(testTmpDir, testUpstreamRepo)
	destination := filepath.Join(testTmpDir, testDestinationRepo)
	scratch := filepath.Join(testTmpDir, testScratch)
	spec := Spec{From: upstream, To: destination}

	hash1 := mustInitRepo(t, upstream, "file", t.Name()+"-1")
	mustInitBareRepo(t, destination)

	u := newTestUpdater(scratch)

	t.Log("TEST-1: update twice with unchanged upstream")
	for i := range 2 {
		if err := u.Update(txtCtx, spec); err != nil {
			t.Fatalf("unable to update mirror (run %d) error: %v", i, err)
		}
		assertRef(t, destination, "refs/heads/"+testMainBranch, hash1)
	}

	t.Log("TEST-2: forward upstream and add new tag")
	hash2 := mustCommit(t, upstream, "file", t.Name()+"-2")
	mustExec(t, upstream, "git", "tag", "v2")

	if err := u.Update(txtCtx, spec); err != nil {
		t.Fatalf("unable to update mirror error: %v", err)
	}
	assertRef(t, destination, "refs/heads/"+testMainBranch, hash2)
	assertRef(t, destination, "refs/tags/v2", hash2)
	assertEmptyDir(t, scratch)
}

func Test_update_non_fast_forward(t *testing.T) {
	testTmpDir := mustTmpDir(t)
	defer os.RemoveAll(testTmpDir)

	upstream := filepath.Join(testTmpDir, testUpstreamRepo)
	destination := filepath.Join(testTmpDir, testDestinationRepo)
	scratch := filepath.Join(testTmpDir, testScratch)
	spec := Spec{From: upstream, To: destination}

	hash := mustInitRepo(t, upstream, "file", t.Name())
	mustInitBareRepo(t, destination)

	u := newTestUpdater(scratch)
	if err := u.Update(txtCtx, spec); err != nil {
		t.Fatalf("unable to update mirror error: %v", err)
	}

	t.Log("TEST-1: rewrite upstream history, push must be rejected")
	mustExec(t, upstream, "git", "commit", "--amend", "-m", "rewritten")

	err := u.Update(txtCtx, spec)
	if step, ok := FailedStep(err); !ok || step != StepPush {
		t.Fatalf("expected push step failure got: %v", err)
	}
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("expected ErrCommandFailed got: %v", err)
	}

	// destination must be untouched
	assertRef(t, destination, "refs/heads/"+testMainBranch, hash)
	assertEmptyDir(t, scratch)
}

func Test_update_failures(t *testing.T) {
	testTmpDir := mustTmpDir(t)
	defer os.RemoveAll(testTmpDir)

	upstream := filepath.Join(testTmpDir, testUpstreamRepo)
	destination := filepath.Join(testTmpDir, testDestinationRepo)
	missing := filepath.Join(testTmpDir, "does-not-exist.git")

	mustInitRepo(t, upstream, "file", t.Name())
	mustInitBareRepo(t, destination)

	tests := []struct {
		name     string
		gitExec  string
		spec     Spec
		wantStep Step
		wantErr  error
	}{
		{"unreachable-source", "", Spec{From: missing, To: destination}, StepClone, ErrCommandFailed},
		{"unreachable-destination", "", Spec{From: upstream, To: missing}, StepFetch, ErrCommandFailed},
		{"missing-git", filepath.Join(testTmpDir, "no-git"), Spec{From: upstream, To: destination}, StepClone, ErrLaunch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scratch := filepath.Join(testTmpDir, testScratch, tt.name)
			u := NewUpdater(NewExecGit(tt.gitExec, testENVs, testLog), scratch, testLog)

			err := u.Update(txtCtx, tt.spec)
			if step, ok := FailedStep(err); !ok || step != tt.wantStep {
				t.Fatalf("expected %s step failure got: %v", tt.wantStep, err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v got: %v", tt.wantErr, err)
			}
			assertEmptyDir(t, scratch)
		})
	}
}

func Test_runner_fail_fast(t *testing.T) {
	testTmpDir := mustTmpDir(t)
	defer os.RemoveAll(testTmpDir)

	upstream := filepath.Join(testTmpDir, testUpstreamRepo)
	destination := filepath.Join(testTmpDir, testDestinationRepo)
	scratch := filepath.Join(testTmpDir, testScratch)

	mustInitRepo(t, upstream, "file", t.Name())
	mustInitBareRepo(t, destination)

	specs := []Spec{
		{From: filepath.Join(testTmpDir, "does-not-exist"), To: destination},
		{From: upstream, To: destination},
	}

	out := &bytes.Buffer{}
	r := NewRunner(newTestUpdater(scratch), out, false, 0, testLog)
	if err := r.Run(txtCtx, specs); err == nil {
		t.Fatal("expected error")
	}

	if out.Len() != 0 {
		t.Errorf("expected no output got %q", out.String())
	}
	// 2nd mirror was never attempted
	if refs := mustExec(t, destination, "git", "for-each-ref"); refs != "" {
		t.Errorf("destination should not have any refs but got %q", refs)
	}
	assertEmptyDir(t, scratch)
}

func Test_runner_success(t *testing.T) {
	testTmpDir := mustTmpDir(t)
	defer os.RemoveAll(testTmpDir)

	upstream := filepath.Join(testTmpDir, testUpstreamRepo)
	destination := filepath.Join(testTmpDir, testDestinationRepo)
	scratch := filepath.Join(testTmpDir, testScratch)

	hash := mustInitRepo(t, upstream, "file", t.Name())
	mustInitBareRepo(t, destination)

	out := &bytes.Buffer{}
	r := NewRunner(newTestUpdater(scratch), out, false, 0, testLog)
	if err := r.Run(txtCtx, []Spec{{From: upstream, To: destination}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := fmt.Sprintf("Updated %s -> %s\n", upstream, destination)
	if out.String() != want {
		t.Errorf("Run() output = %q, want %q", out.String(), want)
	}
	assertRef(t, destination, "refs/heads/"+testMainBranch, hash)
}

func newTestUpdater(scratch string) *Updater {
	return NewUpdater(NewExecGit("", testENVs, testLog), scratch, testLog)
}

func mustInitRepo(t *testing.T, repo, file, content string) string {
	t.Helper()

	mustReCreate(t, repo)

	mustExec(t, repo, "git", "init", "-q", "-b", testMainBranch)

	return mustCommit(t, repo, file, content)
}

func mustInitBareRepo(t *testing.T, repo string) {
	t.Helper()

	mustReCreate(t, repo)

	mustExec(t, repo, "git", "init", "-q", "--bare")
}

// mustReCreate removes dir and any children it contains and creates new dir
// on the same path
func mustReCreate(t *testing.T, path string) {
	t.Helper()

	if err := os.RemoveAll(path); err != nil {
		t.Fatalf("can't delete dir err: %v", err)
	}
	if err := os.MkdirAll(path, defaultDirMode); err != nil {
		t.Fatalf("unable to create dir err: %v", err)
	}
}

func mustCommit(t *testing.T, repo, file, content string) string {
	t.Helper()

	if err := os.WriteFile(filepath.Join(repo, file), []byte(content), defaultDirMode); err != nil {
		t.Fatalf("unable to write to file err: %v", err)
	}
	mustExec(t, repo, "git", "add", file)
	msg := content
	if len(content) > 50 {
		msg = content[:50]
	}
	mustExec(t, repo, "git", "commit", "-m", msg)
	return mustExec(t, repo, "git", "rev-list", "-n1", "HEAD")
}

func mustTmpDir(t *testing.T) string {
	t.Helper()

	testTmpDir, err := os.MkdirTemp("", "git-mirror-push-e2e-*")
	if err != nil {
		t.Fatalf("unable to make dir: %v", err)
	}
	return testTmpDir
}

func assertRef(t *testing.T, repo, ref, wantSHA string) {
	t.Helper()

	// ^{commit} peels annotated tags
	if got := mustExec(t, repo, "git", "rev-parse", ref+"^{commit}"); got != wantSHA {
		t.Errorf("ref '%s' SHA mismatch got:%s want:%s", ref, got, wantSHA)
	}
}

func mustExec(t *testing.T, cwd string, name string, arg ...string) string {
	t.Helper()

	cmd := exec.Command(name, arg...)
	if cwd != "" {
		cmd.Dir = cwd
	}

	cmd.Env = append(os.Environ(), testENVs...)

	stdoutStderr, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("err:%v run(%s): { stdoutStderr %q }", err, cmd.String(), stdoutStderr)
	}
	return strings.TrimSpace(string(stdoutStderr))
}
