package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// GitRepo is a throwaway git repository laid out like a public-inbox mirror:
// each commit replaces the single file "m" with one raw email.
type GitRepo struct {
	t   *testing.T
	Dir string
}

// NewGitRepo initializes an empty repository on branch master.
// The test is skipped when no git binary is available.
func NewGitRepo(t *testing.T) *GitRepo {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	r := &GitRepo{t: t, Dir: t.TempDir()}
	r.Git("init", "-q", "-b", "master")
	r.Git("config", "user.name", "Archive Bot")
	r.Git("config", "user.email", "archive@example.com")
	r.Git("config", "commit.gpgsign", "false")
	return r
}

// Git runs a git command in the repository and returns its trimmed stdout.
func (r *GitRepo) Git(args ...string) string {
	r.t.Helper()

	cmd := exec.Command("git", append([]string{"-C", r.Dir}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_AUTHOR_DATE=2024-01-01T00:00:00Z",
		"GIT_COMMITTER_DATE=2024-01-01T00:00:00Z",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// CommitFile writes content to name and commits it, returning the new commit hash.
func (r *GitRepo) CommitFile(name, content, message string) string {
	r.t.Helper()

	path := filepath.Join(r.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.t.Fatalf("Failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.t.Fatalf("Failed to write %s: %v", name, err)
	}
	r.Git("add", name)
	r.Git("commit", "-q", "-m", message)
	return r.Git("rev-parse", "HEAD")
}

// CommitMail stores raw as the next archived message.
func (r *GitRepo) CommitMail(raw string) string {
	r.t.Helper()
	return r.CommitFile("m", raw, "archive message")
}
