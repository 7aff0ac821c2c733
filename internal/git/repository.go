// Package git wraps the git command line for the read-only operations the mirror needs.
package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Repository is a local git repository, addressed by its directory.
type Repository struct {
	Dir string
}

// Open returns a Repository rooted at dir.
func Open(dir string) *Repository {
	return &Repository{Dir: dir}
}

func (r *Repository) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", r.Dir}, args...)...)
	cmd.Env = append(cmd.Environ(), "GIT_CONFIG_NOSYSTEM=1", "LC_ALL=C")
	return cmd
}

// output runs git and returns its stdout. Stderr is folded into the error.
func (r *Repository) output(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := r.command(ctx, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// ResolveCommit resolves rev to a full commit hash. It reports false if rev names no commit.
func (r *Repository) ResolveCommit(ctx context.Context, rev string) (string, bool, error) {
	out, err := r.output(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to resolve %s: %w", rev, err)
	}
	return strings.TrimSpace(out), true, nil
}

// LogPatch streams `git log -p` for the range (from, to], oldest commit first, one line at a
// time. Hunks carry the whole file as context so a rewritten message arrives complete.
// Lines are passed to fn with their trailing newline.
func (r *Repository) LogPatch(ctx context.Context, from, to string, fn func(line string) error) error {
	var stderr bytes.Buffer
	cmd := r.command(ctx, "log", "-p", "-U99999", "--reverse", "--no-color", from+".."+to, "--")
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open git log output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start git log: %w", err)
	}

	reader := bufio.NewReader(stdout)
	var fnErr error
	for fnErr == nil {
		line, err := reader.ReadString('\n')
		if line != "" {
			fnErr = fn(line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			fnErr = fmt.Errorf("failed to read git log output: %w", err)
		}
	}

	if fnErr != nil {
		// Drain so git can exit instead of blocking on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if fnErr != nil {
		return fnErr
	}
	if waitErr != nil {
		return fmt.Errorf("git log %s..%s: %w: %s", from, to, waitErr, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Pickaxe returns the most recent commit reachable from from whose diff changes the number
// of occurrences of needle. It reports false if there is none.
func (r *Repository) Pickaxe(ctx context.Context, needle, from string) (string, bool, error) {
	out, err := r.output(ctx, "log", "-1", "--format=%H", "-S"+needle, from, "--")
	if err != nil {
		return "", false, fmt.Errorf("failed to search for %q: %w", needle, err)
	}
	commit := strings.TrimSpace(out)
	return commit, commit != "", nil
}

// Show returns the patch of a single commit, including its header.
func (r *Repository) Show(ctx context.Context, commit string) (string, error) {
	out, err := r.output(ctx, "show", "--no-color", commit, "--")
	if err != nil {
		return "", fmt.Errorf("failed to show %s: %w", commit, err)
	}
	return out, nil
}

// FirstChangedPath returns the first file a commit touches, relative to the repository root.
func (r *Repository) FirstChangedPath(ctx context.Context, commit string) (string, error) {
	out, err := r.output(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", "--root", commit)
	if err != nil {
		return "", fmt.Errorf("failed to list files of %s: %w", commit, err)
	}
	for _, path := range strings.Split(out, "\n") {
		if path = strings.TrimSpace(path); path != "" {
			return path, nil
		}
	}
	return "", fmt.Errorf("commit %s changes no files", commit)
}
