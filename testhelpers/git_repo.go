// Package testhelpers provides fixtures for waterflow tests: a real git
// repository builder, an in-memory repository fake with an explicit commit
// graph, and a fake git-host client.
package testhelpers

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitRepo drives a real git repository on disk for tests that exercise the
// git layer itself.
type GitRepo struct {
	Dir string
}

// NewGitRepo initializes a new git repository in the directory.
func NewGitRepo(dir string) (*GitRepo, error) {
	cmd := exec.Command("git", "-c", "init.defaultBranch=main", "init", dir, "-b", "main")
	cmd.Env = append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to init repo: %w", err)
	}
	repo := &GitRepo{Dir: dir}
	if err := repo.Run("config", "user.name", "Test User"); err != nil {
		return nil, err
	}
	if err := repo.Run("config", "user.email", "test@example.com"); err != nil {
		return nil, err
	}
	return repo, nil
}

// Run executes a git command in the repository directory.
func (r *GitRepo) Run(args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null")
	return cmd.Run()
}

// Output executes a git command and returns its trimmed output.
func (r *GitRepo) Output(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git command failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Commit writes a file and commits it on the current branch, returning the
// new commit sha.
func (r *GitRepo) Commit(fileName, content, message string) (string, error) {
	path := filepath.Join(r.Dir, fileName)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", err
	}
	if err := r.Run("add", path); err != nil {
		return "", err
	}
	if err := r.Run("commit", "-m", message); err != nil {
		return "", err
	}
	return r.Output("rev-parse", "HEAD")
}

// CreateBranch creates and checks out a branch from the current HEAD.
func (r *GitRepo) CreateBranch(name string) error {
	return r.Run("checkout", "-b", name)
}

// Checkout switches to an existing branch.
func (r *GitRepo) Checkout(name string) error {
	return r.Run("checkout", name)
}

// Tag creates a lightweight tag at the current HEAD.
func (r *GitRepo) Tag(name string) error {
	return r.Run("tag", name)
}
