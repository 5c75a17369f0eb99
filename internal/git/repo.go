package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	wferrors "waterflow.dev/waterflow/internal/errors"
)

// Commit is one entry of a commit range: its sha, parent shas and author.
type Commit struct {
	SHA     string
	Parents []string
	Author  string
}

// IsMerge reports whether the commit has more than one parent
func (c Commit) IsMerge() bool {
	return len(c.Parents) > 1
}

// Repo is the operation set the core components consume from the git layer.
// The real implementation shells out for mutations and reads through go-git;
// tests substitute fakes.
type Repo interface {
	// Clone discards any existing working copy and clones fresh
	Clone(ctx context.Context) error
	// Fetch updates remote tracking refs, pruning removed branches
	Fetch(ctx context.Context) error
	// Checkout checks out a branch, creating a local tracking branch if needed
	Checkout(ctx context.Context, branch string) error
	// CreateBranch creates and checks out a new branch from a starting point
	CreateBranch(ctx context.Context, name, from string) error
	// Merge merges one or two sources into dst (two sources is an octopus
	// merge); returns a MergeFailedError on conflict, leaving dst untouched
	Merge(ctx context.Context, dst string, srcs ...string) error
	// ResetHard discards the branch's local state back to the given ref
	ResetHard(ctx context.Context, branch, ref string) error
	// Push pushes the named branches atomically; ErrPushRejected when the
	// remote advanced concurrently
	Push(ctx context.Context, force bool, branches ...string) error
	// Remove deletes a branch, locally and (unless localOnly) on the remote
	Remove(ctx context.Context, branch string, localOnly bool) error

	// LocalBranches lists local branch names
	LocalBranches() ([]string, error)
	// RemoteBranches lists branch names present on origin
	RemoteBranches() ([]string, error)
	// Tags lists tag names
	Tags() ([]string, error)
	// RemoteBranchExists reports whether origin has the branch
	RemoteBranchExists(branch string) (bool, error)
	// Tip resolves a ref to its commit sha
	Tip(ref string) (string, error)
	// IsAncestor reports whether ancestor is an ancestor of (or equal to) descendant
	IsAncestor(ancestor, descendant string) (bool, error)
	// IncludesCommit reports whether the branch contains the commit
	IncludesCommit(branch, sha string) (bool, error)
	// BranchesContaining lists local branches that contain the commit
	BranchesContaining(sha string) ([]string, error)
	// CommitDiff returns the commits on branch that are not on other,
	// optionally excluding merge commits
	CommitDiff(branch, other string, includeMerges bool) ([]Commit, error)
	// CommitCount returns the number of commits on to that are not on from
	CommitCount(from, to string) (int, error)
	// TreesEqual reports whether two refs point at identical tree content
	TreesEqual(ctx context.Context, a, b string) (bool, error)
}

// LocalRepo implements Repo against a working clone on disk.
type LocalRepo struct {
	cloneURL string
	workDir  string
	runner   *CommandRunner
	repo     *gogit.Repository
}

// NewLocalRepo creates a LocalRepo for the given clone URL and working directory.
// Call Clone before using it.
func NewLocalRepo(cloneURL, workDir string) *LocalRepo {
	return &LocalRepo{
		cloneURL: cloneURL,
		workDir:  workDir,
		runner:   NewCommandRunner(workDir),
	}
}

// Open opens an existing repository at workDir without cloning. Used by tests
// and by jobs reusing a freshly reset clone.
func Open(workDir string) (*LocalRepo, error) {
	r := &LocalRepo{
		workDir: workDir,
		runner:  NewCommandRunner(workDir),
	}
	if err := r.reopen(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *LocalRepo) reopen() error {
	repo, err := gogit.PlainOpenWithOptions(r.workDir, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open repository at %s: %w", r.workDir, err)
	}
	r.repo = repo
	return nil
}

// WorkDir returns the path of the working clone
func (r *LocalRepo) WorkDir() string {
	return r.workDir
}

func (r *LocalRepo) gogitRepo() (*gogit.Repository, error) {
	if r.repo == nil {
		if err := r.reopen(); err != nil {
			return nil, err
		}
	}
	return r.repo, nil
}

// Clone discards any existing working copy and clones fresh. The working
// clone is exclusively owned by the running job, so a fresh clone guarantees
// no job observes another job's half-finished local state.
func (r *LocalRepo) Clone(ctx context.Context) error {
	parent := NewCommandRunner("")
	if _, err := parent.Run(ctx, "clone", r.cloneURL, r.workDir); err != nil {
		return err
	}
	r.repo = nil
	return r.reopen()
}

// Fetch updates remote tracking refs, pruning removed branches
func (r *LocalRepo) Fetch(ctx context.Context) error {
	_, err := r.runner.Run(ctx, "fetch", "--prune", "origin")
	return err
}

// Checkout checks out a branch, creating a local tracking branch if needed
func (r *LocalRepo) Checkout(ctx context.Context, branch string) error {
	if _, err := r.runner.Run(ctx, "checkout", branch); err != nil {
		return fmt.Errorf("%w: %s", wferrors.ErrBranchNotFound, branch)
	}
	return nil
}

// CreateBranch creates and checks out a new branch from a starting point
func (r *LocalRepo) CreateBranch(ctx context.Context, name, from string) error {
	_, err := r.runner.Run(ctx, "checkout", "-b", name, from)
	return err
}

// Merge merges one or two sources into dst. Two sources request a genuine
// octopus merge (single commit, multiple parents). On conflict the merge is
// aborted, dst is left at its previous tip, and a MergeFailedError is returned.
func (r *LocalRepo) Merge(ctx context.Context, dst string, srcs ...string) error {
	if len(srcs) == 0 {
		return fmt.Errorf("merge into %s: no sources", dst)
	}
	if err := r.Checkout(ctx, dst); err != nil {
		return err
	}
	args := append([]string{"merge", "--no-edit"}, srcs...)
	if _, err := r.runner.Run(ctx, args...); err != nil {
		// Leave the worktree clean whatever the failure mode was.
		_, _ = r.runner.Run(ctx, "merge", "--abort")
		_, _ = r.runner.Run(ctx, "reset", "--hard", "HEAD")
		return wferrors.NewMergeFailedError(dst, srcs...)
	}
	return nil
}

// ResetHard discards the branch's local state back to the given ref
func (r *LocalRepo) ResetHard(ctx context.Context, branch, ref string) error {
	if err := r.Checkout(ctx, branch); err != nil {
		return err
	}
	_, err := r.runner.Run(ctx, "reset", "--hard", ref)
	return err
}

// Push pushes the named branches atomically. The push is the true
// serialization point: a rejection means the remote advanced concurrently and
// is reported as the retryable ErrPushRejected, not as a domain conflict.
func (r *LocalRepo) Push(ctx context.Context, force bool, branches ...string) error {
	if len(branches) == 0 {
		return nil
	}
	args := []string{"push", "--atomic"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, "origin")
	args = append(args, branches...)
	if _, err := r.runner.Run(ctx, args...); err != nil {
		var cmdErr *wferrors.GitCommandError
		if errors.As(err, &cmdErr) && isPushRejection(cmdErr.Stderr) {
			return fmt.Errorf("%w: %s", wferrors.ErrPushRejected, strings.Join(branches, ", "))
		}
		return err
	}
	return nil
}

func isPushRejection(stderr string) bool {
	return strings.Contains(stderr, "[rejected]") ||
		strings.Contains(stderr, "failed to push some refs") ||
		strings.Contains(stderr, "fetch first") ||
		strings.Contains(stderr, "stale info")
}

// Remove deletes a branch, locally and (unless localOnly) on the remote
func (r *LocalRepo) Remove(ctx context.Context, branch string, localOnly bool) error {
	// A checked-out branch cannot be deleted; move off it first.
	_, _ = r.runner.Run(ctx, "checkout", "--detach", "HEAD")
	if _, err := r.runner.Run(ctx, "branch", "-D", branch); err != nil {
		return err
	}
	if localOnly {
		return nil
	}
	_, err := r.runner.Run(ctx, "push", "origin", ":"+branch)
	return err
}

// LocalBranches lists local branch names
func (r *LocalRepo) LocalBranches() ([]string, error) {
	repo, err := r.gogitRepo()
	if err != nil {
		return nil, err
	}
	iter, err := repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Name().IsBranch() {
			names = append(names, ref.Name().Short())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate branches: %w", err)
	}
	return names, nil
}

// RemoteBranches lists branch names present on origin
func (r *LocalRepo) RemoteBranches() ([]string, error) {
	repo, err := r.gogitRepo()
	if err != nil {
		return nil, err
	}
	refs, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	var names []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		if name.IsRemote() {
			short := strings.TrimPrefix(name.String(), "refs/remotes/origin/")
			if short != "HEAD" && short != name.String() {
				names = append(names, short)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate references: %w", err)
	}
	return names, nil
}

// Tags lists tag names
func (r *LocalRepo) Tags() ([]string, error) {
	repo, err := r.gogitRepo()
	if err != nil {
		return nil, err
	}
	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}
	return names, nil
}

// RemoteBranchExists reports whether origin has the branch
func (r *LocalRepo) RemoteBranchExists(branch string) (bool, error) {
	names, err := r.RemoteBranches()
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == branch {
			return true, nil
		}
	}
	return false, nil
}

// Tip resolves a ref to its commit sha
func (r *LocalRepo) Tip(ref string) (string, error) {
	repo, err := r.gogitRepo()
	if err != nil {
		return "", err
	}
	hash, err := resolveRefHash(repo, ref)
	if err != nil {
		return "", fmt.Errorf("%w: %s", wferrors.ErrBranchNotFound, ref)
	}
	return hash.String(), nil
}

// IsAncestor reports whether ancestor is an ancestor of (or equal to) descendant
func (r *LocalRepo) IsAncestor(ancestor, descendant string) (bool, error) {
	repo, err := r.gogitRepo()
	if err != nil {
		return false, err
	}

	ancestorHash, err := resolveRefHash(repo, ancestor)
	if err != nil {
		return false, fmt.Errorf("failed to resolve ancestor ref %s: %w", ancestor, err)
	}
	descendantHash, err := resolveRefHash(repo, descendant)
	if err != nil {
		return false, fmt.Errorf("failed to resolve descendant ref %s: %w", descendant, err)
	}

	if ancestorHash == descendantHash {
		return true, nil
	}

	ancestorCommit, err := repo.CommitObject(ancestorHash)
	if err != nil {
		return false, fmt.Errorf("failed to get ancestor commit: %w", err)
	}
	descendantCommit, err := repo.CommitObject(descendantHash)
	if err != nil {
		return false, fmt.Errorf("failed to get descendant commit: %w", err)
	}

	return ancestorCommit.IsAncestor(descendantCommit)
}

// IncludesCommit reports whether the branch contains the commit
func (r *LocalRepo) IncludesCommit(branch, sha string) (bool, error) {
	return r.IsAncestor(sha, branch)
}

// BranchesContaining lists local branches that contain the commit
func (r *LocalRepo) BranchesContaining(sha string) ([]string, error) {
	names, err := r.LocalBranches()
	if err != nil {
		return nil, err
	}
	var containing []string
	for _, name := range names {
		ok, err := r.IncludesCommit(name, sha)
		if err != nil {
			return nil, err
		}
		if ok {
			containing = append(containing, name)
		}
	}
	return containing, nil
}

// CommitDiff returns the commits on branch that are not on other, ordered
// newest first, optionally excluding merge commits.
func (r *LocalRepo) CommitDiff(branch, other string, includeMerges bool) ([]Commit, error) {
	args := []string{"log", "--pretty=format:%H|%P|%ae", other + ".." + branch}
	if !includeMerges {
		args = append(args, "--no-merges")
	}
	lines, err := r.runner.RunLines(context.Background(), args...)
	if err != nil {
		return nil, err
	}
	commits := make([]Commit, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}
		var parents []string
		if parts[1] != "" {
			parents = strings.Fields(parts[1])
		}
		commits = append(commits, Commit{SHA: parts[0], Parents: parents, Author: parts[2]})
	}
	return commits, nil
}

// CommitCount returns the number of commits on to that are not on from
func (r *LocalRepo) CommitCount(from, to string) (int, error) {
	out, err := r.runner.Run(context.Background(), "rev-list", "--count", from+".."+to)
	if err != nil {
		return 0, err
	}
	var count int
	if _, err := fmt.Sscanf(out, "%d", &count); err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", out, err)
	}
	return count, nil
}

// TreesEqual reports whether two refs point at identical tree content
func (r *LocalRepo) TreesEqual(ctx context.Context, a, b string) (bool, error) {
	_, err := r.runner.Run(ctx, "diff", "--quiet", a, b)
	if err == nil {
		return true, nil
	}
	var cmdErr *wferrors.GitCommandError
	if errors.As(err, &cmdErr) && cmdErr.Stderr == "" {
		// Exit status 1 with no stderr means the trees differ.
		return false, nil
	}
	return false, err
}

// resolveRefHash resolves a ref name (short branch name, tag, full ref or raw
// sha) to a commit hash.
func resolveRefHash(repo *gogit.Repository, name string) (plumbing.Hash, error) {
	if hash, err := repo.ResolveRevision(plumbing.Revision(name)); err == nil {
		return *hash, nil
	}
	ref, err := repo.Reference(plumbing.ReferenceName(name), true)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return ref.Hash(), nil
}
