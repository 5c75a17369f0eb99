package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	wferrors "waterflow.dev/waterflow/internal/errors"
	"waterflow.dev/waterflow/internal/git"
)

// FakeCommit is one node of the fake repository's commit graph.
type FakeCommit struct {
	SHA     string
	Parents []string
	Author  string
	// Change names the content a non-merge commit introduces; merges carry none.
	Change string
}

// FakeRepo implements git.Repo over an explicit in-memory commit graph, so
// cascade, queue and lifecycle tests control ancestry precisely without
// touching a real repository.
type FakeRepo struct {
	Commits  map[string]*FakeCommit
	Branches map[string]string // branch name -> tip sha
	Origin   map[string]string // remote branch name -> tip sha
	TagList  []string

	// FailMerges lists "dst<-src" pairs that conflict.
	FailMerges map[string]bool
	// FailOnceMerges lists pairs that conflict on their first attempt only,
	// for exercising order-swap retries.
	FailOnceMerges map[string]bool

	counter int
}

// NewFakeRepo creates an empty fake repository with one root commit on each
// named branch when branches are given.
func NewFakeRepo() *FakeRepo {
	return &FakeRepo{
		Commits:        make(map[string]*FakeCommit),
		Branches:       make(map[string]string),
		Origin:         make(map[string]string),
		FailMerges:     make(map[string]bool),
		FailOnceMerges: make(map[string]bool),
	}
}

// AddCommit appends a commit with the given parents and returns its sha.
func (r *FakeRepo) AddCommit(change string, parents ...string) string {
	r.counter++
	sha := fmt.Sprintf("c%03d", r.counter)
	r.Commits[sha] = &FakeCommit{
		SHA:     sha,
		Parents: append([]string(nil), parents...),
		Author:  "dev@example.com",
		Change:  change,
	}
	return sha
}

// SetBranch points a branch (local and remote) at a commit.
func (r *FakeRepo) SetBranch(name, sha string) {
	r.Branches[name] = sha
	r.Origin[name] = sha
}

// CommitOnBranch adds a commit on top of the branch and advances it.
func (r *FakeRepo) CommitOnBranch(branch, change string) string {
	var parents []string
	if tip, ok := r.Branches[branch]; ok {
		parents = append(parents, tip)
	}
	sha := r.AddCommit(change, parents...)
	r.SetBranch(branch, sha)
	return sha
}

func (r *FakeRepo) resolve(ref string) (string, error) {
	name := strings.TrimPrefix(ref, "origin/")
	if strings.HasPrefix(ref, "origin/") {
		if sha, ok := r.Origin[name]; ok {
			return sha, nil
		}
	}
	if sha, ok := r.Branches[name]; ok {
		return sha, nil
	}
	if _, ok := r.Commits[ref]; ok {
		return ref, nil
	}
	return "", fmt.Errorf("%w: %s", wferrors.ErrBranchNotFound, ref)
}

func (r *FakeRepo) ancestors(sha string) map[string]bool {
	seen := make(map[string]bool)
	stack := []string{sha}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if c, ok := r.Commits[cur]; ok {
			stack = append(stack, c.Parents...)
		}
	}
	return seen
}

// Clone implements git.Repo; the fake has nothing to clone.
func (r *FakeRepo) Clone(ctx context.Context) error { return nil }

// Fetch implements git.Repo.
func (r *FakeRepo) Fetch(ctx context.Context) error { return nil }

// Checkout implements git.Repo, creating a local branch from origin if needed.
func (r *FakeRepo) Checkout(ctx context.Context, branch string) error {
	if _, ok := r.Branches[branch]; ok {
		return nil
	}
	if sha, ok := r.Origin[branch]; ok {
		r.Branches[branch] = sha
		return nil
	}
	return fmt.Errorf("%w: %s", wferrors.ErrBranchNotFound, branch)
}

// CreateBranch implements git.Repo.
func (r *FakeRepo) CreateBranch(ctx context.Context, name, from string) error {
	sha, err := r.resolve(from)
	if err != nil {
		return err
	}
	r.Branches[name] = sha
	return nil
}

// Merge implements git.Repo: a fast-forward when dst already contains the
// single source, a new merge commit otherwise. Pairs listed in FailMerges
// conflict and leave dst untouched.
func (r *FakeRepo) Merge(ctx context.Context, dst string, srcs ...string) error {
	dstTip, err := r.resolve(dst)
	if err != nil {
		return err
	}
	parents := []string{dstTip}
	dstSet := r.ancestors(dstTip)
	for _, src := range srcs {
		if r.FailOnceMerges[dst+"<-"+src] {
			delete(r.FailOnceMerges, dst+"<-"+src)
			return wferrors.NewMergeFailedError(dst, srcs...)
		}
		if r.FailMerges[dst+"<-"+src] || r.FailMerges[dst+"<-*"] {
			return wferrors.NewMergeFailedError(dst, srcs...)
		}
		tip, err := r.resolve(src)
		if err != nil {
			return err
		}
		if !dstSet[tip] {
			parents = append(parents, tip)
		}
	}
	if len(parents) == 1 {
		return nil
	}
	if len(parents) == 2 && r.ancestors(parents[1])[dstTip] {
		// Fast-forward.
		r.Branches[dst] = parents[1]
		return nil
	}
	sha := r.AddCommit("", parents...)
	r.Branches[dst] = sha
	return nil
}

// ResetHard implements git.Repo.
func (r *FakeRepo) ResetHard(ctx context.Context, branch, ref string) error {
	sha, err := r.resolve(ref)
	if err != nil {
		return err
	}
	r.Branches[branch] = sha
	return nil
}

// Push implements git.Repo.
func (r *FakeRepo) Push(ctx context.Context, force bool, branches ...string) error {
	for _, b := range branches {
		sha, ok := r.Branches[b]
		if !ok {
			return fmt.Errorf("%w: %s", wferrors.ErrBranchNotFound, b)
		}
		r.Origin[b] = sha
	}
	return nil
}

// Remove implements git.Repo.
func (r *FakeRepo) Remove(ctx context.Context, branch string, localOnly bool) error {
	delete(r.Branches, branch)
	if !localOnly {
		delete(r.Origin, branch)
	}
	return nil
}

// LocalBranches implements git.Repo.
func (r *FakeRepo) LocalBranches() ([]string, error) {
	return sortedKeys(r.Branches), nil
}

// RemoteBranches implements git.Repo.
func (r *FakeRepo) RemoteBranches() ([]string, error) {
	return sortedKeys(r.Origin), nil
}

// Tags implements git.Repo.
func (r *FakeRepo) Tags() ([]string, error) {
	return append([]string(nil), r.TagList...), nil
}

// RemoteBranchExists implements git.Repo.
func (r *FakeRepo) RemoteBranchExists(branch string) (bool, error) {
	_, ok := r.Origin[branch]
	return ok, nil
}

// Tip implements git.Repo.
func (r *FakeRepo) Tip(ref string) (string, error) {
	return r.resolve(ref)
}

// IsAncestor implements git.Repo.
func (r *FakeRepo) IsAncestor(ancestor, descendant string) (bool, error) {
	a, err := r.resolve(ancestor)
	if err != nil {
		return false, err
	}
	d, err := r.resolve(descendant)
	if err != nil {
		return false, err
	}
	return r.ancestors(d)[a], nil
}

// IncludesCommit implements git.Repo.
func (r *FakeRepo) IncludesCommit(branch, sha string) (bool, error) {
	tip, err := r.resolve(branch)
	if err != nil {
		return false, err
	}
	return r.ancestors(tip)[sha], nil
}

// BranchesContaining implements git.Repo.
func (r *FakeRepo) BranchesContaining(sha string) ([]string, error) {
	var out []string
	for _, name := range sortedKeys(r.Branches) {
		if r.ancestors(r.Branches[name])[sha] {
			out = append(out, name)
		}
	}
	return out, nil
}

// CommitDiff implements git.Repo.
func (r *FakeRepo) CommitDiff(branch, other string, includeMerges bool) ([]git.Commit, error) {
	tip, err := r.resolve(branch)
	if err != nil {
		return nil, err
	}
	otherTip, err := r.resolve(other)
	if err != nil {
		return nil, err
	}
	exclude := r.ancestors(otherTip)
	var out []git.Commit
	for sha := range r.ancestors(tip) {
		if exclude[sha] {
			continue
		}
		c := r.Commits[sha]
		if !includeMerges && len(c.Parents) > 1 {
			continue
		}
		out = append(out, git.Commit{SHA: c.SHA, Parents: c.Parents, Author: c.Author})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SHA > out[j].SHA })
	return out, nil
}

// CommitCount implements git.Repo.
func (r *FakeRepo) CommitCount(from, to string) (int, error) {
	diff, err := r.CommitDiff(to, from, true)
	if err != nil {
		return 0, err
	}
	return len(diff), nil
}

// TreesEqual implements git.Repo: two refs hold the same tree when the same
// set of changes is reachable from both.
func (r *FakeRepo) TreesEqual(ctx context.Context, a, b string) (bool, error) {
	ta, err := r.resolve(a)
	if err != nil {
		return false, err
	}
	tb, err := r.resolve(b)
	if err != nil {
		return false, err
	}
	return equalChangeSets(r.changeSet(ta), r.changeSet(tb)), nil
}

func (r *FakeRepo) changeSet(sha string) map[string]bool {
	out := make(map[string]bool)
	for a := range r.ancestors(sha) {
		if c := r.Commits[a]; c != nil && c.Change != "" {
			out[c.Change] = true
		}
	}
	return out
}

func equalChangeSets(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
