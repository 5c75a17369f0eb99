package git_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wferrors "waterflow.dev/waterflow/internal/errors"
	"waterflow.dev/waterflow/internal/git"
	"waterflow.dev/waterflow/testhelpers"
)

// setupClone builds an upstream repository with a main branch, a development
// line and a release tag, then clones it through LocalRepo.
func setupClone(t *testing.T) (*testhelpers.GitRepo, *git.LocalRepo, *testhelpers.GitRepo) {
	t.Helper()
	ctx := context.Background()

	upstream, err := testhelpers.NewGitRepo(filepath.Join(t.TempDir(), "origin"))
	require.NoError(t, err)
	_, err = upstream.Commit("README.md", "widgets", "initial commit")
	require.NoError(t, err)
	require.NoError(t, upstream.CreateBranch("development/1.0"))
	_, err = upstream.Commit("CHANGES.md", "1.0 line", "start the 1.0 line")
	require.NoError(t, err)
	require.NoError(t, upstream.Tag("1.0.0"))
	// Keep main checked out upstream so pushes to other branches are accepted.
	require.NoError(t, upstream.Checkout("main"))

	workDir := filepath.Join(t.TempDir(), "clone")
	repo := git.NewLocalRepo(upstream.Dir, workDir)
	require.NoError(t, repo.Clone(ctx))

	clone := &testhelpers.GitRepo{Dir: workDir}
	require.NoError(t, clone.Run("config", "user.name", "Test User"))
	require.NoError(t, clone.Run("config", "user.email", "test@example.com"))
	return upstream, repo, clone
}

func TestLocalRepoReads(t *testing.T) {
	_, repo, _ := setupClone(t)

	remotes, err := repo.RemoteBranches()
	require.NoError(t, err)
	assert.Contains(t, remotes, "main")
	assert.Contains(t, remotes, "development/1.0")

	tags, err := repo.Tags()
	require.NoError(t, err)
	assert.Contains(t, tags, "1.0.0")

	exists, err := repo.RemoteBranchExists("development/1.0")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.RemoteBranchExists("development/2.0")
	require.NoError(t, err)
	assert.False(t, exists)

	mainTip, err := repo.Tip("origin/main")
	require.NoError(t, err)
	devTip, err := repo.Tip("origin/development/1.0")
	require.NoError(t, err)
	require.NotEmpty(t, mainTip)
	require.NotEqual(t, mainTip, devTip)

	ok, err := repo.IsAncestor("origin/main", "origin/development/1.0")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.IsAncestor("origin/development/1.0", "origin/main")
	require.NoError(t, err)
	assert.False(t, ok)

	contains, err := repo.IncludesCommit("origin/development/1.0", mainTip)
	require.NoError(t, err)
	assert.True(t, contains)

	count, err := repo.CommitCount("origin/main", "origin/development/1.0")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	diff, err := repo.CommitDiff("origin/development/1.0", "origin/main", true)
	require.NoError(t, err)
	require.Len(t, diff, 1)
	assert.Equal(t, devTip, diff[0].SHA)
	assert.False(t, diff[0].IsMerge())
}

func TestLocalRepoBranchLifecycle(t *testing.T) {
	ctx := context.Background()
	_, repo, clone := setupClone(t)

	w := "w/1.0/bugfix/PROJ-1-fix"
	require.NoError(t, repo.CreateBranch(ctx, w, "origin/development/1.0"))
	_, err := clone.Commit("fix.txt", "fixed", "the fix")
	require.NoError(t, err)

	require.NoError(t, repo.Push(ctx, false, w))
	exists, err := repo.RemoteBranchExists(w)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.Remove(ctx, w, false))
	locals, err := repo.LocalBranches()
	require.NoError(t, err)
	assert.NotContains(t, locals, w)
	exists, err = repo.RemoteBranchExists(w)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalRepoMerge(t *testing.T) {
	ctx := context.Background()
	_, repo, clone := setupClone(t)

	t.Run("clean merge", func(t *testing.T) {
		require.NoError(t, repo.CreateBranch(ctx, "side", "origin/main"))
		_, err := clone.Commit("side.txt", "side work", "side work")
		require.NoError(t, err)
		require.NoError(t, repo.Checkout(ctx, "development/1.0"))

		require.NoError(t, repo.Merge(ctx, "development/1.0", "side"))
		sideTip, err := repo.Tip("side")
		require.NoError(t, err)
		ok, err := repo.IncludesCommit("development/1.0", sideTip)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("conflict leaves the destination untouched", func(t *testing.T) {
		require.NoError(t, repo.CreateBranch(ctx, "left", "origin/main"))
		_, err := clone.Commit("shared.txt", "left version", "left edit")
		require.NoError(t, err)
		require.NoError(t, repo.CreateBranch(ctx, "right", "origin/main"))
		_, err = clone.Commit("shared.txt", "right version", "right edit")
		require.NoError(t, err)

		before, err := repo.Tip("left")
		require.NoError(t, err)
		err = repo.Merge(ctx, "left", "right")
		assert.ErrorIs(t, err, wferrors.ErrMergeFailed)

		after, err := repo.Tip("left")
		require.NoError(t, err)
		assert.Equal(t, before, after, "a conflicted merge must be aborted")
	})
}

func TestLocalRepoResetHard(t *testing.T) {
	ctx := context.Background()
	_, repo, clone := setupClone(t)

	require.NoError(t, repo.CreateBranch(ctx, "scratch", "origin/main"))
	start, err := repo.Tip("scratch")
	require.NoError(t, err)
	_, err = clone.Commit("extra.txt", "extra", "extra work")
	require.NoError(t, err)

	moved, err := repo.Tip("scratch")
	require.NoError(t, err)
	require.NotEqual(t, start, moved)

	require.NoError(t, repo.ResetHard(ctx, "scratch", start))
	tip, err := repo.Tip("scratch")
	require.NoError(t, err)
	assert.Equal(t, start, tip)
}
