package merge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wferrors "waterflow.dev/waterflow/internal/errors"
	"waterflow.dev/waterflow/internal/merge"
	"waterflow.dev/waterflow/testhelpers"
)

// twoSourceRepo builds dst with two sources branched off its tip, each
// carrying one commit of its own.
func twoSourceRepo(t *testing.T) *testhelpers.FakeRepo {
	t.Helper()
	repo := testhelpers.NewFakeRepo()
	base := repo.AddCommit("base")
	repo.SetBranch("development/5.1", base)
	repo.SetBranch("first", repo.AddCommit("first change", base))
	repo.SetBranch("second", repo.AddCommit("second change", base))
	return repo
}

func assertMergedBoth(t *testing.T, repo *testhelpers.FakeRepo, dst string) {
	t.Helper()
	for _, src := range []string{"first", "second"} {
		tip, err := repo.Tip(src)
		require.NoError(t, err)
		ok, err := repo.IncludesCommit(dst, tip)
		require.NoError(t, err)
		assert.True(t, ok, "%s should contain %s", dst, src)
	}
}

func TestConsecutive(t *testing.T) {
	ctx := context.Background()
	dst := "development/5.1"

	t.Run("merges both sources in order", func(t *testing.T) {
		repo := twoSourceRepo(t)
		require.NoError(t, merge.Consecutive(ctx, repo, dst, "first", "second"))
		assertMergedBoth(t, repo, dst)
	})

	t.Run("retries in swapped order after a conflict", func(t *testing.T) {
		repo := twoSourceRepo(t)
		repo.FailOnceMerges[dst+"<-second"] = true

		require.NoError(t, merge.Consecutive(ctx, repo, dst, "first", "second"))
		assertMergedBoth(t, repo, dst)
	})

	t.Run("persistent conflict resets dst and keeps the first error", func(t *testing.T) {
		repo := twoSourceRepo(t)
		repo.FailMerges[dst+"<-second"] = true
		origin, err := repo.Tip("origin/" + dst)
		require.NoError(t, err)

		err = merge.Consecutive(ctx, repo, dst, "first", "second")
		assert.ErrorIs(t, err, wferrors.ErrMergeFailed)

		tip, terr := repo.Tip(dst)
		require.NoError(t, terr)
		assert.Equal(t, origin, tip)
	})
}

func TestOctopus(t *testing.T) {
	ctx := context.Background()
	dst := "development/5.1"

	t.Run("produces a single multi-parent merge", func(t *testing.T) {
		repo := twoSourceRepo(t)
		require.NoError(t, merge.Octopus(ctx, repo, dst, "first", "second"))
		assertMergedBoth(t, repo, dst)

		tip, err := repo.Tip(dst)
		require.NoError(t, err)
		assert.Len(t, repo.Commits[tip].Parents, 3)
	})

	t.Run("propagates the original conflict", func(t *testing.T) {
		repo := twoSourceRepo(t)
		repo.FailMerges[dst+"<-first"] = true

		err := merge.Octopus(ctx, repo, dst, "first", "second")
		assert.ErrorIs(t, err, wferrors.ErrMergeFailed)
	})
}

func TestRobust(t *testing.T) {
	ctx := context.Background()
	dst := "development/5.1"

	assertNoScratch := func(t *testing.T, repo *testhelpers.FakeRepo) {
		t.Helper()
		locals, err := repo.LocalBranches()
		require.NoError(t, err)
		for _, b := range locals {
			assert.NotContains(t, b, "tmp/")
		}
	}

	t.Run("adopts the octopus result when trees agree", func(t *testing.T) {
		repo := twoSourceRepo(t)
		require.NoError(t, merge.Robust(ctx, repo, dst, "first", "second"))
		assertMergedBoth(t, repo, dst)

		// The octopus scratch fast-forwards in, so the tip is its three-parent merge.
		tip, err := repo.Tip(dst)
		require.NoError(t, err)
		assert.Len(t, repo.Commits[tip].Parents, 3)
		assertNoScratch(t, repo)
	})

	t.Run("falls back to consecutive when the octopus conflicts", func(t *testing.T) {
		repo := twoSourceRepo(t)
		repo.FailMerges["tmp/octopus/"+dst+"<-first"] = true

		require.NoError(t, merge.Robust(ctx, repo, dst, "first", "second"))
		assertMergedBoth(t, repo, dst)

		tip, err := repo.Tip(dst)
		require.NoError(t, err)
		assert.Len(t, repo.Commits[tip].Parents, 2)
		assertNoScratch(t, repo)
	})

	t.Run("accepts order-dependent conflicts that consecutive recovers from", func(t *testing.T) {
		repo := twoSourceRepo(t)
		repo.FailOnceMerges["tmp/octopus/"+dst+"<-second"] = true
		repo.FailOnceMerges["tmp/consecutive/"+dst+"<-second"] = true

		require.NoError(t, merge.Robust(ctx, repo, dst, "first", "second"))
		assertMergedBoth(t, repo, dst)

		// Both scratches recovered on the swapped order; octopus wins.
		tip, err := repo.Tip(dst)
		require.NoError(t, err)
		assert.Len(t, repo.Commits[tip].Parents, 3)
		assertNoScratch(t, repo)
	})

	t.Run("octopus conflict with recovering consecutive still succeeds", func(t *testing.T) {
		repo := twoSourceRepo(t)
		repo.FailMerges["tmp/octopus/"+dst+"<-first"] = true
		repo.FailOnceMerges["tmp/consecutive/"+dst+"<-second"] = true

		require.NoError(t, merge.Robust(ctx, repo, dst, "first", "second"))
		assertMergedBoth(t, repo, dst)

		tip, err := repo.Tip(dst)
		require.NoError(t, err)
		assert.Len(t, repo.Commits[tip].Parents, 2)
		assertNoScratch(t, repo)
	})

	t.Run("falls back to consecutive when trees diverge", func(t *testing.T) {
		repo := &divergingRepo{twoSourceRepo(t)}

		require.NoError(t, merge.Robust(ctx, repo, dst, "first", "second"))
		assertMergedBoth(t, repo.FakeRepo, dst)

		tip, err := repo.Tip(dst)
		require.NoError(t, err)
		assert.Len(t, repo.Commits[tip].Parents, 2)
	})

	t.Run("reports a conflict when consecutive also fails", func(t *testing.T) {
		repo := twoSourceRepo(t)
		repo.FailMerges["tmp/consecutive/"+dst+"<-second"] = true

		err := merge.Robust(ctx, repo, dst, "first", "second")
		assert.ErrorIs(t, err, wferrors.ErrMergeFailed)

		// dst itself was never touched.
		tip, terr := repo.Tip(dst)
		require.NoError(t, terr)
		origin, oerr := repo.Tip("origin/" + dst)
		require.NoError(t, oerr)
		assert.Equal(t, origin, tip)
		assertNoScratch(t, repo)
	})
}

// divergingRepo reports every pair of trees as different, standing in for an
// octopus merge that silently produced the wrong content.
type divergingRepo struct {
	*testhelpers.FakeRepo
}

func (r *divergingRepo) TreesEqual(ctx context.Context, a, b string) (bool, error) {
	return false, nil
}
