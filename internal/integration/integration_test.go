package integration_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterflow.dev/waterflow/internal/branch"
	"waterflow.dev/waterflow/internal/cascade"
	wferrors "waterflow.dev/waterflow/internal/errors"
	"waterflow.dev/waterflow/internal/integration"
	"waterflow.dev/waterflow/internal/output"
	"waterflow.dev/waterflow/testhelpers"
)

const sourceName = "bugfix/PROJ-1-fix"

// fixture builds lines 4.3 -> 5.1 -> 10.0 with a one-commit feature branch off
// 4.3, and a cascade finalized on development/4.3.
func fixture(t *testing.T) (*testhelpers.FakeRepo, branch.Branch, []branch.Destination) {
	t.Helper()
	repo := testhelpers.NewFakeRepo()
	c1 := repo.AddCommit("base")
	c2 := repo.AddCommit("five one", c1)
	c3 := repo.AddCommit("ten oh", c2)
	repo.SetBranch("development/4.3", c1)
	repo.SetBranch("development/5.1", c2)
	repo.SetBranch("development/10.0", c3)
	repo.SetBranch(sourceName, repo.AddCommit("the fix", c1))

	source, err := branch.Classify(repo, sourceName)
	require.NoError(t, err)

	csc, err := cascade.BuildFromRepo(repo)
	require.NoError(t, err)
	dst, err := branch.Classify(repo, "development/4.3")
	require.NoError(t, err)
	require.NoError(t, csc.Finalize(dst))

	return repo, source, csc.DestinationBranches()
}

func newOrchestrator(repo *testhelpers.FakeRepo, source branch.Branch, dsts []branch.Destination, disableOctopus bool) *integration.Orchestrator {
	return integration.NewOrchestrator(repo, source, dsts, disableOctopus, output.NewSplog())
}

func TestOrchestratorTargets(t *testing.T) {
	repo, source, dsts := fixture(t)
	o := newOrchestrator(repo, source, dsts, false)

	targets := o.Targets()
	require.Len(t, targets, 3)

	assert.True(t, targets[0].Ghost)
	assert.Equal(t, sourceName, targets[0].Branch)
	assert.Equal(t, "development/4.3", targets[0].Destination.Name())

	assert.False(t, targets[1].Ghost)
	assert.Equal(t, "w/5.1/"+sourceName, targets[1].Branch)
	assert.Equal(t, "w/10.0/"+sourceName, targets[2].Branch)
}

func TestCreateBranches(t *testing.T) {
	ctx := context.Background()
	repo, source, dsts := fixture(t)
	o := newOrchestrator(repo, source, dsts, false)

	require.NoError(t, o.CreateBranches(ctx))

	for _, tc := range []struct{ branch, dst string }{
		{"w/5.1/" + sourceName, "development/5.1"},
		{"w/10.0/" + sourceName, "development/10.0"},
	} {
		tip, err := repo.Tip(tc.branch)
		require.NoError(t, err)
		dstTip, err := repo.Tip("origin/" + tc.dst)
		require.NoError(t, err)
		assert.Equal(t, dstTip, tip, "%s should start at %s", tc.branch, tc.dst)
	}
}

func TestUpdateCascadesTheChange(t *testing.T) {
	ctx := context.Background()
	repo, source, dsts := fixture(t)
	o := newOrchestrator(repo, source, dsts, false)

	require.NoError(t, o.CreateBranches(ctx))
	require.NoError(t, o.Update(ctx))

	fixTip, err := repo.Tip(sourceName)
	require.NoError(t, err)
	for _, w := range []string{"w/5.1/" + sourceName, "w/10.0/" + sourceName} {
		ok, err := repo.IncludesCommit(w, fixTip)
		require.NoError(t, err)
		assert.True(t, ok, "%s should carry the fix", w)
	}

	// The farthest integration branch also carries its destination's history.
	tenTip, err := repo.Tip("development/10.0")
	require.NoError(t, err)
	ok, err := repo.IncludesCommit("w/10.0/"+sourceName, tenTip)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, o.CheckHistory(ctx))
}

func TestUpdateConflict(t *testing.T) {
	ctx := context.Background()
	repo, source, dsts := fixture(t)
	o := newOrchestrator(repo, source, dsts, true)

	require.NoError(t, o.CreateBranches(ctx))
	repo.FailMerges["w/5.1/"+sourceName+"<-*"] = true

	err := o.Update(ctx)
	var conflict *wferrors.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "w/5.1/"+sourceName, conflict.Branch)
	assert.Equal(t, "development/5.1", conflict.Dst)
	assert.True(t, conflict.DirectDestination)
}

func TestCheckConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("clean merge passes and leaves no scratch", func(t *testing.T) {
		repo, source, dsts := fixture(t)
		o := newOrchestrator(repo, source, dsts, false)

		require.NoError(t, o.CheckConflict(ctx))
		locals, err := repo.LocalBranches()
		require.NoError(t, err)
		assert.NotContains(t, locals, "tmp/conflict-check/"+sourceName)
	})

	t.Run("conflict names the direct destination", func(t *testing.T) {
		repo, source, dsts := fixture(t)
		o := newOrchestrator(repo, source, dsts, false)
		repo.FailMerges["tmp/conflict-check/"+sourceName+"<-"+sourceName] = true

		err := o.CheckConflict(ctx)
		var conflict *wferrors.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "development/4.3", conflict.Dst)
		assert.True(t, conflict.DirectDestination)
	})
}

func TestCheckHistoryRejectsTampering(t *testing.T) {
	ctx := context.Background()
	repo, source, dsts := fixture(t)
	o := newOrchestrator(repo, source, dsts, false)

	require.NoError(t, o.CreateBranches(ctx))
	require.NoError(t, o.Update(ctx))

	sneaky := repo.CommitOnBranch("w/5.1/"+sourceName, "sneaky")

	err := o.CheckHistory(ctx)
	var mismatch *wferrors.BranchHistoryMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "w/5.1/"+sourceName, mismatch.IntegrationBranch)
	assert.Equal(t, sneaky, mismatch.Commit)
}

type fakePR struct {
	branch string
	commit string
}

func (p *fakePR) SourceBranch() string       { return p.branch }
func (p *fakePR) SourceCommit() string       { return p.commit }
func (p *fakePR) SetSourceCommit(sha string) { p.commit = sha }

func TestCheckPullRequestSkew(t *testing.T) {
	ctx := context.Background()
	repo, source, dsts := fixture(t)
	o := newOrchestrator(repo, source, dsts, false)
	require.NoError(t, o.CreateBranches(ctx))
	require.NoError(t, o.Update(ctx))

	w := "w/5.1/" + sourceName
	localTip, err := repo.Tip(w)
	require.NoError(t, err)

	t.Run("matching tips pass untouched", func(t *testing.T) {
		pr := &fakePR{branch: w, commit: localTip}
		require.NoError(t, o.CheckPullRequestSkew(ctx, []integration.CompanionPR{pr}))
		assert.Equal(t, localTip, pr.commit)
	})

	t.Run("stale host tip is patched", func(t *testing.T) {
		stale, err := repo.Tip("development/5.1")
		require.NoError(t, err)
		pr := &fakePR{branch: w, commit: stale}

		require.NoError(t, o.CheckPullRequestSkew(ctx, []integration.CompanionPR{pr}))
		assert.Equal(t, localTip, pr.commit)
	})

	t.Run("unreachable host tip is a skew", func(t *testing.T) {
		pr := &fakePR{branch: w, commit: "deadbeef"}

		err := o.CheckPullRequestSkew(ctx, []integration.CompanionPR{pr})
		var skew *wferrors.PullRequestSkewError
		require.True(t, errors.As(err, &skew))
		assert.Equal(t, w, skew.Branch)
		assert.Equal(t, "deadbeef", skew.RemoteTip)
	})
}

func TestPushAndMergeToDestinations(t *testing.T) {
	ctx := context.Background()
	repo, source, dsts := fixture(t)
	o := newOrchestrator(repo, source, dsts, false)

	require.NoError(t, o.CreateBranches(ctx))
	require.NoError(t, o.Update(ctx))
	require.NoError(t, o.PushBranches(ctx))

	for _, w := range []string{"w/5.1/" + sourceName, "w/10.0/" + sourceName} {
		exists, err := repo.RemoteBranchExists(w)
		require.NoError(t, err)
		assert.True(t, exists, "%s should be pushed", w)
	}

	require.NoError(t, o.MergeToDestinations(ctx))

	fixTip, err := repo.Tip(sourceName)
	require.NoError(t, err)
	for _, dst := range []string{"development/4.3", "development/5.1", "development/10.0"} {
		ok, err := repo.IncludesCommit("origin/"+dst, fixTip)
		require.NoError(t, err)
		assert.True(t, ok, "origin/%s should contain the fix", dst)
	}

	for _, w := range []string{"w/5.1/" + sourceName, "w/10.0/" + sourceName} {
		exists, err := repo.RemoteBranchExists(w)
		require.NoError(t, err)
		assert.False(t, exists, "%s should be cleaned up", w)
	}
}
