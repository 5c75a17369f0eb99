package branch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterflow.dev/waterflow/internal/branch"
	wferrors "waterflow.dev/waterflow/internal/errors"
)

func TestClassify(t *testing.T) {
	t.Run("classifies development branches", func(t *testing.T) {
		b, err := branch.Classify(nil, "development/4.3")
		require.NoError(t, err)
		dev, ok := b.(*branch.DevelopmentBranch)
		require.True(t, ok)
		assert.Equal(t, 4, dev.Major)
		assert.Equal(t, 3, dev.Minor)
		assert.Equal(t, -1, dev.LatestMicro)
		assert.Equal(t, branch.KindDevelopment, b.Kind())
	})

	t.Run("classifies stabilization branches", func(t *testing.T) {
		b, err := branch.Classify(nil, "stabilization/5.1.4")
		require.NoError(t, err)
		stab, ok := b.(*branch.StabilizationBranch)
		require.True(t, ok)
		assert.Equal(t, 5, stab.Major)
		assert.Equal(t, 1, stab.Minor)
		assert.Equal(t, 4, stab.Micro)
	})

	t.Run("classifies release branches", func(t *testing.T) {
		b, err := branch.Classify(nil, "release/10.0")
		require.NoError(t, err)
		assert.Equal(t, branch.KindRelease, b.Kind())
	})

	t.Run("classifies queue masters", func(t *testing.T) {
		b, err := branch.Classify(nil, "q/4.3")
		require.NoError(t, err)
		qb, ok := b.(*branch.QueueBranch)
		require.True(t, ok)
		assert.Equal(t, "4.3", qb.Version.String())

		b, err = branch.Classify(nil, "q/4.3.18")
		require.NoError(t, err)
		qb, ok = b.(*branch.QueueBranch)
		require.True(t, ok)
		assert.Equal(t, "4.3.18", qb.Version.String())
	})

	t.Run("classifies queue integration branches", func(t *testing.T) {
		b, err := branch.Classify(nil, "q/12/10.0/feature/PROJ-42-frobnicate")
		require.NoError(t, err)
		qi, ok := b.(*branch.QueueIntegrationBranch)
		require.True(t, ok)
		assert.Equal(t, 12, qi.PRID)
		assert.Equal(t, "10.0", qi.Version.String())
		assert.Equal(t, "feature/PROJ-42-frobnicate", qi.FeatureName)
	})

	t.Run("classifies feature branches with issue keys", func(t *testing.T) {
		b, err := branch.Classify(nil, "bugfix/proj_1-042-fix-the-thing")
		require.NoError(t, err)
		fb, ok := b.(*branch.FeatureBranch)
		require.True(t, ok)
		assert.Equal(t, "bugfix", fb.Prefix)
		// Issue keys are matched case-insensitively and upper-cased.
		assert.Equal(t, "PROJ_1-042", fb.IssueKey)
		assert.Equal(t, "PROJ_1", fb.IssueProject)
	})

	t.Run("classifies feature branches without issue keys", func(t *testing.T) {
		b, err := branch.Classify(nil, "improvement/cleanup")
		require.NoError(t, err)
		fb, ok := b.(*branch.FeatureBranch)
		require.True(t, ok)
		assert.Empty(t, fb.IssueKey)
		assert.Equal(t, "cleanup", fb.Label)
	})

	t.Run("classifies every feature prefix", func(t *testing.T) {
		for _, prefix := range branch.FeaturePrefixes {
			b, err := branch.Classify(nil, prefix+"/TEST-1-x")
			require.NoError(t, err, prefix)
			assert.Equal(t, branch.KindFeature, b.Kind(), prefix)
		}
	})

	t.Run("classifies hotfix, integration and user branches", func(t *testing.T) {
		b, err := branch.Classify(nil, "hotfix/urgent-fix")
		require.NoError(t, err)
		assert.Equal(t, branch.KindHotfix, b.Kind())

		b, err = branch.Classify(nil, "w/5.1/feature/PROJ-1-x")
		require.NoError(t, err)
		wb, ok := b.(*branch.IntegrationBranch)
		require.True(t, ok)
		assert.Equal(t, "feature/PROJ-1-x", wb.FeatureName)

		b, err = branch.Classify(nil, "user/jdoe")
		require.NoError(t, err)
		assert.Equal(t, branch.KindUser, b.Kind())
	})

	t.Run("rejects anything else", func(t *testing.T) {
		for _, name := range []string{
			"main",
			"development/4",
			"development/4.3.1",
			"stabilization/4.3",
			"q/",
			"q/x/4.3/feature/a",
			"wip/something",
		} {
			_, err := branch.Classify(nil, name)
			require.ErrorIs(t, err, wferrors.ErrUnrecognizedBranchPattern, name)
		}
	})

	t.Run("stabilization takes precedence over queue-like names", func(t *testing.T) {
		// Deterministic and total: the same input always yields the same type.
		b1, err := branch.Classify(nil, "q/4.3")
		require.NoError(t, err)
		b2, err := branch.Classify(nil, "q/4.3")
		require.NoError(t, err)
		assert.IsType(t, b1, b2)
	})
}

func TestBranchNames(t *testing.T) {
	v := branch.Version{Major: 4, Minor: 3}
	assert.Equal(t, "w/4.3/feature/PROJ-1-x", branch.IntegrationBranchName(v, "feature/PROJ-1-x"))
	assert.Equal(t, "q/4.3", branch.QueueBranchName(v))
	assert.Equal(t, "q/7/4.3/feature/PROJ-1-x", branch.QueueIntegrationBranchName(7, v, "feature/PROJ-1-x"))

	micro := branch.Version{Major: 4, Minor: 3, Micro: 18, HasMicro: true}
	assert.Equal(t, "q/4.3.18", branch.QueueBranchName(micro))
}
