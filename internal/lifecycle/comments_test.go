package lifecycle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterflow.dev/waterflow/internal/githost"
	"waterflow.dev/waterflow/internal/lifecycle"
	"waterflow.dev/waterflow/testhelpers"
)

func TestCommentDeduplication(t *testing.T) {
	out := lifecycle.Outcome{
		Kind:    lifecycle.OutcomeConflict,
		Code:    120,
		Status:  lifecycle.StatusFailure,
		Message: "conflict merging bugfix/PROJ-1-fix into development/4.3",
	}

	rendered := lifecycle.RenderComment(out, "abc123")
	assert.Contains(t, rendered, out.Message)
	assert.Contains(t, rendered, "waterflow:120:abc123")

	comments := []githost.Comment{
		{ID: 1, Author: "alice", Text: "looks good"},
		{ID: 2, Author: "waterflow", Text: rendered},
	}
	assert.True(t, lifecycle.AlreadyPosted(comments, out.MessageID("abc123")))

	// A new revision resets the deduplication.
	assert.False(t, lifecycle.AlreadyPosted(comments, out.MessageID("def456")))
	// So does a different outcome on the same revision.
	other := lifecycle.Outcome{Code: 110}
	assert.False(t, lifecycle.AlreadyPosted(comments, other.MessageID("abc123")))
}

func TestPostOutcome(t *testing.T) {
	ctx := context.Background()
	host := testhelpers.NewFakeHost()
	out := lifecycle.Outcome{
		Kind:    lifecycle.OutcomeApprovalRequired,
		Code:    110,
		Status:  lifecycle.StatusFailure,
		Message: "waiting for 1 more peer approval",
	}

	posted, err := lifecycle.PostOutcome(ctx, host, 42, "abc123", out)
	require.NoError(t, err)
	assert.True(t, posted)
	require.Len(t, host.Comments[42], 1)
	assert.Contains(t, host.Comments[42][0].Text, out.Message)
	assert.Contains(t, host.Comments[42][0].Text, "waterflow:110:abc123")

	// A retrigger on the same revision posts nothing new.
	posted, err = lifecycle.PostOutcome(ctx, host, 42, "abc123", out)
	require.NoError(t, err)
	assert.False(t, posted)
	assert.Len(t, host.Comments[42], 1)

	// A new revision or a silent outcome behave differently.
	posted, err = lifecycle.PostOutcome(ctx, host, 42, "def456", out)
	require.NoError(t, err)
	assert.True(t, posted)
	assert.Len(t, host.Comments[42], 2)

	posted, err = lifecycle.PostOutcome(ctx, host, 42, "def456",
		lifecycle.Outcome{Kind: lifecycle.OutcomeMerged, Message: "merged"})
	require.NoError(t, err)
	assert.False(t, posted)
	assert.Len(t, host.Comments[42], 2)
}

func TestOutcomeSilence(t *testing.T) {
	silent := []lifecycle.OutcomeKind{
		lifecycle.OutcomeNotMyJob,
		lifecycle.OutcomeNothingToDo,
		lifecycle.OutcomeMerged,
		lifecycle.OutcomeBuildInProgress,
		lifecycle.OutcomeWaiting,
	}
	for _, k := range silent {
		assert.True(t, lifecycle.Outcome{Kind: k}.Silent(), "kind %d", k)
	}
	loud := []lifecycle.OutcomeKind{
		lifecycle.OutcomeQueued,
		lifecycle.OutcomeSuccess,
		lifecycle.OutcomeConflict,
		lifecycle.OutcomeApprovalRequired,
		lifecycle.OutcomeInternalError,
	}
	for _, k := range loud {
		assert.False(t, lifecycle.Outcome{Kind: k}.Silent(), "kind %d", k)
	}
}
