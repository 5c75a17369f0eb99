package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterflow.dev/waterflow/internal/lifecycle"
	"waterflow.dev/waterflow/internal/output"
)

func TestWorkerDeduplicatesPending(t *testing.T) {
	w := lifecycle.NewWorker(func(ctx context.Context, req lifecycle.Request) lifecycle.Outcome {
		return lifecycle.Outcome{}
	}, lifecycle.NewSnapshot(), output.NewSplog())

	a := lifecycle.Request{PRID: 1, Revision: "r1"}
	assert.True(t, w.Submit(a))
	assert.False(t, w.Submit(a), "identical pending request must be collapsed")
	assert.True(t, w.Submit(lifecycle.Request{PRID: 1, Revision: "r2"}),
		"a new revision is new work")
	assert.True(t, w.Submit(lifecycle.Request{PRID: 2, Revision: "r1"}))
}

func TestWorkerRunsInOrder(t *testing.T) {
	done := make(chan lifecycle.Request, 8)
	snapshot := lifecycle.NewSnapshot()
	w := lifecycle.NewWorker(func(ctx context.Context, req lifecycle.Request) lifecycle.Outcome {
		done <- req
		return lifecycle.Outcome{Kind: lifecycle.OutcomeNothingToDo, Message: "done"}
	}, snapshot, output.NewSplog())

	first := lifecycle.Request{PRID: 1, Revision: "r1"}
	second := lifecycle.Request{PRID: 2, Revision: "r1"}
	require.True(t, w.Submit(first))
	require.True(t, w.Submit(second))

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	for _, want := range []lifecycle.Request{first, second} {
		select {
		case got := <-done:
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not run the request")
		}
	}
	cancel()

	// Once popped, the same request may be submitted again.
	assert.True(t, w.Submit(first))
}

func TestSnapshotRecordsOutcomes(t *testing.T) {
	done := make(chan struct{}, 1)
	snapshot := lifecycle.NewSnapshot()
	w := lifecycle.NewWorker(func(ctx context.Context, req lifecycle.Request) lifecycle.Outcome {
		defer func() { done <- struct{}{} }()
		return lifecycle.Outcome{Kind: lifecycle.OutcomeNothingToDo, Message: "nothing to do"}
	}, snapshot, output.NewSplog())

	require.True(t, w.Submit(lifecycle.Request{PRID: 7, Revision: "r1"}))
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not run the request")
	}
	cancel()

	require.Eventually(t, func() bool {
		v := snapshot.View()
		return len(v.Outcomes) == 1
	}, 5*time.Second, 10*time.Millisecond)

	v := snapshot.View()
	assert.Equal(t, 7, v.Outcomes[0].PRID)
	assert.Equal(t, lifecycle.OutcomeNothingToDo, v.Outcomes[0].Kind)
	assert.Equal(t, "nothing to do", v.Outcomes[0].Message)
}
