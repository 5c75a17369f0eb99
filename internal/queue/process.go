package queue

import (
	"context"

	"waterflow.dev/waterflow/internal/branch"
	wferrors "waterflow.dev/waterflow/internal/errors"
	"waterflow.dev/waterflow/internal/git"
	"waterflow.dev/waterflow/internal/githost"
)

// Process computes the maximal prefix of the queue that is safe to merge
// right now. Queue order is strict FIFO per lane; a failing build anywhere on
// a merge path vetoes that pull request and everything queued behind it on
// that path, but never reorders anything. Failed builds are expected
// steady-state events, not errors: they only shrink the prefix.
func (q *Collection) Process(ctx context.Context) ([]int, error) {
	if q.state < stateValidated {
		return nil, wferrors.ErrQueuesNotValidated
	}

	mergeable := q.QueuedPRs()
	for _, path := range q.csc.MergePaths() {
		prefix, err := q.mergeablePrefix(ctx, path)
		if err != nil {
			return nil, err
		}
		if len(prefix) < len(mergeable) {
			mergeable = prefix
		}
	}

	q.mergeable = mergeable
	q.state = stateProcessed
	return mergeable, nil
}

// mergeablePrefix repeatedly cuts the path's lane stacks at the first entry
// whose build is not successful, until a pass finds no failure. An explicit
// loop over shrinking copies, bounded by the queue length.
func (q *Collection) mergeablePrefix(ctx context.Context, path []branch.Destination) ([]int, error) {
	var stacks [][]*branch.QueueIntegrationBranch
	for _, dst := range path {
		if l, ok := q.lanes[dst.DestinationVersion()]; ok && len(l.Entries) > 0 {
			stacks = append(stacks, append([]*branch.QueueIntegrationBranch(nil), l.Entries...))
		}
	}
	if len(stacks) == 0 {
		return q.QueuedPRs(), nil
	}
	order := pathOrder(stacks[len(stacks)-1])

	for {
		failedID, failed, err := q.firstFailure(ctx, stacks)
		if err != nil {
			return nil, err
		}
		if !failed {
			return order, nil
		}

		// Drop the failed pull request and everything queued behind it.
		cut := len(order)
		for i, id := range order {
			if id == failedID {
				cut = i
				break
			}
		}
		blocked := make(map[int]bool)
		for _, id := range order[cut:] {
			blocked[id] = true
		}
		order = order[:cut]
		for i, stack := range stacks {
			kept := stack[:0]
			for _, e := range stack {
				if !blocked[e.PRID] {
					kept = append(kept, e)
				}
			}
			stacks[i] = kept
		}
	}
}

// firstFailure scans the lanes in path order, each stack newest first, and
// returns the pull request of the first entry whose build is not successful.
func (q *Collection) firstFailure(ctx context.Context, stacks [][]*branch.QueueIntegrationBranch) (int, bool, error) {
	for _, stack := range stacks {
		for _, e := range stack {
			tip, err := q.repo.Tip(e.Name())
			if err != nil {
				return 0, false, err
			}
			status, err := q.builds.GetBuildStatus(ctx, tip, q.buildKey)
			if err != nil {
				return 0, false, err
			}
			if status != githost.BuildSuccessful {
				return e.PRID, true, nil
			}
		}
	}
	return 0, false, nil
}

func pathOrder(newest []*branch.QueueIntegrationBranch) []int {
	ids := make([]int, len(newest))
	for i, e := range newest {
		ids[len(newest)-1-i] = e.PRID
	}
	return ids
}

// EnqueueTarget is one destination's contribution to an enqueue: the
// destination branch and the integration branch holding the merged result.
type EnqueueTarget struct {
	Destination branch.Destination
	Branch      string
}

// Enqueue appends one pull request to the queue: each lane gets a new
// integration snapshot built on the lane master and carrying the previous
// lane's snapshot, the masters advance to the new snapshots, and everything
// is pushed in one atomic push. Requires a validated collection.
func (q *Collection) Enqueue(ctx context.Context, prID int, featureName string, targets []EnqueueTarget) error {
	if q.state < stateValidated {
		return wferrors.ErrQueuesNotValidated
	}

	var pushed []string
	prev := ""
	for _, t := range targets {
		v := t.Destination.DestinationVersion()
		master := branch.QueueBranchName(v)
		exists, err := q.repo.RemoteBranchExists(master)
		if err != nil {
			return err
		}
		if exists {
			if err := q.repo.Checkout(ctx, master); err != nil {
				return err
			}
		} else {
			if err := q.repo.CreateBranch(ctx, master, "origin/"+t.Destination.Name()); err != nil {
				return err
			}
		}

		entry := branch.QueueIntegrationBranchName(prID, v, featureName)
		if err := q.repo.CreateBranch(ctx, entry, master); err != nil {
			return err
		}
		// The previous lane's snapshot first, so the cross-lane inclusion
		// invariant holds for this pull request.
		if prev != "" {
			if err := q.repo.Merge(ctx, entry, prev); err != nil {
				return err
			}
		}
		if err := q.repo.Merge(ctx, entry, t.Branch); err != nil {
			return err
		}
		// Fast-forward the master onto the new snapshot.
		if err := q.repo.Merge(ctx, master, entry); err != nil {
			return err
		}

		q.recordEnqueued(prID, v, featureName, master, entry)
		pushed = append(pushed, entry, master)
		prev = entry
	}

	return git.PushWithRetry(ctx, q.repo, false, pushed...)
}

// recordEnqueued keeps the in-memory lanes truthful after an enqueue.
func (q *Collection) recordEnqueued(prID int, v branch.Version, featureName, master, entry string) {
	l := q.lane(v)
	qb, err := branch.Classify(q.repo, master)
	if err == nil {
		if mb, ok := qb.(*branch.QueueBranch); ok {
			l.Master = mb
		}
	}
	eb, err := branch.Classify(q.repo, entry)
	if err == nil {
		if ib, ok := eb.(*branch.QueueIntegrationBranch); ok {
			l.Entries = append([]*branch.QueueIntegrationBranch{ib}, l.Entries...)
		}
	}
	if l.Destination == nil {
		l.Destination = q.destinationsByVersion()[v]
	}
}

// MergeMergeable fast-forwards each destination branch onto its lane's
// newest mergeable snapshot, pushes all destinations atomically, and removes
// the consumed queue and integration branches. Requires a processed
// collection.
func (q *Collection) MergeMergeable(ctx context.Context) error {
	if q.state < stateProcessed {
		return wferrors.ErrQueuesNotValidated
	}
	if len(q.mergeable) == 0 {
		return nil
	}
	merged := make(map[int]bool, len(q.mergeable))
	for _, id := range q.mergeable {
		merged[id] = true
	}

	var dsts []string
	var consumed []*branch.QueueIntegrationBranch
	for _, l := range q.Lanes() {
		var newest *branch.QueueIntegrationBranch
		for _, e := range l.Entries {
			if merged[e.PRID] {
				if newest == nil {
					newest = e
				}
				consumed = append(consumed, e)
			}
		}
		if newest == nil {
			continue
		}
		// The snapshot descends from the destination, so this fast-forwards.
		if err := q.repo.Merge(ctx, l.Destination.Name(), newest.Name()); err != nil {
			return err
		}
		dsts = append(dsts, l.Destination.Name())
	}
	if len(dsts) == 0 {
		return nil
	}
	if err := git.PushWithRetry(ctx, q.repo, false, dsts...); err != nil {
		return err
	}

	for _, e := range consumed {
		if err := q.repo.Remove(ctx, e.Name(), false); err != nil {
			return err
		}
		// The companion integration branch served its purpose too.
		w := branch.IntegrationBranchName(e.Version, e.FeatureName)
		if exists, err := q.repo.RemoteBranchExists(w); err == nil && exists {
			_ = q.repo.Remove(ctx, w, false)
		}
	}
	for _, l := range q.Lanes() {
		kept := l.Entries[:0]
		for _, e := range l.Entries {
			if !merged[e.PRID] {
				kept = append(kept, e)
			}
		}
		l.Entries = kept
	}
	return nil
}
