// Package queue implements the merge queue: one lane per destination line,
// encoded durably as git branches (q/<version> masters plus
// q/<prId>/<version>/<feature> entries) so the queue's order is verifiable
// from the repository alone.
package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"waterflow.dev/waterflow/internal/branch"
	"waterflow.dev/waterflow/internal/cascade"
	wferrors "waterflow.dev/waterflow/internal/errors"
	"waterflow.dev/waterflow/internal/git"
	"waterflow.dev/waterflow/internal/githost"
	"waterflow.dev/waterflow/internal/output"
)

// BuildStatusProvider reports the build status recorded for a commit.
// Satisfied by githost.Client.
type BuildStatusProvider interface {
	GetBuildStatus(ctx context.Context, sha, key string) (githost.BuildStatus, error)
}

// Lane is one destination line's queue: a master pointer plus the stack of
// queued integration snapshots, newest first once finalized.
type Lane struct {
	Version     branch.Version
	Master      *branch.QueueBranch
	Entries     []*branch.QueueIntegrationBranch
	Destination branch.Destination
}

// oldestFirst returns the lane's entries in enqueue order.
func (l *Lane) oldestFirst() []*branch.QueueIntegrationBranch {
	out := make([]*branch.QueueIntegrationBranch, len(l.Entries))
	for i, e := range l.Entries {
		out[len(l.Entries)-1-i] = e
	}
	return out
}

type state int

const (
	stateUnbuilt state = iota
	stateBuilt
	stateValidated
	stateProcessed
)

// Collection holds every lane reconstructed from the repository. Calls must
// follow the Build, Validate, Process order; the state is enforced because a
// mergeable-subset computed from unvalidated lanes is meaningless.
type Collection struct {
	repo     git.Repo
	csc      *cascade.Cascade
	builds   BuildStatusProvider
	buildKey string
	log      *output.Splog

	lanes     map[branch.Version]*Lane
	versions  []branch.Version
	state     state
	mergeable []int
}

// NewCollection creates an unbuilt collection over the repository and a
// cascade built (not finalized) from the same repository.
func NewCollection(repo git.Repo, csc *cascade.Cascade, builds BuildStatusProvider, buildKey string, log *output.Splog) *Collection {
	return &Collection{
		repo:     repo,
		csc:      csc,
		builds:   builds,
		buildKey: buildKey,
		log:      log,
		lanes:    make(map[branch.Version]*Lane),
	}
}

// Build reconstructs the lanes from the remote queue branches. Every queue
// branch is checked out locally so the later ancestry queries can resolve it.
func (q *Collection) Build(ctx context.Context) error {
	names, err := q.repo.RemoteBranches()
	if err != nil {
		return err
	}
	for _, name := range names {
		if !strings.HasPrefix(name, "q/") {
			continue
		}
		b, err := branch.Classify(q.repo, name)
		if err != nil {
			return fmt.Errorf("%w: %s", wferrors.ErrInvalidQueueBranch, name)
		}
		if err := q.addBranch(ctx, b); err != nil {
			return err
		}
	}
	if err := q.finalize(); err != nil {
		return err
	}
	q.state = stateBuilt
	return nil
}

// AddBranch buckets one queue branch into its lane. Anything that is not a
// queue master or a queue integration branch is rejected.
func (q *Collection) addBranch(ctx context.Context, b branch.Branch) error {
	switch br := b.(type) {
	case *branch.QueueBranch:
		if err := q.repo.Checkout(ctx, br.Name()); err != nil {
			return err
		}
		q.lane(br.Version).Master = br
	case *branch.QueueIntegrationBranch:
		if err := q.repo.Checkout(ctx, br.Name()); err != nil {
			return err
		}
		lane := q.lane(br.Version)
		lane.Entries = append(lane.Entries, br)
	default:
		return fmt.Errorf("%w: %s", wferrors.ErrInvalidQueueBranch, b.Name())
	}
	return nil
}

func (q *Collection) lane(v branch.Version) *Lane {
	if l, ok := q.lanes[v]; ok {
		return l
	}
	l := &Lane{Version: v}
	q.lanes[v] = l
	q.versions = append(q.versions, v)
	return l
}

// finalize sorts the lanes by version and each lane's entries newest first by
// ancestor-inclusion, and binds each lane to its destination branch.
func (q *Collection) finalize() error {
	sort.Slice(q.versions, func(i, j int) bool {
		return q.versions[i].Compare(q.versions[j]) < 0
	})
	dsts := q.destinationsByVersion()
	for _, v := range q.versions {
		l := q.lanes[v]
		l.Destination = dsts[v]
		if err := sortNewestFirst(l.Entries); err != nil {
			return err
		}
	}
	return nil
}

func (q *Collection) destinationsByVersion() map[branch.Version]branch.Destination {
	out := make(map[branch.Version]branch.Destination)
	for _, path := range q.csc.MergePaths() {
		for _, dst := range path {
			out[dst.DestinationVersion()] = dst
		}
	}
	return out
}

// sortNewestFirst is an insertion sort: the comparator runs git ancestry
// queries and can fail, which sort.Slice cannot express.
func sortNewestFirst(entries []*branch.QueueIntegrationBranch) error {
	sorted := make([]*branch.QueueIntegrationBranch, 0, len(entries))
	for _, e := range entries {
		pos := len(sorted)
		for i, s := range sorted {
			newer, err := e.NewerThan(s)
			if err != nil {
				return err
			}
			if newer {
				pos = i
				break
			}
		}
		sorted = append(sorted, nil)
		copy(sorted[pos+1:], sorted[pos:])
		sorted[pos] = e
	}
	copy(entries, sorted)
	return nil
}

// Lanes returns the lanes in ascending version order.
func (q *Collection) Lanes() []*Lane {
	out := make([]*Lane, 0, len(q.versions))
	for _, v := range q.versions {
		out = append(out, q.lanes[v])
	}
	return out
}

// QueuedPRs returns every queued pull request id, oldest first. The newest
// lane carries every queued change, because all merge paths terminate on the
// newest development line.
func (q *Collection) QueuedPRs() []int {
	for i := len(q.versions) - 1; i >= 0; i-- {
		l := q.lanes[q.versions[i]]
		if len(l.Entries) == 0 {
			continue
		}
		var ids []int
		for _, e := range l.oldestFirst() {
			ids = append(ids, e.PRID)
		}
		return ids
	}
	return nil
}

// MergeablePRs returns the result of the last Process call.
func (q *Collection) MergeablePRs() ([]int, error) {
	if q.state < stateProcessed {
		return nil, wferrors.ErrQueuesNotValidated
	}
	return q.mergeable, nil
}
