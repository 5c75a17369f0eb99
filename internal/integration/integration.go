// Package integration maintains the per-destination integration branches for
// a change: creating them off the cascade's destinations, guarding their
// history against out-of-band rewrites, walking the cascade merge, and
// finally fast-forwarding the destinations when the change lands.
package integration

import (
	"context"
	"errors"

	"waterflow.dev/waterflow/internal/branch"
	wferrors "waterflow.dev/waterflow/internal/errors"
	"waterflow.dev/waterflow/internal/git"
	"waterflow.dev/waterflow/internal/merge"
	"waterflow.dev/waterflow/internal/output"
)

// Target pairs a cascade destination with the integration branch carrying the
// change toward it. The nearest destination gets no real branch: the source
// branch itself stands in (Ghost).
type Target struct {
	Destination branch.Destination
	Branch      string
	Ghost       bool
}

// CompanionPR is the slice of a pull request the skew check needs.
type CompanionPR interface {
	SourceBranch() string
	SourceCommit() string
	SetSourceCommit(sha string)
}

// Orchestrator drives the integration branches of one source branch across an
// ordered destination list.
type Orchestrator struct {
	repo     git.Repo
	source   branch.Branch
	targets  []Target
	strategy merge.Strategy
	log      *output.Splog
}

// NewOrchestrator builds the target list for the source branch over the
// finalized destinations. The consecutive strategy replaces the default
// robust one when octopus merges are disabled.
func NewOrchestrator(repo git.Repo, source branch.Branch, dsts []branch.Destination, disableOctopus bool, log *output.Splog) *Orchestrator {
	strategy := merge.Robust
	if disableOctopus {
		strategy = merge.Consecutive
	}
	o := &Orchestrator{repo: repo, source: source, strategy: strategy, log: log}
	for i, dst := range dsts {
		t := Target{Destination: dst}
		if i == 0 {
			t.Ghost = true
			t.Branch = source.Name()
		} else {
			t.Branch = branch.IntegrationBranchName(dst.DestinationVersion(), source.Name())
		}
		o.targets = append(o.targets, t)
	}
	return o
}

// Targets returns the ordered target list, nearest destination first.
func (o *Orchestrator) Targets() []Target { return o.targets }

// CreateBranches ensures every integration branch exists locally, creating
// missing ones off their destination.
func (o *Orchestrator) CreateBranches(ctx context.Context) error {
	for _, t := range o.targets {
		if t.Ghost {
			continue
		}
		exists, err := o.repo.RemoteBranchExists(t.Branch)
		if err != nil {
			return err
		}
		if exists {
			if err := o.repo.Checkout(ctx, t.Branch); err != nil {
				return err
			}
			continue
		}
		o.log.Debug("creating integration branch", "branch", t.Branch, "from", t.Destination.Name())
		if err := o.repo.CreateBranch(ctx, t.Branch, "origin/"+t.Destination.Name()); err != nil {
			return err
		}
	}
	return nil
}

// CheckHistory walks each integration branch and asserts every non-merge
// commit it adds over its destination is explained by the source branch, the
// previous integration branch, or the destination itself. Anything else means
// the source was force-pushed or the integration branch was tampered with,
// and merging it would smuggle unknown content into the cascade.
func (o *Orchestrator) CheckHistory(ctx context.Context) error {
	if len(o.targets) == 0 {
		return nil
	}
	sourceCommits, err := o.commitSet(o.source.Name(), o.targets[0].Destination.Name())
	if err != nil {
		return err
	}
	prev := o.source.Name()
	for _, t := range o.targets {
		if t.Ghost {
			continue
		}
		prevCommits, err := o.commitSet(prev, t.Destination.Name())
		if err != nil {
			return err
		}
		diff, err := o.repo.CommitDiff(t.Branch, t.Destination.Name(), true)
		if err != nil {
			return err
		}
		for _, c := range diff {
			if c.IsMerge() {
				continue
			}
			if sourceCommits[c.SHA] || prevCommits[c.SHA] {
				continue
			}
			return &wferrors.BranchHistoryMismatchError{
				IntegrationBranch: t.Branch,
				Commit:            c.SHA,
			}
		}
		prev = t.Branch
	}
	return nil
}

func (o *Orchestrator) commitSet(ref, base string) (map[string]bool, error) {
	diff, err := o.repo.CommitDiff(ref, base, true)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(diff))
	for _, c := range diff {
		set[c.SHA] = true
	}
	return set, nil
}

// CheckConflict proves the source branch merges cleanly into its nearest
// destination, independently of the cascade walk. This pins the conflict on
// the direct destination when there is one, which gives the user the most
// precise remediation target.
func (o *Orchestrator) CheckConflict(ctx context.Context) error {
	if len(o.targets) == 0 {
		return nil
	}
	dst := o.targets[0].Destination.Name()
	scratch := "tmp/conflict-check/" + o.source.Name()
	if err := o.repo.CreateBranch(ctx, scratch, "origin/"+dst); err != nil {
		return err
	}
	defer func() { _ = o.repo.Remove(context.Background(), scratch, true) }()

	if err := o.repo.Merge(ctx, scratch, o.source.Name()); err != nil {
		if errors.Is(err, wferrors.ErrMergeFailed) {
			return &wferrors.ConflictError{
				Branch:            o.source.Name(),
				Src:               o.source.Name(),
				Dst:               dst,
				DirectDestination: true,
			}
		}
		return err
	}
	return nil
}

// Update walks the cascade, merging the evolving previous integration result
// and the destination into each integration branch with the configured
// strategy. Conflicts carry the offending branch and both parents.
func (o *Orchestrator) Update(ctx context.Context) error {
	prev := o.source.Name()
	for i, t := range o.targets {
		if t.Ghost {
			continue
		}
		err := o.strategy(ctx, o.repo, t.Branch, prev, "origin/"+t.Destination.Name())
		if err != nil {
			if errors.Is(err, wferrors.ErrMergeFailed) {
				return &wferrors.ConflictError{
					Branch:            t.Branch,
					Src:               prev,
					Dst:               t.Destination.Name(),
					DirectDestination: i == 1,
				}
			}
			return err
		}
		prev = t.Branch
	}
	return nil
}

// CheckPullRequestSkew compares each companion pull request's host-reported
// tip against the locally known integration branch tip. A host that lags a
// freshly pushed tip is tolerated by patching the in-memory pull request; a
// host tip unreachable from local history means someone pushed out of band
// and the job must not merge it.
func (o *Orchestrator) CheckPullRequestSkew(ctx context.Context, prs []CompanionPR) error {
	for _, pr := range prs {
		localTip, err := o.repo.Tip(pr.SourceBranch())
		if err != nil {
			return err
		}
		remoteTip := pr.SourceCommit()
		if remoteTip == localTip {
			continue
		}
		known, err := o.repo.IncludesCommit(pr.SourceBranch(), remoteTip)
		if err != nil {
			return err
		}
		if known {
			// Read-after-write lag on the host side.
			o.log.Debug("patching stale pull request tip", "branch", pr.SourceBranch(), "host", remoteTip, "local", localTip)
			pr.SetSourceCommit(localTip)
			continue
		}
		return &wferrors.PullRequestSkewError{
			Branch:    pr.SourceBranch(),
			LocalTip:  localTip,
			RemoteTip: remoteTip,
		}
	}
	return nil
}

// PushBranches pushes every real integration branch, retrying transient
// remote failures.
func (o *Orchestrator) PushBranches(ctx context.Context) error {
	var branches []string
	for _, t := range o.targets {
		if !t.Ghost {
			branches = append(branches, t.Branch)
		}
	}
	if len(branches) == 0 {
		return nil
	}
	return git.PushWithRetry(ctx, o.repo, true, branches...)
}

// MergeToDestinations lands the change: every destination absorbs its
// integration result, all destinations are pushed in one atomic push, and the
// integration branches are removed. Called only when queueing is disabled.
func (o *Orchestrator) MergeToDestinations(ctx context.Context) error {
	var dsts []string
	for _, t := range o.targets {
		src := t.Branch
		if err := o.repo.Merge(ctx, t.Destination.Name(), src); err != nil {
			return err
		}
		dsts = append(dsts, t.Destination.Name())
	}
	if err := git.PushWithRetry(ctx, o.repo, false, dsts...); err != nil {
		return err
	}
	for _, t := range o.targets {
		if t.Ghost {
			continue
		}
		if err := o.repo.Remove(ctx, t.Branch, false); err != nil {
			return err
		}
	}
	return nil
}
