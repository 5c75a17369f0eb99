package queue

import (
	"context"
	"fmt"

	"waterflow.dev/waterflow/internal/branch"
	wferrors "waterflow.dev/waterflow/internal/errors"
)

// Validate runs the horizontal (per lane) and vertical (per merge path)
// passes and aggregates every violated invariant into one error, so a
// corrupted queue can be diagnosed in a single report. Validation failures
// are fatal to the current job: they mean the durable queue state itself is
// untrustworthy.
func (q *Collection) Validate(ctx context.Context) error {
	if q.state < stateBuilt {
		return wferrors.ErrQueuesNotBuilt
	}
	var errs []*wferrors.QueueValidationError
	for _, l := range q.Lanes() {
		errs = append(errs, q.validateLane(ctx, l)...)
	}
	for _, path := range q.csc.MergePaths() {
		errs = append(errs, q.validatePath(path)...)
	}
	if len(errs) > 0 {
		return &wferrors.IncoherentQueuesError{Errors: errs}
	}
	q.state = stateValidated
	return nil
}

func (q *Collection) validateLane(ctx context.Context, l *Lane) []*wferrors.QueueValidationError {
	laneID := l.Version.String()
	masterName := branch.QueueBranchName(l.Version)

	if l.Master == nil {
		return []*wferrors.QueueValidationError{{
			Code:   wferrors.QueueMasterMissing,
			Lane:   laneID,
			Branch: masterName,
			Detail: "lane has queued integration branches but no master queue branch",
		}}
	}
	if l.Destination == nil {
		return []*wferrors.QueueValidationError{{
			Code:   wferrors.QueueMasterNotOnDestination,
			Lane:   laneID,
			Branch: masterName,
			Detail: "no destination branch exists for this lane",
		}}
	}
	// Ancestry queries below need the destination resolvable locally.
	if err := q.repo.Checkout(ctx, l.Destination.Name()); err != nil {
		return []*wferrors.QueueValidationError{{
			Code:   wferrors.QueueMasterNotOnDestination,
			Lane:   laneID,
			Branch: l.Destination.Name(),
			Detail: err.Error(),
		}}
	}

	var errs []*wferrors.QueueValidationError

	onDst, err := q.repo.IsAncestor(l.Destination.Name(), l.Master.Name())
	if err != nil || !onDst {
		errs = append(errs, &wferrors.QueueValidationError{
			Code:   wferrors.QueueMasterNotOnDestination,
			Lane:   laneID,
			Branch: l.Master.Name(),
			Detail: fmt.Sprintf("master does not descend from %s", l.Destination.Name()),
		})
	}

	errs = append(errs, q.validateMasterPosition(l, laneID)...)
	errs = append(errs, q.validateInclusionChain(l, laneID)...)
	return errs
}

// validateMasterPosition checks the master points exactly where the lane's
// content says it should: the destination tip for an empty lane, the newest
// entry otherwise.
func (q *Collection) validateMasterPosition(l *Lane, laneID string) []*wferrors.QueueValidationError {
	masterTip, err := q.repo.Tip(l.Master.Name())
	if err != nil {
		return []*wferrors.QueueValidationError{{
			Code: wferrors.QueueMasterDiverged, Lane: laneID, Branch: l.Master.Name(), Detail: err.Error(),
		}}
	}

	if len(l.Entries) == 0 {
		dstTip, err := q.repo.Tip(l.Destination.Name())
		if err == nil && dstTip == masterTip {
			return nil
		}
		return []*wferrors.QueueValidationError{{
			Code:   wferrors.QueueMasterNotAtDestinationTip,
			Lane:   laneID,
			Branch: l.Master.Name(),
			Detail: fmt.Sprintf("empty lane master is not at the tip of %s", l.Destination.Name()),
		}}
	}

	newest := l.Entries[0]
	newestTip, err := q.repo.Tip(newest.Name())
	if err == nil && newestTip == masterTip {
		return nil
	}

	late, _ := q.repo.IsAncestor(l.Master.Name(), newest.Name())
	if late {
		return []*wferrors.QueueValidationError{{
			Code:   wferrors.QueueMasterLate,
			Lane:   laneID,
			Branch: l.Master.Name(),
			Detail: fmt.Sprintf("master is behind %s", newest.Name()),
		}}
	}
	ahead, _ := q.repo.IsAncestor(newest.Name(), l.Master.Name())
	if ahead {
		return []*wferrors.QueueValidationError{{
			Code:   wferrors.QueueMasterAhead,
			Lane:   laneID,
			Branch: l.Master.Name(),
			Detail: fmt.Sprintf("master is ahead of %s", newest.Name()),
		}}
	}
	return []*wferrors.QueueValidationError{{
		Code:   wferrors.QueueMasterDiverged,
		Lane:   laneID,
		Branch: l.Master.Name(),
		Detail: fmt.Sprintf("master and %s have diverged", newest.Name()),
	}}
}

// validateInclusionChain checks the lane's entries form an ancestry chain and
// that the oldest entry descends from the destination branch.
func (q *Collection) validateInclusionChain(l *Lane, laneID string) []*wferrors.QueueValidationError {
	var errs []*wferrors.QueueValidationError
	for i := 0; i+1 < len(l.Entries); i++ {
		newer, older := l.Entries[i], l.Entries[i+1]
		ok, err := q.repo.IsAncestor(older.Name(), newer.Name())
		if err != nil || !ok {
			errs = append(errs, &wferrors.QueueValidationError{
				Code:   wferrors.QueueInclusionBroken,
				Lane:   laneID,
				Branch: newer.Name(),
				Detail: fmt.Sprintf("does not include %s", older.Name()),
			})
		}
	}
	if len(l.Entries) > 0 && l.Destination != nil {
		oldest := l.Entries[len(l.Entries)-1]
		ok, err := q.repo.IsAncestor(l.Destination.Name(), oldest.Name())
		if err != nil || !ok {
			errs = append(errs, &wferrors.QueueValidationError{
				Code:   wferrors.QueueInclusionBroken,
				Lane:   laneID,
				Branch: oldest.Name(),
				Detail: fmt.Sprintf("oldest entry does not descend from %s", l.Destination.Name()),
			})
		}
	}
	return errs
}

// validatePath replays the newest lane's pull-request order through every
// lane on one merge path. A pull request enters the cascade at some lane and
// must then be present, in the same relative order, on every later lane of
// the path, and each lane's entry for it must be included in the next lane's
// entry.
func (q *Collection) validatePath(path []branch.Destination) []*wferrors.QueueValidationError {
	var lanes []*Lane
	for _, dst := range path {
		if l, ok := q.lanes[dst.DestinationVersion()]; ok {
			lanes = append(lanes, l)
		}
	}
	if len(lanes) == 0 {
		return nil
	}

	newest := lanes[len(lanes)-1]
	order := newest.oldestFirst()

	cursors := make([][]*branch.QueueIntegrationBranch, len(lanes))
	for i, l := range lanes {
		cursors[i] = l.oldestFirst()
	}

	var errs []*wferrors.QueueValidationError
	for _, want := range order {
		var prev *branch.QueueIntegrationBranch
		seen := false
		for i, l := range lanes {
			var cur *branch.QueueIntegrationBranch
			if len(cursors[i]) > 0 {
				cur = cursors[i][0]
			}
			if cur == nil || cur.PRID != want.PRID {
				if seen {
					errs = append(errs, &wferrors.QueueValidationError{
						Code:   wferrors.QueueOrderInconsistent,
						Lane:   l.Version.String(),
						Detail: fmt.Sprintf("pull request %d expected next on this lane", want.PRID),
					})
				}
				continue
			}
			cursors[i] = cursors[i][1:]
			if prev != nil {
				ok, err := q.repo.IsAncestor(prev.Name(), cur.Name())
				if err != nil || !ok {
					errs = append(errs, &wferrors.QueueValidationError{
						Code:   wferrors.QueueNotTransitive,
						Lane:   l.Version.String(),
						Branch: cur.Name(),
						Detail: fmt.Sprintf("does not include %s", prev.Name()),
					})
				}
			}
			prev = cur
			seen = true
		}
		if !seen {
			errs = append(errs, &wferrors.QueueValidationError{
				Code:   wferrors.QueueOrderInconsistent,
				Detail: fmt.Sprintf("pull request %d is queued out of order", want.PRID),
			})
		}
	}
	for i, l := range lanes {
		for _, leftover := range cursors[i] {
			errs = append(errs, &wferrors.QueueValidationError{
				Code:   wferrors.QueueOrderInconsistent,
				Lane:   l.Version.String(),
				Branch: leftover.Name(),
				Detail: "entry not accounted for by the merge path walk",
			})
		}
	}
	return errs
}
