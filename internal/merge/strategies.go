// Package merge implements the multi-parent merge strategies used to update
// integration branches: consecutive, octopus, and a robust combination that
// hedges against octopus-merge engine bugs.
package merge

import (
	"context"
	"errors"

	wferrors "waterflow.dev/waterflow/internal/errors"
	"waterflow.dev/waterflow/internal/git"
)

// Strategy merges two sources into a destination branch.
type Strategy func(ctx context.Context, repo git.Repo, dst, src1, src2 string) error

// Consecutive merges src1 then src2 into dst. On conflict the destination is
// reset and the merge retried in the opposite order; if that also conflicts,
// the original failure is propagated.
func Consecutive(ctx context.Context, repo git.Repo, dst, src1, src2 string) error {
	start, err := repo.Tip(dst)
	if err != nil {
		return err
	}

	firstErr := mergeBoth(ctx, repo, dst, src1, src2)
	if firstErr == nil {
		return nil
	}
	if !errors.Is(firstErr, wferrors.ErrMergeFailed) {
		return firstErr
	}

	if err := repo.ResetHard(ctx, dst, start); err != nil {
		return err
	}
	retryErr := mergeBoth(ctx, repo, dst, src2, src1)
	if retryErr == nil {
		return nil
	}
	if err := repo.ResetHard(ctx, dst, start); err != nil {
		return err
	}
	return firstErr
}

func mergeBoth(ctx context.Context, repo git.Repo, dst, first, second string) error {
	if err := repo.Merge(ctx, dst, first); err != nil {
		return err
	}
	return repo.Merge(ctx, dst, second)
}

// Octopus attempts a genuine three-way merge of src1 and src2 into dst: a
// single commit with multiple parents. On conflict the argument order is
// swapped once; on repeated conflict the original failure is propagated.
// No automatic fallback to Consecutive here; callers choose.
func Octopus(ctx context.Context, repo git.Repo, dst, src1, src2 string) error {
	start, err := repo.Tip(dst)
	if err != nil {
		return err
	}

	firstErr := repo.Merge(ctx, dst, src1, src2)
	if firstErr == nil {
		return nil
	}
	if !errors.Is(firstErr, wferrors.ErrMergeFailed) {
		return firstErr
	}

	if err := repo.ResetHard(ctx, dst, start); err != nil {
		return err
	}
	retryErr := repo.Merge(ctx, dst, src2, src1)
	if retryErr == nil {
		return nil
	}
	if err := repo.ResetHard(ctx, dst, start); err != nil {
		return err
	}
	return firstErr
}

// Robust runs both Octopus and Consecutive, swap-order retries included, into
// disjoint scratch branches off the same starting point and compares the
// resulting trees. When the octopus merge conflicted, or the two results
// differ in tree content, the consecutive result wins: correctness over
// compactness. Octopus merge engines have silently produced wrong trees
// without raising a conflict, and the comparison is what catches that. Both
// scratch branches are always cleaned up.
func Robust(ctx context.Context, repo git.Repo, dst, src1, src2 string) error {
	octScratch := "tmp/octopus/" + dst
	conScratch := "tmp/consecutive/" + dst

	if err := repo.CreateBranch(ctx, octScratch, dst); err != nil {
		return err
	}
	defer func() { _ = repo.Remove(context.Background(), octScratch, true) }()
	if err := repo.CreateBranch(ctx, conScratch, dst); err != nil {
		return err
	}
	defer func() { _ = repo.Remove(context.Background(), conScratch, true) }()

	octErr := Octopus(ctx, repo, octScratch, src1, src2)
	if octErr != nil && !errors.Is(octErr, wferrors.ErrMergeFailed) {
		return octErr
	}

	if conErr := Consecutive(ctx, repo, conScratch, src1, src2); conErr != nil {
		if !errors.Is(conErr, wferrors.ErrMergeFailed) {
			return conErr
		}
		// The conservative strategy conflicting means the conflict is real.
		return wferrors.NewMergeFailedError(dst, src1, src2)
	}

	useConsecutive := octErr != nil
	if !useConsecutive {
		equal, err := repo.TreesEqual(ctx, octScratch, conScratch)
		if err != nil {
			return err
		}
		useConsecutive = !equal
	}

	result := octScratch
	if useConsecutive {
		result = conScratch
	}
	// The scratch result descends from dst, so this merge fast-forwards.
	return repo.Merge(ctx, dst, result)
}
