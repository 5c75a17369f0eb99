// Package lifecycle drives one pull request through the full merge pipeline:
// early filters, cascade construction, integration branches, approval and
// build gates, and finally queueing or merging. The pipeline is stateless
// across invocations: every run re-enters at the top and re-derives all state
// from the repository and the git host, so re-running on an already-merged
// pull request is a no-op, not an error.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"waterflow.dev/waterflow/internal/branch"
	"waterflow.dev/waterflow/internal/cascade"
	"waterflow.dev/waterflow/internal/config"
	wferrors "waterflow.dev/waterflow/internal/errors"
	"waterflow.dev/waterflow/internal/git"
	"waterflow.dev/waterflow/internal/githost"
	"waterflow.dev/waterflow/internal/integration"
	"waterflow.dev/waterflow/internal/jira"
	"waterflow.dev/waterflow/internal/output"
)

// Job is one lifecycle run over one pull request.
type Job struct {
	Settings *config.Settings
	Repo     git.Repo
	Host     githost.Client
	Tracker  jira.Tracker
	Log      *output.Splog
	Snapshot *Snapshot

	PRID     int
	Revision string
	Options  Options

	pr     *githost.PullRequest
	source *branch.FeatureBranch
	csc    *cascade.Cascade
	orch   *integration.Orchestrator
}

// Run walks the pipeline to its terminal outcome.
func (j *Job) Run(ctx context.Context) Outcome {
	j.setState("received")
	pr, err := j.Host.GetPullRequest(ctx, j.PRID)
	if err != nil {
		return internalError(err)
	}
	j.pr = pr

	j.setState("filtered")
	if !pr.Open() || !j.managedDestination(pr.Destination) {
		return silent(OutcomeNotMyJob, "pull request is closed or targets an unmanaged branch")
	}
	src, err := branch.Classify(j.Repo, pr.Source)
	if err != nil {
		return silent(OutcomeNotMyJob, fmt.Sprintf("source branch %s is not managed", pr.Source))
	}
	feature, ok := src.(*branch.FeatureBranch)
	if !ok {
		return silent(OutcomeNotMyJob, fmt.Sprintf("source branch %s is not a feature branch", pr.Source))
	}
	j.source = feature

	// The clone is exclusively owned by this job, reset fresh so no job ever
	// observes another job's half-finished local state.
	if err := j.Repo.Clone(ctx); err != nil {
		return internalError(err)
	}
	if err := j.Repo.Fetch(ctx); err != nil {
		return internalError(err)
	}

	if out, done := j.earlyChecks(ctx); done {
		return out
	}

	j.setState("greeted")
	j.setState("comments-applied")
	if out, done := j.afterPullRequestGate(ctx); done {
		return out
	}

	j.setState("cascade-built")
	if out, done := j.buildCascade(ctx); done {
		return out
	}

	j.setState("compatibility-checked")
	if out, done := j.compatibilityCheck(); done {
		return out
	}

	j.setState("issue-tracker-checked")
	if out, done := j.jiraCheck(ctx); done {
		return out
	}

	j.setState("integration-branches-created")
	j.orch = integration.NewOrchestrator(j.Repo, j.source, j.csc.DestinationBranches(),
		j.Settings.Merge.DisableOctopus || j.Options.NoOctopus, j.Log)
	if err := j.orch.CheckConflict(ctx); err != nil {
		return j.outcomeFromError(err)
	}
	if err := j.orch.CreateBranches(ctx); err != nil {
		return j.outcomeFromError(err)
	}

	j.setState("in-sync-checked")
	if err := j.orch.CheckHistory(ctx); err != nil {
		return j.outcomeFromError(err)
	}

	j.setState("integration-branches-updated")
	if err := j.orch.Update(ctx); err != nil {
		return j.outcomeFromError(err)
	}
	if err := j.orch.PushBranches(ctx); err != nil {
		return j.outcomeFromError(err)
	}

	j.setState("companion-prs-checked")
	if out, done := j.companionPullRequests(ctx); done {
		return out
	}

	j.setState("approvals-checked")
	if out, done := j.approvalGate(ctx); done {
		return out
	}

	j.setState("build-status-checked")
	if out, done := j.buildGate(ctx); done {
		return out
	}

	if j.Options.Wait {
		return silent(OutcomeWaiting, "wait requested, not merging")
	}

	if j.Settings.Queue.Enabled {
		j.setState("queued")
		return j.enqueue(ctx)
	}

	j.setState("merged")
	if err := j.orch.MergeToDestinations(ctx); err != nil {
		return j.outcomeFromError(err)
	}
	return success(j.PRID, j.csc.TargetVersions())
}

func (j *Job) managedDestination(name string) bool {
	prefix, _, _ := strings.Cut(name, "/")
	for _, p := range j.Settings.Repository.DestinationPrefixes {
		if p == prefix {
			return true
		}
	}
	return false
}

// earlyChecks handles the cheap terminal conditions: missing branches, an
// already-merged source, and a source too far behind its destination.
func (j *Job) earlyChecks(ctx context.Context) (Outcome, bool) {
	dstExists, err := j.Repo.RemoteBranchExists(j.pr.Destination)
	if err != nil {
		return internalError(err), true
	}
	if !dstExists {
		return failure(OutcomeWrongDestination, 125,
			fmt.Sprintf("destination branch %s does not exist", j.pr.Destination), nil), true
	}
	srcExists, err := j.Repo.RemoteBranchExists(j.pr.Source)
	if err != nil {
		return internalError(err), true
	}
	if !srcExists {
		return silent(OutcomeNothingToDo, "source branch is gone"), true
	}

	srcTip, err := j.Repo.Tip("origin/" + j.pr.Source)
	if err != nil {
		return internalError(err), true
	}
	merged, err := j.Repo.IncludesCommit("origin/"+j.pr.Destination, srcTip)
	if err != nil {
		return internalError(err), true
	}
	if merged {
		return silent(OutcomeNothingToDo, "destination already contains the source tip"), true
	}

	if max := j.Settings.Merge.MaxCommitsBehind; max > 0 {
		behind, err := j.Repo.CommitCount("origin/"+j.pr.Source, "origin/"+j.pr.Destination)
		if err != nil {
			return internalError(err), true
		}
		if behind > max {
			return failure(OutcomeSourceBranchTooOld, 124,
				fmt.Sprintf("source branch is %d commits behind %s (limit %d)", behind, j.pr.Destination, max), nil), true
		}
	}
	return Outcome{}, false
}

// afterPullRequestGate holds the job while a declared prerequisite pull
// request is still open.
func (j *Job) afterPullRequestGate(ctx context.Context) (Outcome, bool) {
	if j.Options.AfterPullRequest == 0 {
		return Outcome{}, false
	}
	dep, err := j.Host.GetPullRequest(ctx, j.Options.AfterPullRequest)
	if err != nil {
		return internalError(err), true
	}
	if dep.State != "MERGED" {
		return silent(OutcomeWaiting,
			fmt.Sprintf("waiting for pull request %d to merge first", dep.Number)), true
	}
	return Outcome{}, false
}

func (j *Job) buildCascade(ctx context.Context) (Outcome, bool) {
	csc, err := cascade.BuildFromRepo(j.Repo)
	if err != nil {
		return j.outcomeFromError(err), true
	}
	dst, err := branch.Classify(j.Repo, j.pr.Destination)
	if err != nil {
		return failure(OutcomeWrongDestination, 125,
			fmt.Sprintf("destination branch %s is not a managed destination", j.pr.Destination), err), true
	}
	if err := csc.Finalize(dst); err != nil {
		return j.outcomeFromError(err), true
	}
	// The self-containment walk below runs local ancestry queries.
	for _, d := range csc.DestinationBranches() {
		if err := j.Repo.Checkout(ctx, d.Name()); err != nil {
			return internalError(err), true
		}
	}
	if err := csc.Validate(); err != nil {
		return j.outcomeFromError(err), true
	}
	j.csc = csc
	return Outcome{}, false
}

// compatibilityCheck blocks new-feature work from targeting a stabilization
// branch, which only takes fixes. Admins can override.
func (j *Job) compatibilityCheck() (Outcome, bool) {
	if j.Options.BypassIncompatibleBranch {
		return Outcome{}, false
	}
	dsts := j.csc.DestinationBranches()
	if len(dsts) == 0 {
		return Outcome{}, false
	}
	if _, stab := dsts[0].(*branch.StabilizationBranch); !stab {
		return Outcome{}, false
	}
	switch j.source.Prefix {
	case "feature", "improvement", "project":
		return failure(OutcomeIncompatibleBranch, 126,
			fmt.Sprintf("a %s branch cannot target stabilization branch %s", j.source.Prefix, dsts[0].Name()), nil), true
	}
	return Outcome{}, false
}

// outcomeFromError maps the typed domain errors onto their terminal
// outcomes. Anything unrecognized is an internal fault and is surfaced with
// full detail.
func (j *Job) outcomeFromError(err error) Outcome {
	var conflict *wferrors.ConflictError
	if errors.As(err, &conflict) {
		return failure(OutcomeConflict, 120, conflict.Error(), err)
	}
	var mismatch *wferrors.BranchHistoryMismatchError
	if errors.As(err, &mismatch) {
		return failure(OutcomeHistoryMismatch, 121, mismatch.Error(), err)
	}
	var skew *wferrors.PullRequestSkewError
	if errors.As(err, &skew) {
		return failure(OutcomePullRequestSkew, 122, skew.Error(), err)
	}
	var incoherent *wferrors.IncoherentQueuesError
	if errors.As(err, &incoherent) {
		return failure(OutcomeIncoherentQueues, 123, incoherent.Error(), err)
	}
	switch {
	case errors.Is(err, wferrors.ErrDevBranchDoesNotExist),
		errors.Is(err, wferrors.ErrNotASingleDevBranch):
		return failure(OutcomeWrongDestination, 125, err.Error(), err)
	case errors.Is(err, wferrors.ErrDevBranchesNotSelfContained),
		errors.Is(err, wferrors.ErrMultipleStabilizationBranches),
		errors.Is(err, wferrors.ErrDeprecatedStabilizationBranch),
		errors.Is(err, wferrors.ErrVersionMismatch):
		return failure(OutcomeInternalError, 127, "repository cascade is in an invalid state", err)
	case errors.Is(err, wferrors.ErrMergeFailed):
		return failure(OutcomeConflict, 120, err.Error(), err)
	}
	return internalError(err)
}

func (j *Job) setState(state string) {
	if j.Snapshot != nil {
		j.Snapshot.setJobState(j.PRID, state)
	}
	j.Log.Debug("lifecycle state", "pr", j.PRID, "state", state)
}
