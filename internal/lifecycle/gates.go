package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"waterflow.dev/waterflow/internal/cascade"
	"waterflow.dev/waterflow/internal/githost"
	"waterflow.dev/waterflow/internal/integration"
	"waterflow.dev/waterflow/internal/queue"
)

// issueTypeForPrefix maps tracker issue types onto the branch prefix the
// change is expected to use.
var issueTypeForPrefix = map[string]string{
	"Bug":         "bugfix",
	"Improvement": "improvement",
	"Story":       "feature",
	"New Feature": "feature",
	"Epic":        "project",
	"Task":        "improvement",
}

// jiraCheck verifies the referenced issue exists, its type matches the branch
// prefix, and its fix versions cover every version the cascade targets.
func (j *Job) jiraCheck(ctx context.Context) (Outcome, bool) {
	s := j.Settings.Jira
	if !s.Enabled || j.Options.BypassJiraCheck || j.Tracker == nil {
		return Outcome{}, false
	}
	for _, p := range s.IgnoredPrefixes {
		if j.source.Prefix == p {
			return Outcome{}, false
		}
	}
	if j.source.IssueKey == "" {
		return Outcome{}, false
	}
	if len(s.ProjectKeys) > 0 && !contains(s.ProjectKeys, j.source.IssueProject) {
		return Outcome{}, false
	}

	issue, err := j.Tracker.FetchIssue(ctx, j.source.IssueKey)
	if err != nil {
		return failure(OutcomeIssueNotFound, 130,
			fmt.Sprintf("issue %s could not be fetched from the tracker", j.source.IssueKey), err), true
	}

	if want, ok := issueTypeForPrefix[issue.IssueType()]; ok && want != j.source.Prefix {
		return failure(OutcomeIssueTypeMismatch, 131,
			fmt.Sprintf("issue %s is a %s and belongs on a %s/ branch, not %s/",
				issue.Key, issue.IssueType(), want, j.source.Prefix), nil), true
	}

	fixVersions := issue.FixVersionNames()
	for _, target := range j.csc.TargetVersions() {
		if !contains(fixVersions, target) {
			return failure(OutcomeFixVersionMismatch, 132,
				fmt.Sprintf("issue %s fix versions %v do not cover target version %s",
					issue.Key, fixVersions, target), nil), true
		}
	}
	return Outcome{}, false
}

// companionPullRequests refreshes the pull requests attached to the
// integration branches and runs the skew check over them.
func (j *Job) companionPullRequests(ctx context.Context) (Outcome, bool) {
	var companions []integration.CompanionPR
	for _, t := range j.orch.Targets() {
		if t.Ghost {
			continue
		}
		pr, err := j.Host.FindPullRequest(ctx, t.Branch, t.Destination.Name())
		if err != nil {
			return internalError(err), true
		}
		if pr == nil {
			if !j.Options.CreatePullRequests {
				continue
			}
			title := fmt.Sprintf("Integration of %s into %s", j.pr.Source, t.Destination.Name())
			pr, err = j.Host.CreatePullRequest(ctx, title, j.pr.Description, t.Branch, t.Destination.Name())
			if err != nil {
				return internalError(err), true
			}
		}
		companions = append(companions, pr)
	}
	if err := j.orch.CheckPullRequestSkew(ctx, companions); err != nil {
		return j.outcomeFromError(err), true
	}
	return Outcome{}, false
}

// approvalGate enforces the author, peer and leader approval requirements,
// honoring the unanimity option and the per-requirement bypasses.
func (j *Job) approvalGate(ctx context.Context) (Outcome, bool) {
	g := j.Settings.Gating
	if j.Options.BypassAuthorApproval && j.Options.BypassPeerApproval && j.Options.BypassLeaderApproval {
		return Outcome{}, false
	}

	reviews, err := j.Host.ListReviews(ctx, j.PRID)
	if err != nil {
		return internalError(err), true
	}

	approvers := make(map[string]bool)
	for _, r := range reviews {
		if r.ChangesRequested {
			return failure(OutcomeApprovalRequired, 110,
				fmt.Sprintf("%s requested changes", r.Author), nil), true
		}
		if r.Approved {
			approvers[r.Author] = true
		}
	}

	if j.Options.Unanimity {
		for _, r := range reviews {
			if !r.Approved {
				return failure(OutcomeApprovalRequired, 110,
					fmt.Sprintf("unanimity requested and %s has not approved", r.Author), nil), true
			}
		}
	}

	if g.NeedAuthorApproval && !j.Options.BypassAuthorApproval && !approvers[j.pr.Author] {
		return failure(OutcomeApprovalRequired, 110, "author approval required", nil), true
	}

	if !j.Options.BypassPeerApproval {
		peers := 0
		for a := range approvers {
			if a != j.pr.Author {
				peers++
			}
		}
		if peers < g.RequiredPeerApprovals {
			return failure(OutcomeApprovalRequired, 110,
				fmt.Sprintf("%d peer approvals required, got %d", g.RequiredPeerApprovals, peers), nil), true
		}
	}

	if !j.Options.BypassLeaderApproval && g.RequiredLeaderApprovals > 0 {
		leaders := 0
		for a := range approvers {
			if j.Settings.IsLeader(a) {
				leaders++
			}
		}
		if leaders < g.RequiredLeaderApprovals {
			return failure(OutcomeApprovalRequired, 110,
				fmt.Sprintf("%d leader approvals required, got %d", g.RequiredLeaderApprovals, leaders), nil), true
		}
	}

	return Outcome{}, false
}

// buildGate checks the build status on every integration branch tip. The
// ghost target is covered by the pull request's own build on the source tip.
func (j *Job) buildGate(ctx context.Context) (Outcome, bool) {
	if j.Options.BypassBuildStatus {
		return Outcome{}, false
	}
	key := j.Settings.Build.Key
	worst := githost.BuildSuccessful
	for _, t := range j.orch.Targets() {
		tip, err := j.Repo.Tip(t.Branch)
		if err != nil {
			return internalError(err), true
		}
		status, err := j.Host.GetBuildStatus(ctx, tip, key)
		if err != nil {
			return internalError(err), true
		}
		if rank(status) > rank(worst) {
			worst = status
		}
	}
	switch worst {
	case githost.BuildSuccessful:
		return Outcome{}, false
	case githost.BuildInProgress:
		return silent(OutcomeBuildInProgress, "build in progress"), true
	case githost.BuildNotStarted:
		return failure(OutcomeBuildNotStarted, 112, "build not started on the integration branches", nil), true
	default:
		return failure(OutcomeBuildFailed, 111,
			fmt.Sprintf("build did not succeed (%s)", strings.ToLower(string(worst))), nil), true
	}
}

// rank orders build statuses by severity so one aggregate verdict covers all
// integration branches.
func rank(s githost.BuildStatus) int {
	switch s {
	case githost.BuildSuccessful:
		return 0
	case githost.BuildInProgress:
		return 1
	case githost.BuildNotStarted:
		return 2
	case githost.BuildStopped:
		return 3
	default: // FAILED
		return 4
	}
}

// enqueue validates the current queue state and appends this pull request's
// integration snapshots to it.
func (j *Job) enqueue(ctx context.Context) Outcome {
	// The queue spans every lane of the repository, not just the lanes this
	// pull request targets, so it gets its own unfinalized cascade.
	full, err := cascade.BuildFromRepo(j.Repo)
	if err != nil {
		return j.outcomeFromError(err)
	}
	qc := queue.NewCollection(j.Repo, full, j.Host, j.Settings.Build.Key, j.Log)
	if err := qc.Build(ctx); err != nil {
		return j.outcomeFromError(err)
	}
	if err := qc.Validate(ctx); err != nil {
		return j.outcomeFromError(err)
	}
	var targets []queue.EnqueueTarget
	for _, t := range j.orch.Targets() {
		targets = append(targets, queue.EnqueueTarget{Destination: t.Destination, Branch: t.Branch})
	}
	if err := qc.Enqueue(ctx, j.PRID, j.source.Name(), targets); err != nil {
		return j.outcomeFromError(err)
	}
	if j.Snapshot != nil {
		j.Snapshot.setQueue(qc.Lanes())
	}
	return queued(j.PRID)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
