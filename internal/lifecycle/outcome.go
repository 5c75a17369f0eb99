package lifecycle

import "fmt"

// OutcomeKind is the closed set of ways a job can terminate. Every run ends
// in exactly one of these; the caller switches on the kind to decide whether
// and what to post on the pull request.
type OutcomeKind int

const (
	// Silent outcomes: terminal, never posted as a comment.
	OutcomeNotMyJob OutcomeKind = iota
	OutcomeNothingToDo
	OutcomeMerged
	OutcomeBuildInProgress
	OutcomeWaiting

	// User-facing outcomes.
	OutcomeQueued
	OutcomeSuccess
	OutcomeWrongDestination
	OutcomeSourceBranchTooOld
	OutcomeApprovalRequired
	OutcomeBuildNotStarted
	OutcomeBuildFailed
	OutcomeConflict
	OutcomeHistoryMismatch
	OutcomePullRequestSkew
	OutcomeIncoherentQueues
	OutcomeIncompatibleBranch
	OutcomeIssueNotFound
	OutcomeIssueTypeMismatch
	OutcomeFixVersionMismatch
	OutcomeUnknownCommand
	OutcomeNotEnoughCredentials
	OutcomeIncorrectCommandSyntax
	OutcomeCommandNotImplemented

	// Programming or environment faults; always surfaced with full detail.
	OutcomeInternalError
)

// Status tags for user-facing outcomes.
const (
	StatusSuccess    = "success"
	StatusFailure    = "failure"
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
)

// Outcome is the result of one lifecycle run.
type Outcome struct {
	Kind    OutcomeKind
	Code    int
	Status  string
	Message string
	Err     error
}

// Silent reports whether the outcome must not be posted as a comment.
func (o Outcome) Silent() bool {
	switch o.Kind {
	case OutcomeNotMyJob, OutcomeNothingToDo, OutcomeMerged, OutcomeBuildInProgress, OutcomeWaiting:
		return true
	}
	return false
}

// MessageID identifies an outcome message for comment deduplication: the
// same code for the same revision is never posted twice.
func (o Outcome) MessageID(revision string) string {
	return fmt.Sprintf("waterflow:%d:%s", o.Code, revision)
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Message, o.Err)
	}
	return o.Message
}

func silent(kind OutcomeKind, message string) Outcome {
	return Outcome{Kind: kind, Message: message}
}

func internalError(err error) Outcome {
	return Outcome{Kind: OutcomeInternalError, Code: 1, Status: StatusFailure, Message: "internal error", Err: err}
}

func queued(prID int) Outcome {
	return Outcome{
		Kind:    OutcomeQueued,
		Code:    101,
		Status:  StatusQueued,
		Message: fmt.Sprintf("pull request %d queued for merge", prID),
	}
}

func success(prID int, versions []string) Outcome {
	return Outcome{
		Kind:    OutcomeSuccess,
		Code:    100,
		Status:  StatusSuccess,
		Message: fmt.Sprintf("pull request %d merged on %v", prID, versions),
	}
}

func failure(kind OutcomeKind, code int, message string, err error) Outcome {
	return Outcome{Kind: kind, Code: code, Status: StatusFailure, Message: message, Err: err}
}
