// Package errors provides sentinel errors and custom error types for waterflow.
// Use errors.Is() and errors.As() to check for specific error types.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions
var (
	// ErrUnrecognizedBranchPattern indicates a ref name that matches none of
	// the managed branch patterns. Callers use it to mean "not a branch I manage".
	ErrUnrecognizedBranchPattern = errors.New("unrecognized branch pattern")

	// ErrBranchNotFound indicates that a branch does not exist
	ErrBranchNotFound = errors.New("branch not found")

	// ErrMergeFailed indicates that a merge stopped on a conflict
	ErrMergeFailed = errors.New("merge failed")

	// ErrPushRejected indicates the remote advanced concurrently; retryable
	ErrPushRejected = errors.New("push rejected")

	// ErrQueuesNotValidated indicates mergeable-subset computation was
	// requested before validate(); a programming error, never user-facing
	ErrQueuesNotValidated = errors.New("queues not validated")

	// ErrQueuesNotBuilt indicates validation was requested on an unbuilt collection
	ErrQueuesNotBuilt = errors.New("queues not built")

	// ErrInvalidQueueBranch indicates a branch that is neither a queue master
	// nor a queue-integration branch was offered to the queue collection
	ErrInvalidQueueBranch = errors.New("invalid queue branch")

	// ErrDevBranchDoesNotExist indicates the destination's development line is
	// entirely absent from the repository
	ErrDevBranchDoesNotExist = errors.New("development branch does not exist")

	// ErrNotASingleDevBranch indicates a finalized cascade produced zero destinations
	ErrNotASingleDevBranch = errors.New("no development branch selected")

	// ErrDevBranchesNotSelfContained indicates a later line does not contain an
	// earlier line of the cascade
	ErrDevBranchesNotSelfContained = errors.New("development branches not self-contained")

	// ErrMultipleStabilizationBranches indicates two stabilization branches on
	// the same major.minor line
	ErrMultipleStabilizationBranches = errors.New("multiple stabilization branches on one line")

	// ErrDeprecatedStabilizationBranch indicates a stabilization branch whose
	// version was already tagged and should have been archived
	ErrDeprecatedStabilizationBranch = errors.New("deprecated stabilization branch")

	// ErrVersionMismatch indicates a dev/stabilization micro pairing violation
	ErrVersionMismatch = errors.New("development/stabilization version mismatch")

	// ErrUnknownCommand indicates a comment command outside the vocabulary
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNotEnoughCredentials indicates a privileged option requested by a
	// non-admin user
	ErrNotEnoughCredentials = errors.New("not enough credentials")

	// ErrIncorrectCommandSyntax indicates a malformed command or option value
	ErrIncorrectCommandSyntax = errors.New("incorrect command syntax")

	// ErrCommandNotImplemented indicates a recognized command with no behavior
	// behind it yet
	ErrCommandNotImplemented = errors.New("command not implemented")
)

// GitCommandError represents an error from a git command execution
type GitCommandError struct {
	Command string
	Args    []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *GitCommandError) Error() string {
	msg := fmt.Sprintf("git command failed: %s", e.Command)
	if len(e.Args) > 0 {
		msg += fmt.Sprintf(" %v", e.Args)
	}
	if e.Stderr != "" {
		msg += fmt.Sprintf("\nstderr: %s", e.Stderr)
	}
	if e.Stdout != "" {
		msg += fmt.Sprintf("\nstdout: %s", e.Stdout)
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n%v", e.Err)
	}
	return msg
}

func (e *GitCommandError) Unwrap() error {
	return e.Err
}

// NewGitCommandError creates a new GitCommandError
func NewGitCommandError(command string, args []string, stdout, stderr string, err error) *GitCommandError {
	return &GitCommandError{
		Command: command,
		Args:    args,
		Stdout:  stdout,
		Stderr:  stderr,
		Err:     err,
	}
}

// MergeFailedError represents a conflicting merge of one or two source
// branches into a destination branch.
type MergeFailedError struct {
	Dst  string
	Srcs []string
}

func (e *MergeFailedError) Error() string {
	return fmt.Sprintf("merge of %s into %s failed", strings.Join(e.Srcs, " + "), e.Dst)
}

// Is returns true if the target error is ErrMergeFailed
func (e *MergeFailedError) Is(target error) bool {
	return target == ErrMergeFailed
}

// NewMergeFailedError creates a new MergeFailedError
func NewMergeFailedError(dst string, srcs ...string) *MergeFailedError {
	return &MergeFailedError{Dst: dst, Srcs: srcs}
}

// ConflictError reports a merge conflict with enough context to generate
// remediation instructions: the offending branch, both parents, and whether
// the conflict is against the direct destination or a deeper cascade lane.
type ConflictError struct {
	Branch            string // the integration branch being updated
	Src               string
	Dst               string
	DirectDestination bool
}

func (e *ConflictError) Error() string {
	where := "a deeper destination of the cascade"
	if e.DirectDestination {
		where = "the direct destination"
	}
	return fmt.Sprintf("conflict merging %s into %s (destination %s, against %s)",
		e.Src, e.Branch, e.Dst, where)
}

// Is returns true if the target error is ErrMergeFailed
func (e *ConflictError) Is(target error) bool {
	return target == ErrMergeFailed
}

// BranchHistoryMismatchError indicates a commit on an integration branch that
// cannot be explained by the feature branch, the previous integration branch,
// or the destination branch. Typically a silent force-push or manual tampering.
type BranchHistoryMismatchError struct {
	IntegrationBranch string
	Commit            string
}

func (e *BranchHistoryMismatchError) Error() string {
	return fmt.Sprintf("commit %s on %s does not belong to the expected history",
		e.Commit, e.IntegrationBranch)
}

// PullRequestSkewError indicates the git host reports a tip for a companion
// pull request that is not reachable from the locally known history.
type PullRequestSkewError struct {
	Branch    string
	LocalTip  string
	RemoteTip string
}

func (e *PullRequestSkewError) Error() string {
	return fmt.Sprintf("pull request skew on %s: local tip %s, host reports %s",
		e.Branch, e.LocalTip, e.RemoteTip)
}
