package errors

import (
	"fmt"
	"strings"
)

// QueueErrorCode identifies exactly which queue invariant failed.
// The set is closed; operators rely on the codes being stable.
type QueueErrorCode string

const (
	// QueueMasterMissing : a lane has integration branches but no master queue branch
	QueueMasterMissing QueueErrorCode = "Q001"
	// QueueMasterNotOnDestination : the master queue branch does not descend
	// from its destination branch
	QueueMasterNotOnDestination QueueErrorCode = "Q002"
	// QueueMasterNotAtDestinationTip : an empty lane's master is not exactly at
	// the destination branch tip
	QueueMasterNotAtDestinationTip QueueErrorCode = "Q003"
	// QueueMasterLate : the master is strictly behind the newest integration branch
	QueueMasterLate QueueErrorCode = "Q004"
	// QueueMasterAhead : the master is strictly ahead of the newest integration branch
	QueueMasterAhead QueueErrorCode = "Q005"
	// QueueMasterDiverged : the master and the newest integration branch diverged
	QueueMasterDiverged QueueErrorCode = "Q006"
	// QueueInclusionBroken : the lane's integration branches do not form an
	// ancestry chain rooted on the destination branch
	QueueInclusionBroken QueueErrorCode = "Q007"
	// QueueNotTransitive : a pull request's entries along a merge path do not
	// include one another lane after lane
	QueueNotTransitive QueueErrorCode = "Q008"
	// QueueOrderInconsistent : a pull request is missing from a lane of its
	// merge path, or a lane holds entries the path walk cannot account for
	QueueOrderInconsistent QueueErrorCode = "Q009"
)

// QueueValidationError describes one violated queue invariant.
type QueueValidationError struct {
	Code   QueueErrorCode
	Lane   string // version of the affected lane, empty for path-wide errors
	Branch string // offending branch, when one can be named
	Detail string
}

func (e *QueueValidationError) Error() string {
	msg := fmt.Sprintf("[%s]", e.Code)
	if e.Lane != "" {
		msg += fmt.Sprintf(" lane %s:", e.Lane)
	}
	if e.Branch != "" {
		msg += fmt.Sprintf(" branch %s:", e.Branch)
	}
	return msg + " " + e.Detail
}

// IncoherentQueuesError aggregates every violated queue invariant discovered
// during validation, so a corrupted queue can be diagnosed in one pass.
type IncoherentQueuesError struct {
	Errors []*QueueValidationError
}

func (e *IncoherentQueuesError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, qe := range e.Errors {
		msgs = append(msgs, qe.Error())
	}
	return fmt.Sprintf("incoherent queues (%d errors):\n%s",
		len(e.Errors), strings.Join(msgs, "\n"))
}

// HasCode reports whether any aggregated error carries the given code.
func (e *IncoherentQueuesError) HasCode(code QueueErrorCode) bool {
	for _, qe := range e.Errors {
		if qe.Code == code {
			return true
		}
	}
	return false
}
