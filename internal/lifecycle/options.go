package lifecycle

import (
	"fmt"
	"strconv"
	"strings"

	wferrors "waterflow.dev/waterflow/internal/errors"
)

// Options is the per-pull-request option set accumulated from the comment
// dispatcher. The parser itself lives outside the core; this consumes its
// parsed output (option name, optional value, whether the author is
// privileged).
type Options struct {
	BypassAuthorApproval     bool
	BypassPeerApproval       bool
	BypassLeaderApproval     bool
	BypassBuildStatus        bool
	BypassJiraCheck          bool
	BypassIncompatibleBranch bool

	Unanimity          bool
	Wait               bool
	NoOctopus          bool
	CreatePullRequests bool
	AfterPullRequest   int
}

// privilegedOptions require admin credentials to set.
var privilegedOptions = map[string]bool{
	"bypass_author_approval":     true,
	"bypass_peer_approval":       true,
	"bypass_leader_approval":     true,
	"bypass_build_status":        true,
	"bypass_jira_check":          true,
	"bypass_incompatible_branch": true,
}

// Apply sets one parsed option. Unknown names, missing credentials, and
// malformed values map onto the command-error sentinels, which the lifecycle
// turns into their terminal outcomes.
func (o *Options) Apply(name, value string, privileged bool) error {
	if privilegedOptions[name] && !privileged {
		return fmt.Errorf("%w: %s", wferrors.ErrNotEnoughCredentials, name)
	}
	switch name {
	case "bypass_author_approval":
		o.BypassAuthorApproval = true
	case "bypass_peer_approval":
		o.BypassPeerApproval = true
	case "bypass_leader_approval":
		o.BypassLeaderApproval = true
	case "bypass_build_status":
		o.BypassBuildStatus = true
	case "bypass_jira_check":
		o.BypassJiraCheck = true
	case "bypass_incompatible_branch":
		o.BypassIncompatibleBranch = true
	case "unanimity":
		o.Unanimity = true
	case "wait":
		o.Wait = true
	case "no_octopus":
		o.NoOctopus = true
	case "create_pull_requests":
		o.CreatePullRequests = true
	case "after_pull_request":
		id, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || id <= 0 {
			return fmt.Errorf("%w: after_pull_request=%q", wferrors.ErrIncorrectCommandSyntax, value)
		}
		o.AfterPullRequest = id
	default:
		return fmt.Errorf("%w: %s", wferrors.ErrUnknownCommand, name)
	}
	return nil
}

// ApplyCommand handles one parsed command. help, status, reset and
// force_reset are acknowledged here; build, retry and clear are recognized
// but have no behavior yet.
func (o *Options) ApplyCommand(name string) error {
	switch name {
	case "help", "status", "reset", "force_reset":
		return nil
	case "build", "retry", "clear":
		return fmt.Errorf("%w: %s", wferrors.ErrCommandNotImplemented, name)
	default:
		return fmt.Errorf("%w: %s", wferrors.ErrUnknownCommand, name)
	}
}
