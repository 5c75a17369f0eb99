// Package githost provides the git-host collaborator: pull-request CRUD,
// comments, reviews, and commit build statuses.
package githost

import (
	"context"
	"time"
)

// BuildStatus is the state of a build attached to a commit.
type BuildStatus string

const (
	BuildNotStarted BuildStatus = "NOTSTARTED"
	BuildInProgress BuildStatus = "INPROGRESS"
	BuildSuccessful BuildStatus = "SUCCESSFUL"
	BuildFailed     BuildStatus = "FAILED"
	BuildStopped    BuildStatus = "STOPPED"
)

// PullRequest is a host-independent view of a pull request.
// This is a simplified struct to avoid coupling callers to go-github.
type PullRequest struct {
	Number      int
	Title       string
	Description string
	Source      string
	Destination string
	SourceTip   string
	Author      string
	State       string // OPEN, MERGED, DECLINED
}

// Open reports whether the pull request is still open.
func (p *PullRequest) Open() bool { return p.State == "OPEN" }

// SourceBranch returns the branch the pull request merges from.
func (p *PullRequest) SourceBranch() string { return p.Source }

// SourceCommit returns the tip the host reports for the source branch.
func (p *PullRequest) SourceCommit() string { return p.SourceTip }

// SetSourceCommit patches the locally cached source tip.
func (p *PullRequest) SetSourceCommit(sha string) { p.SourceTip = sha }

// Comment is a pull-request comment.
type Comment struct {
	ID        int64
	Author    string
	Text      string
	CreatedAt time.Time
}

// Review is an approval or change request on a pull request.
type Review struct {
	Author           string
	Approved         bool
	ChangesRequested bool
}

// Client is an interface for git-host API interactions.
type Client interface {
	// GetPullRequest fetches a pull request by number
	GetPullRequest(ctx context.Context, number int) (*PullRequest, error)

	// FindPullRequest finds an open pull request by source and destination branch
	FindPullRequest(ctx context.Context, source, destination string) (*PullRequest, error)

	// CreatePullRequest opens a new pull request
	CreatePullRequest(ctx context.Context, title, body, source, destination string) (*PullRequest, error)

	// ListComments returns a pull request's comments, oldest first
	ListComments(ctx context.Context, number int) ([]Comment, error)

	// AddComment posts a comment on a pull request
	AddComment(ctx context.Context, number int, text string) (*Comment, error)

	// ListReviews returns the reviews on a pull request
	ListReviews(ctx context.Context, number int) ([]Review, error)

	// GetBuildStatus returns the build status recorded for (sha, key)
	GetBuildStatus(ctx context.Context, sha, key string) (BuildStatus, error)

	// SetBuildStatus records a build status for (sha, key)
	SetBuildStatus(ctx context.Context, sha, key string, status BuildStatus, description string) error

	// GetOwnerRepo returns the repository owner and name
	GetOwnerRepo() (owner, repo string)
}
