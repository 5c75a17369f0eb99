package testhelpers

import (
	"context"
	"fmt"
	"time"

	"waterflow.dev/waterflow/internal/githost"
)

// FakeHost implements githost.Client in memory.
type FakeHost struct {
	PRs      map[int]*githost.PullRequest
	Comments map[int][]githost.Comment
	Reviews  map[int][]githost.Review
	Statuses map[string]githost.BuildStatus // keyed sha/key

	nextPR      int
	nextComment int64
}

// NewFakeHost creates an empty fake git host.
func NewFakeHost() *FakeHost {
	return &FakeHost{
		PRs:      make(map[int]*githost.PullRequest),
		Comments: make(map[int][]githost.Comment),
		Reviews:  make(map[int][]githost.Review),
		Statuses: make(map[string]githost.BuildStatus),
		nextPR:   1000,
	}
}

// AddPullRequest registers a pull request and returns it.
func (h *FakeHost) AddPullRequest(number int, source, destination, tip, author string) *githost.PullRequest {
	pr := &githost.PullRequest{
		Number:      number,
		Title:       source,
		Source:      source,
		Destination: destination,
		SourceTip:   tip,
		Author:      author,
		State:       "OPEN",
	}
	h.PRs[number] = pr
	return pr
}

// Approve records an approval review.
func (h *FakeHost) Approve(number int, author string) {
	h.Reviews[number] = append(h.Reviews[number], githost.Review{Author: author, Approved: true})
}

// SetStatus records a build status for a commit.
func (h *FakeHost) SetStatus(sha, key string, status githost.BuildStatus) {
	h.Statuses[sha+"/"+key] = status
}

// GetPullRequest implements githost.Client.
func (h *FakeHost) GetPullRequest(ctx context.Context, number int) (*githost.PullRequest, error) {
	pr, ok := h.PRs[number]
	if !ok {
		return nil, fmt.Errorf("no pull request %d", number)
	}
	return pr, nil
}

// FindPullRequest implements githost.Client.
func (h *FakeHost) FindPullRequest(ctx context.Context, source, destination string) (*githost.PullRequest, error) {
	for _, pr := range h.PRs {
		if pr.Source == source && pr.Destination == destination && pr.Open() {
			return pr, nil
		}
	}
	return nil, nil
}

// CreatePullRequest implements githost.Client.
func (h *FakeHost) CreatePullRequest(ctx context.Context, title, body, source, destination string) (*githost.PullRequest, error) {
	h.nextPR++
	pr := &githost.PullRequest{
		Number:      h.nextPR,
		Title:       title,
		Description: body,
		Source:      source,
		Destination: destination,
		State:       "OPEN",
	}
	h.PRs[pr.Number] = pr
	return pr, nil
}

// ListComments implements githost.Client.
func (h *FakeHost) ListComments(ctx context.Context, number int) ([]githost.Comment, error) {
	return append([]githost.Comment(nil), h.Comments[number]...), nil
}

// AddComment implements githost.Client.
func (h *FakeHost) AddComment(ctx context.Context, number int, text string) (*githost.Comment, error) {
	h.nextComment++
	c := githost.Comment{ID: h.nextComment, Author: "waterflow", Text: text, CreatedAt: time.Now()}
	h.Comments[number] = append(h.Comments[number], c)
	return &c, nil
}

// ListReviews implements githost.Client.
func (h *FakeHost) ListReviews(ctx context.Context, number int) ([]githost.Review, error) {
	return append([]githost.Review(nil), h.Reviews[number]...), nil
}

// GetBuildStatus implements githost.Client.
func (h *FakeHost) GetBuildStatus(ctx context.Context, sha, key string) (githost.BuildStatus, error) {
	if s, ok := h.Statuses[sha+"/"+key]; ok {
		return s, nil
	}
	return githost.BuildNotStarted, nil
}

// SetBuildStatus implements githost.Client.
func (h *FakeHost) SetBuildStatus(ctx context.Context, sha, key string, status githost.BuildStatus, description string) error {
	h.Statuses[sha+"/"+key] = status
	return nil
}

// GetOwnerRepo implements githost.Client.
func (h *FakeHost) GetOwnerRepo() (string, string) {
	return "acme", "widgets"
}
