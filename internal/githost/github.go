package githost

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

const buildStatusCacheSize = 1024

// GitHubClient implements Client against the GitHub API.
type GitHubClient struct {
	client *github.Client
	owner  string
	repo   string
	cache  *statusCache
}

// NewGitHubClient creates a GitHub-backed client for the given repository.
func NewGitHubClient(ctx context.Context, token, owner, repo string) *GitHubClient {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	return &GitHubClient{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
		cache:  newStatusCache(buildStatusCacheSize),
	}
}

// GetOwnerRepo returns the repository owner and name.
func (c *GitHubClient) GetOwnerRepo() (string, string) {
	return c.owner, c.repo
}

// GetPullRequest fetches a pull request by number.
func (c *GitHubClient) GetPullRequest(ctx context.Context, number int) (*PullRequest, error) {
	pr, _, err := c.client.PullRequests.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get pull request %d: %w", number, err)
	}
	return convertPullRequest(pr), nil
}

// FindPullRequest finds an open pull request by source and destination branch.
// Returns nil without error when none exists.
func (c *GitHubClient) FindPullRequest(ctx context.Context, source, destination string) (*PullRequest, error) {
	prs, _, err := c.client.PullRequests.List(ctx, c.owner, c.repo, &github.PullRequestListOptions{
		State: "open",
		Head:  c.owner + ":" + source,
		Base:  destination,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pull requests for %s: %w", source, err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return convertPullRequest(prs[0]), nil
}

// CreatePullRequest opens a new pull request.
func (c *GitHubClient) CreatePullRequest(ctx context.Context, title, body, source, destination string) (*PullRequest, error) {
	pr := &github.NewPullRequest{
		Title: github.String(title),
		Head:  github.String(source),
		Base:  github.String(destination),
	}
	if body != "" {
		pr.Body = github.String(body)
	}
	created, _, err := c.client.PullRequests.Create(ctx, c.owner, c.repo, pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request %s -> %s: %w", source, destination, err)
	}
	return convertPullRequest(created), nil
}

// ListComments returns a pull request's issue comments, oldest first.
func (c *GitHubClient) ListComments(ctx context.Context, number int) ([]Comment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var comments []Comment
	for {
		page, resp, err := c.client.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list comments on pull request %d: %w", number, err)
		}
		for _, gc := range page {
			comments = append(comments, Comment{
				ID:        gc.GetID(),
				Author:    gc.GetUser().GetLogin(),
				Text:      gc.GetBody(),
				CreatedAt: gc.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

// AddComment posts a comment on a pull request.
func (c *GitHubClient) AddComment(ctx context.Context, number int, text string) (*Comment, error) {
	created, _, err := c.client.Issues.CreateComment(ctx, c.owner, c.repo, number, &github.IssueComment{
		Body: github.String(text),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to comment on pull request %d: %w", number, err)
	}
	return &Comment{
		ID:        created.GetID(),
		Author:    created.GetUser().GetLogin(),
		Text:      created.GetBody(),
		CreatedAt: created.GetCreatedAt().Time,
	}, nil
}

// ListReviews returns the reviews on a pull request. Later reviews by the
// same author supersede earlier ones.
func (c *GitHubClient) ListReviews(ctx context.Context, number int) ([]Review, error) {
	reviews, _, err := c.client.PullRequests.ListReviews(ctx, c.owner, c.repo, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews on pull request %d: %w", number, err)
	}
	latest := make(map[string]*github.PullRequestReview)
	var order []string
	for _, r := range reviews {
		author := r.GetUser().GetLogin()
		if _, seen := latest[author]; !seen {
			order = append(order, author)
		}
		latest[author] = r
	}
	var out []Review
	for _, author := range order {
		r := latest[author]
		out = append(out, Review{
			Author:           author,
			Approved:         strings.EqualFold(r.GetState(), "APPROVED"),
			ChangesRequested: strings.EqualFold(r.GetState(), "CHANGES_REQUESTED"),
		})
	}
	return out, nil
}

// GetBuildStatus returns the build status recorded for (sha, key).
func (c *GitHubClient) GetBuildStatus(ctx context.Context, sha, key string) (BuildStatus, error) {
	if status, ok := c.cache.get(sha, key); ok {
		return status, nil
	}
	statuses, _, err := c.client.Repositories.ListStatuses(ctx, c.owner, c.repo, sha, &github.ListOptions{PerPage: 100})
	if err != nil {
		return "", fmt.Errorf("failed to get build status for %s: %w", sha, err)
	}
	// Statuses come newest first; the first one matching the key wins.
	for _, s := range statuses {
		if s.GetContext() != key {
			continue
		}
		status := fromGitHubState(s.GetState())
		c.cache.put(sha, key, status)
		return status, nil
	}
	return BuildNotStarted, nil
}

// SetBuildStatus records a build status for (sha, key).
func (c *GitHubClient) SetBuildStatus(ctx context.Context, sha, key string, status BuildStatus, description string) error {
	_, _, err := c.client.Repositories.CreateStatus(ctx, c.owner, c.repo, sha, &github.RepoStatus{
		State:       github.String(toGitHubState(status)),
		Context:     github.String(key),
		Description: github.String(description),
	})
	if err != nil {
		return fmt.Errorf("failed to set build status for %s: %w", sha, err)
	}
	c.cache.put(sha, key, status)
	return nil
}

func convertPullRequest(pr *github.PullRequest) *PullRequest {
	state := "OPEN"
	if pr.GetState() == "closed" {
		state = "DECLINED"
		if pr.GetMerged() || pr.MergedAt != nil {
			state = "MERGED"
		}
	}
	return &PullRequest{
		Number:      pr.GetNumber(),
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		Source:      pr.GetHead().GetRef(),
		Destination: pr.GetBase().GetRef(),
		SourceTip:   pr.GetHead().GetSHA(),
		Author:      pr.GetUser().GetLogin(),
		State:       state,
	}
}

func fromGitHubState(state string) BuildStatus {
	switch state {
	case "success":
		return BuildSuccessful
	case "pending":
		return BuildInProgress
	case "failure":
		return BuildFailed
	case "error":
		return BuildStopped
	default:
		return BuildNotStarted
	}
}

func toGitHubState(status BuildStatus) string {
	switch status {
	case BuildSuccessful:
		return "success"
	case BuildInProgress, BuildNotStarted:
		return "pending"
	case BuildStopped:
		return "error"
	default:
		return "failure"
	}
}
