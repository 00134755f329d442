// Package github provides a built-in comment provider backed by the review
// comments of one GitHub pull request.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
)

// ReviewComment is an inline pull request comment as the provider needs it.
type ReviewComment struct {
	ID        int64
	InReplyTo int64
	Author    string
	AvatarURL string
	Body      string
	Path      string
	Line      int
	StartLine int
	Side      string
	CreatedAt time.Time
	Reactions map[string]int
}

// ChangedFile is one file of a pull request with its unified diff patch.
type ChangedFile struct {
	Path  string
	Patch string
}

// Client wraps the GitHub REST and GraphQL APIs used by the provider.
type Client struct {
	gh         *gh.Client
	username   string
	token      string
	graphqlURL string
}

// NewClient creates a GitHub client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token, username string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)

	return &Client{
		gh:         gh.NewClient(rateLimitClient).WithAuthToken(token),
		username:   username,
		token:      token,
		graphqlURL: "https://api.github.com/graphql",
	}
}

// NewClientWithHTTPClient creates a Client against baseURL using httpClient.
// Tests point it at an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, username, token string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	graphqlU := *u
	graphqlU.Path = "/graphql"

	return &Client{
		gh:         client,
		username:   username,
		token:      token,
		graphqlURL: graphqlU.String(),
	}, nil
}

// Username returns the login the client acts as.
func (c *Client) Username() string { return c.username }

// ValidateToken checks token against the API and returns the login it belongs
// to. A one-shot client is used so the receiver's credentials stay untouched.
func (c *Client) ValidateToken(ctx context.Context, token string) (string, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	tempClient := gh.NewClient(httpClient).WithAuthToken(token)
	tempClient.BaseURL = c.gh.BaseURL

	user, _, err := tempClient.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	return user.GetLogin(), nil
}

// FetchReviewComments retrieves every inline review comment of a pull request,
// following pagination.
func (c *Client) FetchReviewComments(ctx context.Context, repoFullName string, prNumber int) ([]ReviewComment, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.PullRequestListCommentsOptions{
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	var all []ReviewComment

	for {
		comments, resp, err := c.gh.PullRequests.ListComments(ctx, owner, repo, prNumber, opts)
		if err != nil {
			return nil, fmt.Errorf("listing review comments for %s#%d (page %d): %w", repoFullName, prNumber, opts.Page, err)
		}

		logRateLimit(resp, repoFullName+"/comments", opts.Page, len(comments))

		for _, comment := range comments {
			all = append(all, mapReviewComment(comment))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// FetchChangedFiles lists the files of a pull request with their patches.
func (c *Client) FetchChangedFiles(ctx context.Context, repoFullName string, prNumber int) ([]ChangedFile, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListOptions{PerPage: 100}
	var all []ChangedFile

	for {
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, repo, prNumber, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files for %s#%d (page %d): %w", repoFullName, prNumber, opts.Page, err)
		}

		logRateLimit(resp, repoFullName+"/files", opts.Page, len(files))

		for _, f := range files {
			all = append(all, ChangedFile{Path: f.GetFilename(), Patch: f.GetPatch()})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// ToggleCommentReaction removes the client user's reaction with the given
// content from a review comment, or adds it when absent. It reports whether
// the reaction is present afterwards.
func (c *Client) ToggleCommentReaction(ctx context.Context, repoFullName string, commentID int64, content string) (bool, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return false, err
	}

	opts := &gh.ListReactionOptions{Content: content, ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		reactions, resp, err := c.gh.Reactions.ListPullRequestCommentReactions(ctx, owner, repo, commentID, opts)
		if err != nil {
			return false, fmt.Errorf("listing reactions on comment %d: %w", commentID, err)
		}

		for _, r := range reactions {
			if !strings.EqualFold(r.GetUser().GetLogin(), c.username) {
				continue
			}
			if _, err := c.gh.Reactions.DeletePullRequestCommentReaction(ctx, owner, repo, commentID, r.GetID()); err != nil {
				return false, fmt.Errorf("deleting reaction %q on comment %d: %w", content, commentID, err)
			}
			return false, nil
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if _, _, err := c.gh.Reactions.CreatePullRequestCommentReaction(ctx, owner, repo, commentID, content); err != nil {
		return false, fmt.Errorf("adding reaction %q on comment %d: %w", content, commentID, err)
	}
	return true, nil
}

// DeleteReviewComment deletes one review comment.
func (c *Client) DeleteReviewComment(ctx context.Context, repoFullName string, commentID int64) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	resp, err := c.gh.PullRequests.DeleteComment(ctx, owner, repo, commentID)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("deleting review comment %d on %s: %w", commentID, repoFullName, err)
	}
	return nil
}

// reactionContents maps GitHub reaction contents to their counts on a comment.
var reactionContents = []struct {
	content string
	count   func(*gh.Reactions) int
}{
	{"+1", (*gh.Reactions).GetPlusOne},
	{"-1", (*gh.Reactions).GetMinusOne},
	{"laugh", (*gh.Reactions).GetLaugh},
	{"confused", (*gh.Reactions).GetConfused},
	{"heart", (*gh.Reactions).GetHeart},
	{"hooray", (*gh.Reactions).GetHooray},
	{"rocket", (*gh.Reactions).GetRocket},
	{"eyes", (*gh.Reactions).GetEyes},
}

func mapReviewComment(c *gh.PullRequestComment) ReviewComment {
	rc := ReviewComment{
		ID:        c.GetID(),
		InReplyTo: c.GetInReplyTo(),
		Author:    c.GetUser().GetLogin(),
		AvatarURL: c.GetUser().GetAvatarURL(),
		Body:      c.GetBody(),
		Path:      c.GetPath(),
		Line:      c.GetLine(),
		StartLine: c.GetStartLine(),
		Side:      c.GetSide(),
		CreatedAt: c.GetCreatedAt().Time,
	}

	if reactions := c.GetReactions(); reactions != nil {
		for _, entry := range reactionContents {
			if n := entry.count(reactions); n > 0 {
				if rc.Reactions == nil {
					rc.Reactions = make(map[string]int)
				}
				rc.Reactions[entry.content] = n
			}
		}
	}
	return rc
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
