package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// graphqlHTTPClient is the HTTP client used for GraphQL requests.
var graphqlHTTPClient = &http.Client{Timeout: 30 * time.Second}

const threadResolutionQuery = `query($owner: String!, $repo: String!, $pr: Int!, $after: String) {
	repository(owner: $owner, name: $repo) {
		pullRequest(number: $pr) {
			reviewThreads(first: 100, after: $after) {
				pageInfo { hasNextPage endCursor }
				nodes {
					isResolved
					comments(first: 1) { nodes { databaseId } }
				}
			}
		}
	}
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type reviewThreadsPage struct {
	Data struct {
		Repository struct {
			PullRequest struct {
				ReviewThreads struct {
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []struct {
						IsResolved bool `json:"isResolved"`
						Comments   struct {
							Nodes []struct {
								DatabaseID int64 `json:"databaseId"`
							} `json:"nodes"`
						} `json:"comments"`
					} `json:"nodes"`
				} `json:"reviewThreads"`
			} `json:"pullRequest"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchThreadResolution maps the root comment id of every review thread to
// whether the thread is resolved. Resolution is decoration only: every failure
// is logged and yields whatever was collected so far, never an error.
func (c *Client) FetchThreadResolution(ctx context.Context, repoFullName string, prNumber int) map[int64]bool {
	result := make(map[int64]bool)
	if c.token == "" {
		return result
	}

	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return result
	}

	var after *string
	for {
		page, err := c.queryReviewThreads(ctx, owner, repo, prNumber, after)
		if err != nil {
			slog.Warn("graphql: thread resolution unavailable", "repo", repoFullName, "pr", prNumber, "error", err)
			return result
		}

		threads := page.Data.Repository.PullRequest.ReviewThreads
		for _, node := range threads.Nodes {
			if len(node.Comments.Nodes) > 0 && node.Comments.Nodes[0].DatabaseID != 0 {
				result[node.Comments.Nodes[0].DatabaseID] = node.IsResolved
			}
		}

		if !threads.PageInfo.HasNextPage || threads.PageInfo.EndCursor == "" {
			return result
		}
		cursor := threads.PageInfo.EndCursor
		after = &cursor
	}
}

func (c *Client) queryReviewThreads(ctx context.Context, owner, repo string, prNumber int, after *string) (*reviewThreadsPage, error) {
	body, err := json.Marshal(graphqlRequest{
		Query: threadResolutionQuery,
		Variables: map[string]any{
			"owner": owner,
			"repo":  repo,
			"pr":    prNumber,
			"after": after,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := graphqlHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var page reviewThreadsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(page.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", page.Errors[0].Message)
	}
	return &page, nil
}
