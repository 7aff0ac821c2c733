package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// PathResolver names a file touched by a commit, so a review comment has something to attach to.
type PathResolver interface {
	FirstChangedPath(ctx context.Context, commit string) (string, error)
}

// GitHubClient talks to GitHub: GraphQL for conversation comments and the description,
// REST for review comments, which GraphQL cannot create as replies.
type GitHubClient struct {
	http    *http.Client
	apiURL  string
	graphql *githubv4.Client
	paths   PathResolver
}

// NewGitHubClient creates a client authenticated with token. paths may be nil, in which case
// commit comments fail.
func NewGitHubClient(ctx context.Context, token, apiURL, graphqlURL string, paths PathResolver) *GitHubClient {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	return &GitHubClient{
		http:    httpClient,
		apiURL:  strings.TrimSuffix(apiURL, "/"),
		graphql: githubv4.NewEnterpriseClient(graphqlURL, httpClient),
		paths:   paths,
	}
}

type pullRequestNode struct {
	ID   githubv4.ID
	Body string
}

func (c *GitHubClient) pullRequest(ctx context.Context, pr PullRequest) (*pullRequestNode, error) {
	var q struct {
		Repository struct {
			PullRequest pullRequestNode `graphql:"pullRequest(number:$number)"`
		} `graphql:"repository(owner:$owner,name:$name)"`
	}
	variables := map[string]interface{}{
		"owner":  githubv4.String(pr.Owner),
		"name":   githubv4.String(pr.Repo),
		"number": githubv4.Int(pr.Number),
	}
	if err := c.graphql.Query(ctx, &q, variables); err != nil {
		return nil, fmt.Errorf("failed to look up %s/%s#%d: %w", pr.Owner, pr.Repo, pr.Number, err)
	}
	return &q.Repository.PullRequest, nil
}

func (c *GitHubClient) AddComment(ctx context.Context, prURL, body string) error {
	pr, err := ParsePullRequestURL(prURL)
	if err != nil {
		return err
	}
	node, err := c.pullRequest(ctx, pr)
	if err != nil {
		return err
	}

	var m struct {
		AddComment struct {
			CommentEdge struct {
				Node struct {
					DatabaseID githubv4.Int
				}
			}
		} `graphql:"addComment(input:$input)"`
	}
	input := githubv4.AddCommentInput{
		SubjectID: node.ID,
		Body:      githubv4.String(body),
	}
	if err := c.graphql.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("failed to comment on %s: %w", prURL, err)
	}
	return nil
}

func (c *GitHubClient) AddReply(ctx context.Context, prURL string, commentID int64, body string) error {
	pr, err := ParsePullRequestURL(prURL)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/comments/%d/replies", pr.Owner, pr.Repo, pr.Number, commentID)
	if _, err := c.post(ctx, path, map[string]any{"body": body}); err != nil {
		return fmt.Errorf("failed to reply to comment %d on %s: %w", commentID, prURL, err)
	}
	return nil
}

func (c *GitHubClient) AddCommitComment(ctx context.Context, prURL, commit, body string) (int64, error) {
	pr, err := ParsePullRequestURL(prURL)
	if err != nil {
		return 0, err
	}
	if c.paths == nil {
		return 0, fmt.Errorf("cannot comment on commit %s: no forge repository configured", commit)
	}
	file, err := c.paths.FirstChangedPath(ctx, commit)
	if err != nil {
		return 0, err
	}

	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/comments", pr.Owner, pr.Repo, pr.Number)
	id, err := c.post(ctx, path, map[string]any{
		"body":         body,
		"commit_id":    commit,
		"path":         file,
		"subject_type": "file",
	})
	if err != nil {
		return 0, fmt.Errorf("failed to comment on commit %s of %s: %w", commit, prURL, err)
	}
	return id, nil
}

func (c *GitHubClient) AddCc(ctx context.Context, prURL, address string) error {
	pr, err := ParsePullRequestURL(prURL)
	if err != nil {
		return err
	}
	node, err := c.pullRequest(ctx, pr)
	if err != nil {
		return err
	}

	body, changed := appendCc(node.Body, address)
	if !changed {
		return nil
	}

	var m struct {
		UpdatePullRequest struct {
			ClientMutationID githubv4.String
		} `graphql:"updatePullRequest(input:$input)"`
	}
	input := githubv4.UpdatePullRequestInput{
		PullRequestID: node.ID,
		Body:          githubv4.NewString(githubv4.String(body)),
	}
	if err := c.graphql.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("failed to update description of %s: %w", prURL, err)
	}
	return nil
}

var ccLine = regexp.MustCompile(`(?mi)^cc:\s*(.*)$`)

// appendCc adds a "cc: <address>" trailer to a PR description. It reports false if the
// address is already listed.
func appendCc(body, address string) (string, bool) {
	email := address
	if parsed, err := mail.ParseAddress(address); err == nil {
		email = parsed.Address
	}

	for _, m := range ccLine.FindAllStringSubmatch(body, -1) {
		if strings.Contains(strings.ToLower(m[1]), strings.ToLower(email)) {
			return body, false
		}
	}

	trimmed := strings.TrimRight(body, "\r\n")
	lines := strings.Split(trimmed, "\n")
	if len(trimmed) > 0 && ccLine.MatchString(lines[len(lines)-1]) {
		return trimmed + "\ncc: " + address, true
	}
	if trimmed == "" {
		return "cc: " + address, true
	}
	return trimmed + "\n\ncc: " + address, true
}

// post sends a JSON request to the REST API and returns the id of the created object.
func (c *GitHubClient) post(ctx context.Context, path string, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("POST %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return created.ID, nil
}
