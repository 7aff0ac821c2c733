// Package forge posts mirrored mails to pull requests.
package forge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrInvalidPullRequestURL is returned for URLs that do not point at a pull request.
var ErrInvalidPullRequestURL = errors.New("invalid pull request URL")

// Forge is the comment API of a code-hosting site.
type Forge interface {
	// AddComment adds a top-level comment to the pull request conversation.
	AddComment(ctx context.Context, prURL, body string) error
	// AddReply answers an existing review comment in its thread.
	AddReply(ctx context.Context, prURL string, commentID int64, body string) error
	// AddCommitComment starts a review thread on commit and returns the new comment's id.
	AddCommitComment(ctx context.Context, prURL, commit, body string) (int64, error)
	// AddCc lists address as a Cc of the pull request, unless it already is.
	AddCc(ctx context.Context, prURL, address string) error
}

// PullRequest identifies a pull request.
type PullRequest struct {
	Owner  string
	Repo   string
	Number int
}

var pullRequestURL = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+)/pull/(\d+)/?$`)

// ParsePullRequestURL splits https://github.com/<owner>/<repo>/pull/<n>.
func ParsePullRequestURL(url string) (PullRequest, error) {
	m := pullRequestURL.FindStringSubmatch(url)
	if m == nil {
		return PullRequest{}, fmt.Errorf("%w: %s", ErrInvalidPullRequestURL, url)
	}
	number, err := strconv.Atoi(m[3])
	if err != nil || number <= 0 {
		return PullRequest{}, fmt.Errorf("%w: %s", ErrInvalidPullRequestURL, url)
	}
	return PullRequest{Owner: m[1], Repo: m[2], Number: number}, nil
}
