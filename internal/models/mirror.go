package models

// MirrorRecord remembers where a mailing-list message was posted on the forge.
// It is written once, the first time the message is dispatched, and read by
// later messages that reference it. The JSON names match the records written
// by earlier versions of the mirror, so existing notes stay readable.
type MirrorRecord struct {
	MessageID      string `json:"messageID"`
	PullRequestURL string `json:"pullRequestURL,omitempty"`
	OriginalCommit string `json:"originalCommit,omitempty"`
	IssueCommentID int64  `json:"issueCommentId,omitempty"`
}

// MirrorState is the sync checkpoint, stored under a reserved key next to the records.
type MirrorState struct {
	LatestRevision string `json:"latestRevision,omitempty"`
}
