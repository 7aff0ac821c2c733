// Package mirror turns new mailing-list messages into pull request comments.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/vdavid/listbridge/internal/diffstream"
	"github.com/vdavid/listbridge/internal/forge"
	"github.com/vdavid/listbridge/internal/mbox"
	"github.com/vdavid/listbridge/internal/models"
	"github.com/vdavid/listbridge/internal/notes"
)

// Repository is the archive mirror as the engine reads it.
type Repository interface {
	ResolveCommit(ctx context.Context, rev string) (string, bool, error)
	LogPatch(ctx context.Context, from, to string, fn func(line string) error) error
}

// CheckpointResolver maps the stored checkpoint to the commit a run starts from.
type CheckpointResolver interface {
	Resolve(ctx context.Context, lastKnown string) (string, error)
}

// Engine runs one incremental sync from the archive mirror to the forge.
// Runs must not overlap on the same store.
type Engine struct {
	Mirror      Repository
	Checkpoint  CheckpointResolver
	Store       notes.Store
	Forge       forge.Forge
	Attribution Attribution
	// Branch is the mirror branch whose tip is synced up to.
	Branch string
	// StateKey is the reserved note key of the checkpoint.
	StateKey string
}

// Result summarizes a run.
type Result struct {
	Advanced   bool
	From       string
	To         string
	Dispatched int
	Skipped    int
	Failed     int
}

// Run mirrors every message added since the checkpoint. prFilter, if not nil, limits which
// pull requests receive comments. The checkpoint only moves once the whole range was read.
func (e *Engine) Run(ctx context.Context, prFilter func(prURL string) bool) (*Result, error) {
	state, err := notes.Get[models.MirrorState](ctx, e.Store, e.StateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	lastKnown := ""
	if state != nil {
		lastKnown = state.LatestRevision
	}

	from, err := e.Checkpoint.Resolve(ctx, lastKnown)
	if err != nil {
		return nil, err
	}

	tip, ok, err := e.Mirror.ResolveCommit(ctx, e.Branch)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mirror tip: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("mirror branch %s does not exist", e.Branch)
	}

	result := &Result{From: from, To: tip}
	if tip == from {
		log.Printf("Mirror is up to date at %s", tip)
		return result, nil
	}

	index, err := notes.LoadIndex(ctx, e.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to load handled messages: %w", err)
	}

	log.Printf("Handling commit range %s..%s (%d messages known)", from, tip, index.Len())

	s := &session{engine: e, index: index, prFilter: prFilter, result: result}
	extractor := diffstream.NewExtractor(func(message string) error {
		return s.handle(ctx, message)
	})
	err = e.Mirror.LogPatch(ctx, from, tip, func(line string) error {
		extractor.Feed(line)
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read commit range %s..%s: %w", from, tip, err)
	}
	if n := extractor.Pending(); n > 0 {
		log.Printf("Warning: commit range ended inside a message (%d lines missing)", n)
	}
	_, result.Failed = extractor.Stats()

	if err := e.Store.Set(ctx, e.StateKey, models.MirrorState{LatestRevision: tip}, true); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	result.Advanced = true

	return result, nil
}

// session holds the state of one run.
type session struct {
	engine   *Engine
	index    *notes.Index
	prFilter func(string) bool
	result   *Result
}

// handle mirrors one message. Returned errors are logged by the extractor and skip the message.
func (s *session) handle(ctx context.Context, raw string) error {
	msg, err := mbox.Parse(raw, true)
	if err != nil {
		return fmt.Errorf("failed to parse message: %w", err)
	}
	thread, err := mbox.ResolveThread(msg)
	if err != nil {
		return err
	}

	if s.index.Has(thread.MessageID) {
		log.Printf("Already handled %s", thread.MessageID)
		s.result.Skipped++
		return nil
	}

	target, err := s.findTarget(ctx, thread.References)
	if err != nil {
		return fmt.Errorf("failed to look up thread of %s: %w", thread.MessageID, err)
	}
	if target.PullRequestURL == "" {
		log.Printf("No pull request found for %s", thread.MessageID)
		s.result.Skipped++
		return nil
	}
	if s.prFilter != nil && !s.prFilter(target.PullRequestURL) {
		log.Printf("Skipping %s: %s is filtered out", thread.MessageID, target.PullRequestURL)
		s.result.Skipped++
		return nil
	}

	log.Printf("Message-ID %s (length %d) for PR %s, commit %q, comment ID %d",
		thread.MessageID, len(raw), target.PullRequestURL, target.OriginalCommit, target.IssueCommentID)

	body := s.engine.Attribution.Header(thread.MessageID, msg.From) + mbox.RenderQuoted(msg)
	record := models.MirrorRecord{
		MessageID:      thread.MessageID,
		PullRequestURL: target.PullRequestURL,
		OriginalCommit: target.OriginalCommit,
		IssueCommentID: target.IssueCommentID,
	}

	f := s.engine.Forge
	switch {
	case target.IssueCommentID != 0:
		err = f.AddReply(ctx, target.PullRequestURL, target.IssueCommentID, body)
	case target.OriginalCommit != "":
		record.IssueCommentID, err = f.AddCommitComment(ctx, target.PullRequestURL, target.OriginalCommit, body)
	default:
		// Conversation comments cannot be replied to, so no id is kept.
		err = f.AddComment(ctx, target.PullRequestURL, body)
	}
	if err != nil {
		return fmt.Errorf("failed to post %s: %w", thread.MessageID, err)
	}
	s.result.Dispatched++

	if msg.From != "" {
		if err := f.AddCc(ctx, target.PullRequestURL, msg.From); err != nil {
			log.Printf("Warning: failed to Cc %s on %s: %v", msg.From, target.PullRequestURL, err)
		}
	}

	err = s.engine.Store.Set(ctx, thread.MessageID, record, false)
	if err != nil && !errors.Is(err, notes.ErrNoteExists) {
		return fmt.Errorf("failed to record %s: %w", thread.MessageID, err)
	}
	s.index.Add(thread.MessageID)

	return nil
}

// findTarget picks where a message goes from the records of the messages it references.
// The first record with a pull request fixes the target pull request. Later records only
// fill in a commit or comment id it still lacks, whatever pull request they name.
func (s *session) findTarget(ctx context.Context, references []string) (models.MirrorRecord, error) {
	var target models.MirrorRecord

	for _, ref := range references {
		if !s.index.Has(ref) {
			continue
		}
		record, err := notes.Get[models.MirrorRecord](ctx, s.engine.Store, ref)
		if err != nil {
			return target, err
		}
		if record == nil || record.PullRequestURL == "" {
			continue
		}

		commit := record.OriginalCommit
		if strings.HasPrefix(ref, "pull") {
			// Cover letters are recorded with the tip commit of the series.
			commit = ""
		}

		if target.PullRequestURL == "" {
			target = models.MirrorRecord{
				PullRequestURL: record.PullRequestURL,
				OriginalCommit: commit,
				IssueCommentID: record.IssueCommentID,
			}
			continue
		}
		if target.OriginalCommit == "" {
			target.OriginalCommit = commit
		}
		if target.IssueCommentID == 0 {
			target.IssueCommentID = record.IssueCommentID
		}
	}

	return target, nil
}
