// Package checkpoint decides where a sync run starts.
//
// The stored checkpoint is a commit of the archive mirror. Mirrors get re-cloned from
// independent copies of the same archive, so a stored commit may be unknown to the current
// mirror even though the messages are all there. Resolve then re-anchors by content: it finds
// the Message-ID the old commit added (read from the public-inbox copy) and searches the mirror
// for the commit adding the same line.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
)

var (
	// ErrNoRecoveryAnchor is returned when recovery is needed but no public-inbox repository is configured.
	ErrNoRecoveryAnchor = errors.New("checkpoint not found in mirror and PUBLIC_INBOX_DIR is not set")
	// ErrAnchorNotFound is returned when the checkpoint commit adds no Message-ID line.
	ErrAnchorNotFound = errors.New("no Message-ID found in checkpoint commit")
	// ErrAnchorMissingInMirror is returned when no mirror commit adds the anchor's Message-ID line.
	ErrAnchorMissingInMirror = errors.New("checkpoint message not found in mirror history")
)

var addedMessageID = regexp.MustCompile(`\n\+(Message-ID: [^\n]*)`)

// Repository is the subset of git access the manager needs.
type Repository interface {
	ResolveCommit(ctx context.Context, rev string) (string, bool, error)
	Pickaxe(ctx context.Context, needle, from string) (string, bool, error)
	Show(ctx context.Context, commit string) (string, error)
}

// Manager resolves the commit a sync run starts from.
type Manager struct {
	// Mirror is the archive mirror the sync reads.
	Mirror Repository
	// PublicInbox is the authoritative archive used only for recovery. May be nil.
	PublicInbox Repository
	// Bootstrap is returned when there is no checkpoint yet.
	Bootstrap string
	// Branch is where the backward search in Mirror starts.
	Branch string
}

// Resolve returns the commit to sync from, given the stored checkpoint (empty if none).
func (m *Manager) Resolve(ctx context.Context, lastKnown string) (string, error) {
	if lastKnown == "" {
		log.Printf("No checkpoint yet, starting from %s", m.Bootstrap)
		return m.Bootstrap, nil
	}

	_, ok, err := m.Mirror.ResolveCommit(ctx, lastKnown)
	if err != nil {
		return "", fmt.Errorf("failed to check checkpoint %s: %w", lastKnown, err)
	}
	if ok {
		return lastKnown, nil
	}

	log.Printf("Checkpoint %s is not in the mirror, recovering", lastKnown)
	return m.recover(ctx, lastKnown)
}

func (m *Manager) recover(ctx context.Context, lastKnown string) (string, error) {
	if m.PublicInbox == nil {
		return "", fmt.Errorf("%w (commit %s)", ErrNoRecoveryAnchor, lastKnown)
	}

	diff, err := m.PublicInbox.Show(ctx, lastKnown)
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint %s from public inbox: %w", lastKnown, err)
	}
	match := addedMessageID.FindStringSubmatch(diff)
	if match == nil {
		return "", fmt.Errorf("%w: %s", ErrAnchorNotFound, lastKnown)
	}
	header := match[1]
	line := "\n+" + header + "\n"

	from := m.Branch
	for {
		start, ok, err := m.Mirror.ResolveCommit(ctx, from)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", from, err)
		}
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrAnchorMissingInMirror, header)
		}

		candidate, found, err := m.Mirror.Pickaxe(ctx, header, start)
		if err != nil {
			return "", err
		}
		if !found {
			return "", fmt.Errorf("%w: %q", ErrAnchorMissingInMirror, header)
		}

		show, err := m.Mirror.Show(ctx, candidate)
		if err != nil {
			return "", err
		}
		if strings.Contains(show, line) {
			log.Printf("Recovered checkpoint %s as %s", lastKnown, candidate)
			return candidate, nil
		}

		// The pickaxe hit only touched the string; keep looking below it.
		from = candidate + "^"
	}
}
