package mbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrMissingMessageID is returned when a message carries no Message-ID header.
	ErrMissingMessageID = errors.New("message has no Message-ID")
	// ErrMalformedMessageID is returned when the Message-ID is not a non-empty `<id>`.
	ErrMalformedMessageID = errors.New("malformed Message-ID")
	// ErrMalformedReferences is returned when In-Reply-To or References cannot be tokenized.
	ErrMalformedReferences = errors.New("malformed references")
)

// referenceToken matches one `<id>` at the start of a References/In-Reply-To
// value, plus an optional parenthesized comment (which may hold quoted strings)
// and the separators around it. This is not a full RFC2822 parser, but it
// covers what the mailing list actually sends.
var referenceToken = regexp.MustCompile(`^[\s,]*<([^<>]+)>[\s,]*(?:\((?:[^"()]|"[^"]*")*\)[\s,]*)?`)

var bracketedID = regexp.MustCompile(`^<(.+)>$`)

// ThreadInfo is the identity of a message and the ancestors it points at.
type ThreadInfo struct {
	// MessageID is the bare identifier, without angle brackets.
	MessageID string
	// References are the ancestor Message-IDs, de-duplicated, in the order first seen.
	References []string
}

// ResolveThread extracts the Message-ID and the referenced Message-IDs of msg.
func ResolveThread(msg *Message) (*ThreadInfo, error) {
	if msg.MessageID == "" {
		return nil, ErrMissingMessageID
	}
	match := bracketedID.FindStringSubmatch(msg.MessageID)
	if match == nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedMessageID, msg.MessageID)
	}

	info := &ThreadInfo{MessageID: match[1]}
	seen := map[string]bool{info.MessageID: true}
	for _, h := range msg.Headers {
		if !strings.EqualFold(h.Key, "In-Reply-To") && !strings.EqualFold(h.Key, "References") {
			continue
		}
		ids, err := parseReferences(h.Value)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				info.References = append(info.References, id)
			}
		}
	}

	return info, nil
}

func parseReferences(value string) ([]string, error) {
	var ids []string
	for value != "" {
		loc := referenceToken.FindStringSubmatchIndex(value)
		if loc == nil {
			if strings.TrimSpace(value) != "" {
				return nil, fmt.Errorf("%w: cannot parse %q", ErrMalformedReferences, value)
			}
			break
		}
		ids = append(ids, value[loc[2]:loc[3]])
		value = value[loc[1]:]
	}
	return ids, nil
}
