// Package diffstream rebuilds mail messages from `git log -p` output of a
// public-inbox style archive, where every commit adds one message as a hunk.
package diffstream

import (
	"log"
	"regexp"
	"strconv"
	"strings"
)

// hunkHeader captures the optional line count of the "+" side of a hunk header.
var hunkHeader = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+\d+(?:,(\d+))? @@`)

// DispatchFunc receives one complete message. Its errors are logged, never propagated.
type DispatchFunc func(message string) error

// Extractor is a line-driven state machine. While pending is positive, context
// and added lines are collected into buffer; once the hunk is used up, buffer
// holds a complete message.
type Extractor struct {
	pending  int
	buffer   strings.Builder
	dispatch DispatchFunc

	dispatched int
	failed     int
}

// NewExtractor creates an Extractor that hands each rebuilt message to dispatch.
func NewExtractor(dispatch DispatchFunc) *Extractor {
	return &Extractor{dispatch: dispatch}
}

// Feed consumes one line of diff output. A trailing newline is ignored.
func (e *Extractor) Feed(line string) {
	line = strings.TrimSuffix(line, "\n")

	if strings.HasPrefix(line, "@@ ") {
		match := hunkHeader.FindStringSubmatch(line)
		if match == nil {
			return
		}
		if e.pending > 0 {
			log.Printf("Warning: discarding unfinished message (%d lines missing): %q", e.pending, e.buffer.String())
		}
		e.pending = 1
		if match[1] != "" {
			e.pending, _ = strconv.Atoi(match[1])
		}
		e.buffer.Reset()
		return
	}

	if e.pending == 0 || line == "" || (line[0] != ' ' && line[0] != '+') {
		return
	}

	e.buffer.WriteString(line[1:])
	e.buffer.WriteByte('\n')
	e.pending--
	if e.pending > 0 {
		return
	}

	message := e.buffer.String()
	e.buffer.Reset()
	if err := e.dispatch(message); err != nil {
		e.failed++
		log.Printf("Warning: failed to handle message, skipping: %v", err)
		return
	}
	e.dispatched++
}

// Pending reports how many lines of the current hunk are still expected.
func (e *Extractor) Pending() int {
	return e.pending
}

// Stats returns how many messages were dispatched successfully and how many failed.
func (e *Extractor) Stats() (dispatched, failed int) {
	return e.dispatched, e.failed
}
