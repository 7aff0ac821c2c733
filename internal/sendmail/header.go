package sendmail

import (
	"regexp"
	"strings"
)

var lineBreak = regexp.MustCompile(`\r?\n`)

// AddHeader sets the header name to value in a raw message. Existing occurrences are removed
// and the new line goes right after From: (after its folded lines), or at the end of the
// header block when there is no From:. The message's line endings are kept.
func AddHeader(raw, name, value string) string {
	newline := "\n"
	if strings.Contains(raw, "\r\n") {
		newline = "\r\n"
	}

	lines := lineBreak.Split(raw, -1)
	prefix := strings.ToLower(name) + ":"

	// Drop existing occurrences, with their continuation lines, from the header block.
	kept := make([]string, 0, len(lines)+1)
	inHeaders, dropping := true, false
	for _, line := range lines {
		if inHeaders {
			if line == "" {
				inHeaders = false
			} else if dropping && (line[0] == ' ' || line[0] == '\t') {
				continue
			} else {
				dropping = strings.HasPrefix(strings.ToLower(line), prefix)
				if dropping {
					continue
				}
			}
		}
		kept = append(kept, line)
	}
	lines = kept

	insertAt := -1
	for i, line := range lines {
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "from:") {
			insertAt = i + 1
			for insertAt < len(lines) && lines[insertAt] != "" && (lines[insertAt][0] == ' ' || lines[insertAt][0] == '\t') {
				insertAt++
			}
			break
		}
	}
	if insertAt < 0 {
		insertAt = indexOf(lines, "")
		if insertAt < 0 {
			lines = append(lines, "")
			insertAt = len(lines) - 1
		}
	}

	lines = append(lines[:insertAt], append([]string{name + ": " + value}, lines[insertAt:]...)...)
	return strings.Join(lines, newline)
}

func indexOf(lines []string, s string) int {
	for i, line := range lines {
		if line == s {
			return i
		}
	}
	return -1
}
