package mbox

import (
	"errors"
	"fmt"
	"log"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

var (
	// ErrMalformedMessage is returned when no blank line separates the headers from the body.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrMissingRequiredHeader is returned in strict mode when To, Subject or From is absent.
	ErrMissingRequiredHeader = errors.New("missing required header")
)

// Header is a single generic header, with the key in its original casing.
type Header struct {
	Key   string
	Value string
}

// Message is one parsed mail message.
// The well-known headers are pulled out into named fields, everything else stays in Headers.
type Message struct {
	Headers   []Header
	Body      string
	From      string
	To        string
	Cc        []string
	Subject   string
	Date      string
	MessageID string
	Raw       string
}

// Header returns the value of the first generic header matching key (case-insensitive).
func (m *Message) Header(key string) (string, bool) {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// Parse splits a raw mail message into headers and body.
//
// With gentle set, missing To/Subject/From headers are tolerated, which is what
// archive mode needs. Without it, the message must be complete enough to be sent.
func Parse(raw string, gentle bool) (*Message, error) {
	headerStart := 0
	if strings.HasPrefix(raw, "From ") {
		// mbox envelope line
		nl := strings.IndexByte(raw, '\n')
		if nl < 0 {
			return nil, fmt.Errorf("%w: envelope line only", ErrMalformedMessage)
		}
		headerStart = nl + 1
	}

	headerEnd := strings.Index(raw[headerStart:], "\n\n")
	if headerEnd < 0 {
		return nil, fmt.Errorf("%w: no blank line after the headers", ErrMalformedMessage)
	}
	headerEnd += headerStart

	msg := &Message{
		Body: raw[headerEnd+2:],
		Raw:  raw,
	}

	lines := unfoldHeaderLines(raw[headerStart:headerEnd])
	for i, line := range lines {
		colon := strings.Index(line, ": ")
		if colon < 0 {
			if !strings.HasSuffix(line, ":") {
				log.Printf("Warning: ignoring header line %d of %d without a colon: %q", i+1, len(lines), line)
			}
			continue
		}

		key := line[:colon]
		value := strings.TrimSpace(line[colon+2:])
		switch strings.ToLower(key) {
		case "cc":
			msg.Cc = append(msg.Cc, splitAddressList(value)...)
		case "date":
			msg.Date = value
		case "fcc":
		case "from":
			msg.From = decodeHeaderValue(key, value)
		case "message-id":
			msg.MessageID = value
		case "subject":
			msg.Subject = value
		case "to":
			msg.To = value
		default:
			msg.Headers = append(msg.Headers, Header{Key: key, Value: value})
		}
	}

	if !gentle && (msg.To == "" || msg.Subject == "" || msg.From == "") {
		return nil, fmt.Errorf("%w: To, Subject and From are all needed", ErrMissingRequiredHeader)
	}

	return msg, nil
}

// unfoldHeaderLines splits a header block into logical lines. Continuation lines
// (starting with a space or a tab) are merged into the previous line, with the
// line break and the leading whitespace collapsed into a single space.
func unfoldHeaderLines(block string) []string {
	var lines []string
	for _, physical := range strings.Split(block, "\n") {
		physical = strings.TrimSuffix(physical, "\r")
		if len(lines) > 0 && (strings.HasPrefix(physical, " ") || strings.HasPrefix(physical, "\t")) {
			lines[len(lines)-1] += " " + strings.TrimLeft(physical, " \t")
			continue
		}
		lines = append(lines, physical)
	}
	return lines
}

func splitAddressList(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

// decodeHeaderValue decodes RFC2047 encoded-words, falling back to the raw value.
func decodeHeaderValue(key, value string) string {
	var h mail.Header
	h.Set(key, value)
	decoded, err := h.Text(key)
	if err != nil {
		log.Printf("Warning: failed to decode %s header %q: %v", key, value, err)
		return value
	}
	return decoded
}
