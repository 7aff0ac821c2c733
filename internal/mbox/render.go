package mbox

import (
	"io"
	"log"
	"strings"

	"github.com/emersion/go-message"
)

// fence is long enough that code blocks quoted inside a mail do not close it.
const fence = "``````````\n"

// DecodedBody returns the body with its Content-Transfer-Encoding undone.
// Only base64 and quoted-printable are decoded; any other encoding is returned verbatim.
func DecodedBody(msg *Message) string {
	encoding, _ := msg.Header("Content-Transfer-Encoding")
	encoding = strings.ToLower(strings.TrimSpace(encoding))
	if encoding != "base64" && encoding != "quoted-printable" {
		return msg.Body
	}

	var h message.Header
	h.Set("Content-Transfer-Encoding", encoding)
	entity, err := message.New(h, strings.NewReader(msg.Body))
	if err != nil {
		log.Printf("Warning: failed to set up %s decoding for %s: %v", encoding, msg.MessageID, err)
		return msg.Body
	}

	decoded, err := io.ReadAll(entity.Body)
	if err != nil {
		log.Printf("Warning: failed to decode %s body of %s: %v", encoding, msg.MessageID, err)
		return msg.Body
	}
	return string(decoded)
}

// RenderQuoted returns the decoded body wrapped in a fenced block, or an empty
// string when there is nothing to quote.
func RenderQuoted(msg *Message) string {
	body := DecodedBody(msg)
	if body == "" {
		return ""
	}
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return fence + body + fence
}
