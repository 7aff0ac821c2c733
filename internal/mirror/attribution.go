package mirror

import (
	"fmt"
	"regexp"
	"strings"
)

// Attribution renders the line that introduces a mirrored mail.
type Attribution struct {
	// ListName is the mailing list's display name.
	ListName string
	// ArchiveURL is prefixed to a Message-ID to link the archived mail.
	ArchiveURL string
	// ReplyToThisURL explains how to answer on the list.
	ReplyToThisURL string
}

var emailSuffix = regexp.MustCompile(` *<.*>`)

// Header returns the attribution for a message, followed by a blank line.
func (a Attribution) Header(messageID, from string) string {
	name := "Somebody"
	if from != "" {
		name = from
		if loc := emailSuffix.FindStringIndex(from); loc != nil {
			name = from[:loc[0]] + from[loc[1]:]
		}
	}

	archive := a.ArchiveURL
	if archive != "" && !strings.HasSuffix(archive, "/") {
		archive += "/"
	}

	return fmt.Sprintf("[On the %s mailing list](%s%s), %s wrote ([reply to this](%s)):\n\n",
		a.ListName, archive, messageID, name, a.ReplyToThisURL)
}
