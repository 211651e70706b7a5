package mailqueue

import (
	"fmt"
	"regexp"
)

var linkPattern = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)

// LinkFunc returns the tracking URL for an email, wrapping redirect when it is non-empty.
type LinkFunc func(redirect string) string

// ReplaceLinks rewrites every absolute HTTP(S) URL in content through link.
// It is not idempotent: already rewritten URLs are wrapped again.
func ReplaceLinks(content string, link LinkFunc) string {
	return linkPattern.ReplaceAllStringFunc(content, func(original string) string {
		return link(original)
	})
}

// DecorateForTracking rewrites the links of msg and, for HTML bodies, appends a hidden read pixel.
// Plain text bodies only get their links rewritten.
func DecorateForTracking(msg *Message, link LinkFunc) {
	switch {
	case msg.HTML != "":
		msg.HTML = ReplaceLinks(msg.HTML, link) + pixelTag(link(""))
		if msg.Text != "" {
			msg.Text = ReplaceLinks(msg.Text, link)
		}
	case msg.Text != "":
		msg.Text = ReplaceLinks(msg.Text, link)
	}
}

func pixelTag(src string) string {
	return fmt.Sprintf(`<img src="%s" width="1px" height="1px" style="display: none;">`, src)
}
