package util

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)^```[a-zA-Z]*[ \t]*\r?\n(.*?)\r?\n?```$")

// StripCodeFence returns the body of text when the whole of it is a single
// fenced block, as chat models like to wrap markdown answers. Anything else
// is only trimmed.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	matches := fencedBlock.FindStringSubmatch(text)
	if len(matches) > 1 && !strings.Contains(matches[1], "```") {
		return strings.TrimSpace(matches[1])
	}
	return text
}
