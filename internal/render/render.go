// Package render turns bot answers into displayable text.
package render

import (
	"regexp"
	"strings"
)

// LinkText is the visible text of every rendered link.
const LinkText = "Link"

var (
	linkPattern     = regexp.MustCompile(`(https?://[^\s]+)|(/prototype[^\s]*)`)
	listItemPattern = regexp.MustCompile(`\d+\.\s`)
)

// Segment is a run of answer text. Href is set for links.
type Segment struct {
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// IsLink reports whether the segment is a link.
func (s Segment) IsLink() bool { return s.Href != "" }

// Linkify splits text into plain and link segments. Absolute URLs and
// prototype paths become links displayed as LinkText.
func Linkify(text string) []Segment {
	var segs []Segment
	last := 0
	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			segs = append(segs, Segment{Text: text[last:loc[0]]})
		}
		segs = append(segs, Segment{Text: LinkText, Href: text[loc[0]:loc[1]]})
		last = loc[1]
	}
	if last < len(text) {
		segs = append(segs, Segment{Text: text[last:]})
	}
	return segs
}

// Lines splits an answer into display lines, starting a new line before each
// numbered list item ("1. ", "2. ", ...).
func Lines(text string) []string {
	locs := listItemPattern.FindAllStringIndex(text, -1)
	var lines []string
	start := 0
	for _, loc := range locs {
		if loc[0] == start {
			continue
		}
		lines = appendLine(lines, text[start:loc[0]])
		start = loc[0]
	}
	return appendLine(lines, text[start:])
}

func appendLine(lines []string, line string) []string {
	if line = strings.TrimSpace(line); line != "" {
		lines = append(lines, line)
	}
	return lines
}

// Format renders an answer for a plain-text terminal: one line per list
// item, links written as "Link <href>".
func Format(text string) string {
	var b strings.Builder
	for i, line := range Lines(text) {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, seg := range Linkify(line) {
			if seg.IsLink() {
				b.WriteString(seg.Text + " <" + seg.Href + ">")
				continue
			}
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}
