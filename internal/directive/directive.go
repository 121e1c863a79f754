// Package directive extracts control tokens embedded in raw assistant replies.
package directive

import (
	"regexp"
	"strings"
)

// Kind identifies a control directive.
type Kind int

const (
	// EndChat asks the widget to close the conversation and collect a rating.
	EndChat Kind = iota + 1
	// AddPrototype asks the widget to generate a prototype from the payload.
	AddPrototype
	// TalkWithAgent requests a human handoff. It is recognized and stripped only.
	TalkWithAgent
)

// String returns the marker text for k.
func (k Kind) String() string {
	switch k {
	case EndChat:
		return "[END_CHAT]"
	case AddPrototype:
		return "[ADD_PROTOTYPE]"
	case TalkWithAgent:
		return "[TALK_WITH_AGENT]"
	default:
		return "unknown"
	}
}

var (
	markers = []struct {
		kind    Kind
		pattern *regexp.Regexp
	}{
		{EndChat, regexp.MustCompile(`(?i)\[END_CHAT\]`)},
		{AddPrototype, regexp.MustCompile(`(?i)\[ADD_PROTOTYPE\]`)},
		{TalkWithAgent, regexp.MustCompile(`(?i)\[TALK_WITH_AGENT\]`)},
	}

	payloadPattern = regexp.MustCompile(`(?s)'''(.+?)'''`)
)

// Result is a parsed reply.
type Result struct {
	// Text is the reply with payload and markers removed, trimmed.
	Text string
	// Prompt is the trimmed inner text of the first ''' payload, or "".
	Prompt     string
	Directives []Kind
}

// Has returns true if the reply carried directive k.
func (r Result) Has(k Kind) bool {
	for _, d := range r.Directives {
		if d == k {
			return true
		}
	}
	return false
}

// Parse splits a raw reply into display text, directives and payload.
func Parse(raw string) Result {
	var res Result

	if m := payloadPattern.FindStringSubmatch(raw); m != nil {
		res.Prompt = strings.TrimSpace(m[1])
	}

	text := payloadPattern.ReplaceAllString(raw, "")
	for _, mk := range markers {
		if mk.pattern.MatchString(raw) {
			res.Directives = append(res.Directives, mk.kind)
		}
		text = mk.pattern.ReplaceAllString(text, "")
	}
	res.Text = strings.TrimSpace(text)

	return res
}
