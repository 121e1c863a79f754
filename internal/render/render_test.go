package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Segment
	}{
		{
			name: "plain text",
			in:   "hello there",
			want: []Segment{{Text: "hello there"}},
		},
		{
			name: "prototype path",
			in:   "✅ Prototype created! Preview it here: /prototype/abc-123",
			want: []Segment{
				{Text: "✅ Prototype created! Preview it here: "},
				{Text: "Link", Href: "/prototype/abc-123"},
			},
		},
		{
			name: "absolute url between text",
			in:   "see https://example.com/docs?q=1 for more",
			want: []Segment{
				{Text: "see "},
				{Text: "Link", Href: "https://example.com/docs?q=1"},
				{Text: " for more"},
			},
		},
		{
			name: "two links",
			in:   "http://a.io and /prototype",
			want: []Segment{
				{Text: "Link", Href: "http://a.io"},
				{Text: " and "},
				{Text: "Link", Href: "/prototype"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Linkify(tt.in))
		})
	}
}

func TestLinkifyEmpty(t *testing.T) {
	assert.Empty(t, Linkify(""))
}

func TestLines(t *testing.T) {
	got := Lines("Options: 1. Web app 2. Mobile app 3. API")
	assert.Equal(t, []string{"Options:", "1. Web app", "2. Mobile app", "3. API"}, got)

	assert.Equal(t, []string{"1. only"}, Lines("1. only"))
	assert.Equal(t, []string{"no list here"}, Lines("no list here"))
	assert.Empty(t, Lines("   "))
}

func TestFormat(t *testing.T) {
	got := Format("Done: 1. open /prototype/x 2. share")
	assert.Equal(t, "Done:\n1. open Link </prototype/x>\n2. share", got)
}
