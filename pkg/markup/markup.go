// Package markup renders user supplied markdown into sanitized HTML for the
// forum. Render is pure: callers invoke it whenever a body is set.
package markup

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Policy names the allowed tag set for a kind of content.
type Policy int

const (
	// PostPolicy allows block level formatting.
	PostPolicy Policy = iota
	// CommentPolicy allows inline formatting only.
	CommentPolicy
)

var (
	inlineTags = []string{"a", "abbr", "acronym", "b", "code", "em", "i", "strong"}
	blockTags  = []string{"blockquote", "li", "ol", "pre", "ul", "h1", "h2", "h3", "p"}

	md = goldmark.New(goldmark.WithExtensions(extension.Linkify))

	policies = map[Policy]*bluemonday.Policy{
		PostPolicy:    newPolicy(append(append([]string{}, inlineTags...), blockTags...)),
		CommentPolicy: newPolicy(inlineTags),
	}
)

func newPolicy(tags []string) *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(tags...)
	p.AllowStandardURLs()
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("title").OnElements("abbr", "acronym")
	p.RequireNoFollowOnLinks(true)
	return p
}

// Render converts markdown body to HTML and strips every tag the policy does
// not allow. Invalid markdown never fails; the worst case is escaped text.
func Render(body string, policy Policy) string {
	if body == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(body), &buf); err != nil {
		buf.Reset()
		buf.WriteString(body)
	}
	p, ok := policies[policy]
	if !ok {
		p = policies[CommentPolicy]
	}
	return p.Sanitize(buf.String())
}
