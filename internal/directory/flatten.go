package directory

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"wbdscrape/internal/emailparser"
)

// reLayoutSpace matches whitespace and non-breaking space runs.
var reLayoutSpace = regexp.MustCompile(`[\s\x{a0}]+`)

// FlattenNodes joins the contribution of every node in run with a single
// space and trims the result.
//
// Links contribute their href (minus "mailto:"), not their display text.
// Inline scripts contribute the e-mail address they obfuscate, if any.
func FlattenNodes(run []*html.Node) string {
	chunks := make([]string, 0, len(run))
	for _, n := range run {
		chunks = append(chunks, nodeValue(n))
	}
	return strings.TrimSpace(strings.Join(chunks, " "))
}

// CollapseSpace replaces every run of whitespace or non-breaking spaces with
// one ordinary space.
func CollapseSpace(s string) string {
	return reLayoutSpace.ReplaceAllString(s, " ")
}

func nodeValue(n *html.Node) string {
	if n.Type != html.ElementNode {
		return nodeText(n)
	}
	switch n.DataAtom {
	case atom.A:
		if href, ok := attr(n, "href"); ok {
			return strings.TrimPrefix(href, "mailto:")
		}
	case atom.Script:
		return emailparser.DecodeEmailFromScript(nodeText(n))
	}
	return nodeText(n)
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
