package directory

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultLabels is the closed set of labels the listing site uses for
// entry details. Matching is by prefix, so the colon is part of each label.
var DefaultLabels = []string{
	"Abbot:",
	"Address:",
	"Affiliation:",
	"Community Dharma Leader:",
	"Contact:",
	"E-mail:",
	"Founder:",
	"Notes and Events:",
	"Main Contact:",
	"Phone:",
	"Spiritual Director:",
	"Teacher:",
	"Teachers:",
	"Tradition:",
	"Website:",
}

// DefaultIgnoredLabels are matched exactly and always discarded. "Find on:"
// holds a map link whose target is built from a broken address.
var DefaultIgnoredLabels = []string{"Find on:"}

// Label is a matched label node split into its field name and the text that
// followed the colon inside the same node.
type Label struct {
	Name string

	// Head is a detached text node holding the text after the colon. It is
	// the first element of the raw content run.
	Head *html.Node
}

// LabelSet recognizes label nodes against ordered label data.
type LabelSet struct {
	known   []string
	ignored []string
}

// NewLabelSet builds a LabelSet. Both slices are copied.
func NewLabelSet(known, ignored []string) *LabelSet {
	return &LabelSet{
		known:   append([]string(nil), known...),
		ignored: append([]string(nil), ignored...),
	}
}

// Match reports whether n starts a recognized field.
//
// The node text is compared by prefix so that labels carrying extra words
// ("Contact: Vice-secretary General:") still match "Contact:"; the extra
// words become the start of the value.
func (s *LabelSet) Match(n *html.Node) (Label, bool) {
	text := nodeText(n)
	for _, ig := range s.ignored {
		if text == ig {
			return Label{}, false
		}
	}
	if !s.recognized(text) {
		return Label{}, false
	}

	name, rest, _ := strings.Cut(text, ":")
	return Label{
		Name: strings.TrimSpace(name),
		Head: &html.Node{Type: html.TextNode, Data: rest},
	}, true
}

func (s *LabelSet) recognized(text string) bool {
	for _, k := range s.known {
		if strings.HasPrefix(text, k) {
			return true
		}
	}
	return false
}

// nodeText returns the concatenated text of n and its descendants.
func nodeText(n *html.Node) string {
	return goquery.NewDocumentFromNode(n).Text()
}
