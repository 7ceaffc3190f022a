package directory

import (
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// inlineElements may appear between a label and its terminating <br>.
var inlineElements = map[atom.Atom]bool{
	atom.A:      true,
	atom.Abbr:   true,
	atom.B:      true,
	atom.Big:    true,
	atom.Cite:   true,
	atom.Code:   true,
	atom.Em:     true,
	atom.Font:   true,
	atom.I:      true,
	atom.Img:    true,
	atom.Script: true,
	atom.Small:  true,
	atom.Span:   true,
	atom.Strong: true,
	atom.Sub:    true,
	atom.Sup:    true,
	atom.U:      true,
}

// collectValue returns the raw content run of a field: the label's head text
// followed by every sibling after labelNode up to, not including, the first
// <br>. Comments are skipped. Anything else that is not text or an inline
// element means the entry does not have the expected shape.
func collectValue(labelNode *html.Node, l Label) ([]*html.Node, error) {
	run := []*html.Node{l.Head}

	for sib := labelNode.NextSibling; sib != nil; sib = sib.NextSibling {
		switch sib.Type {
		case html.TextNode:
			run = append(run, sib)
		case html.CommentNode:
			continue
		case html.ElementNode:
			if sib.DataAtom == atom.Br {
				return run, nil
			}
			if !inlineElements[sib.DataAtom] {
				return nil, &MalformedEntryError{
					Label:  l.Name,
					Reason: fmt.Sprintf("unexpected <%s> element in value", sib.Data),
				}
			}
			run = append(run, sib)
		default:
			return nil, &MalformedEntryError{
				Label:  l.Name,
				Reason: fmt.Sprintf("unexpected node type %d in value", sib.Type),
			}
		}
	}
	return run, nil
}
