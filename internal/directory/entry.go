package directory

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Extractor turns listing pages into Records according to a Profile.
// It holds no per-page state and may be reused across pages.
type Extractor struct {
	profile Profile
	labels  *LabelSet
	opts    Options
}

// NewExtractor creates an Extractor. The profile is expected to be valid.
func NewExtractor(p Profile, opts Options) *Extractor {
	return &Extractor{
		profile: p,
		labels:  NewLabelSet(p.Labels, p.IgnoredLabels),
		opts:    opts,
	}
}

// Profile returns the profile the extractor was built with.
func (e *Extractor) Profile() Profile { return e.profile }

// Labels returns the label matcher of the extractor.
func (e *Extractor) Labels() *LabelSet { return e.labels }

// ExtractEntry assembles the record for one (name, detail) pair.
//
// Every <strong> inside detail is a label candidate. Recognized labels are
// collected up to the next <br>, flattened, and merged into the record.
// A notes block following detail fills the notes field.
//
// On error no record is produced; the error is a *MalformedEntryError.
func (e *Extractor) ExtractEntry(name, detail *goquery.Selection, page int) (Record, error) {
	rec := Record{
		Name: strings.TrimSpace(name.Text()),
		Page: page,
	}

	for _, n := range detail.Find("strong").Nodes {
		l, ok := e.labels.Match(n)
		if !ok {
			continue
		}
		run, err := collectValue(n, l)
		if err != nil {
			return Record{}, withName(err, rec.Name)
		}
		mergeDuplicate(&rec, l.Name, e.flatten(l.Name, run))
	}

	if err := e.attachNotes(detail, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// flatten turns a raw content run into the field value. The address rules
// run before spaces are collapsed because they key off non-breaking spaces.
func (e *Extractor) flatten(field string, run []*html.Node) string {
	v := FlattenNodes(run)
	if field == e.profile.AddressLabel {
		v = NormalizeAddress(v)
	}
	return CollapseSpace(v)
}

// mergeDuplicate stores value under key. A label seen twice in one entry
// keeps both values, in encounter order, joined by ", ".
func mergeDuplicate(rec *Record, key, value string) {
	if prev, ok := rec.Get(key); ok {
		rec.Set(key, prev+", "+value)
		return
	}
	rec.Set(key, value)
}

// attachNotes fills the notes field from the notes block that follows the
// detail block. The site declares an empty notes label inside the details
// and puts the text in a separate block; anything else is an error.
func (e *Extractor) attachNotes(detail *goquery.Selection, rec *Record) error {
	block := e.findNotesBlock(detail)
	if block == nil {
		return nil
	}

	label := e.profile.NotesLabel
	prev, ok := rec.Get(label)
	if !ok {
		return &MalformedEntryError{
			Name:   rec.Name,
			Label:  label,
			Reason: "notes block found but the label is missing",
		}
	}
	if prev != "" {
		return &MalformedEntryError{
			Name:   rec.Name,
			Label:  label,
			Reason: "notes block found but the label already has text: " + prev,
		}
	}

	rec.Set(label, strings.TrimSpace(nodeText(block)))
	return nil
}

// findNotesBlock walks the siblings after detail. It stops at a horizontal
// rule or at a block matching the stop selector (the next entry's name).
func (e *Extractor) findNotesBlock(detail *goquery.Selection) *html.Node {
	if e.profile.NotesSelector == "" || detail.Length() == 0 {
		return nil
	}
	for sib := detail.Nodes[0].NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode {
			continue
		}
		s := goquery.NewDocumentFromNode(sib)
		if s.Is(e.profile.NotesSelector) {
			return sib
		}
		if sib.DataAtom == atom.Hr || (e.profile.StopSelector != "" && s.Is(e.profile.StopSelector)) {
			return nil
		}
	}
	return nil
}

func withName(err error, name string) error {
	var me *MalformedEntryError
	if errors.As(err, &me) {
		me.Name = name
	}
	return err
}
