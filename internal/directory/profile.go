package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile describes the markup and paging of a listing site.
//
// Every field has a default (see DefaultProfile); a profile file only needs
// to list the fields it overrides.
type Profile struct {
	NameSelector   string   `json:"name_selector" yaml:"name_selector"`
	DetailSelector string   `json:"detail_selector" yaml:"detail_selector"`
	NotesSelector  string   `json:"notes_selector" yaml:"notes_selector"`
	StopSelector   string   `json:"stop_selector" yaml:"stop_selector"` // ends the notes search, as does <hr>
	Labels         []string `json:"labels" yaml:"labels"`
	IgnoredLabels  []string `json:"ignored_labels" yaml:"ignored_labels"`
	NotesLabel     string   `json:"notes_label" yaml:"notes_label"`     // field filled from the notes block
	AddressLabel   string   `json:"address_label" yaml:"address_label"` // field run through NormalizeAddress
	ListURL        string   `json:"list_url" yaml:"list_url"`           // %d is replaced by the entry offset
	PerPage        int      `json:"per_page" yaml:"per_page"`
}

// DefaultProfile returns the profile of the World Buddhist Directory
// country listing for the United States.
func DefaultProfile() Profile {
	return Profile{
		NameSelector:   "p.entryName",
		DetailSelector: "p.entryDetail",
		NotesSelector:  ".entryDesc",
		StopSelector:   ".entryName",
		Labels:         append([]string(nil), DefaultLabels...),
		IgnoredLabels:  append([]string(nil), DefaultIgnoredLabels...),
		NotesLabel:     "Notes and Events",
		AddressLabel:   "Address",
		ListURL:        "http://www.buddhanet.info/wbd/country.php?country_id=2&offset=%d",
		PerPage:        25,
	}
}

// LoadProfile reads a profile file on top of DefaultProfile and validates
// the result. Files ending in .yaml or .yml are YAML; anything else is JSON.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()

	b, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &p); err != nil {
			return Profile{}, fmt.Errorf("parse profile yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &p); err != nil {
			return Profile{}, fmt.Errorf("parse profile json: %w", err)
		}
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate reports the first missing or inconsistent setting.
func (p Profile) Validate() error {
	switch {
	case strings.TrimSpace(p.NameSelector) == "":
		return fmt.Errorf("profile: name_selector is required")
	case strings.TrimSpace(p.DetailSelector) == "":
		return fmt.Errorf("profile: detail_selector is required")
	case len(p.Labels) == 0:
		return fmt.Errorf("profile: labels must not be empty")
	case p.PerPage <= 0:
		return fmt.Errorf("profile: per_page must be > 0")
	}
	if p.ListURL != "" && strings.Count(p.ListURL, "%d") != 1 {
		return fmt.Errorf("profile: list_url must contain exactly one %%d for the offset")
	}
	for _, l := range p.Labels {
		field, _, ok := strings.Cut(l, ":")
		if !ok {
			return fmt.Errorf("profile: label %q has no colon", l)
		}
		if reservedFields[strings.TrimSpace(field)] {
			return fmt.Errorf("profile: label %q collides with the record field %q", l, strings.TrimSpace(field))
		}
	}
	return nil
}

// reservedFields are written by the extractor or by extract-html -dir and
// cannot be produced by a label.
var reservedFields = map[string]bool{
	"name":        true,
	"page":        true,
	"source_file": true,
}
