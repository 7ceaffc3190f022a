// Package emailparser recovers e-mail addresses that listing pages hide
// behind small inline scripts.
//
// The scripts seen in the wild carry the address in "var a='...'" (often
// HTML-entity encoded) and describe the obfuscation in Base64 JSON tokens
// placed in the class attribute of the element they generate:
//
//	{"rot":"it"}    the whole address is ROT13 encoded
//	{"rmv":"xyz"}   "xyz" was injected and must be removed
//	{"h":"m"}       every real 'h' was written as 'm'
//
// No JavaScript is executed.
package emailparser

import (
	"encoding/base64"
	"encoding/json"
	"html"
	"regexp"
	"strings"
)

var (
	reVarA      = regexp.MustCompile(`\bvar\s+a\s*=\s*'([^']*)'`)
	reClassAttr = regexp.MustCompile(`\bclass\s*=\s*"([^"]+)"`)
	reEmail     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// emailClassMarkers limit directive lookup to the generated e-mail element.
var emailClassMarkers = []string{"email", "emailLink", "required"}

// DecodeEmailFromScript returns the e-mail address obfuscated by script, or
// "" when the script has no address or the decoded value is not an address.
func DecodeEmailFromScript(script string) string {
	m := reVarA.FindStringSubmatch(script)
	if m == nil {
		return ""
	}

	email := strings.TrimPrefix(strings.TrimSpace(html.UnescapeString(m[1])), "mailto:")
	email = parseDirectives(script).apply(email)

	// A ROT13 address only shows its mailto: prefix once decoded.
	email = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(email), "mailto:"))
	if !reEmail.MatchString(email) {
		return ""
	}
	return email
}

type directives struct {
	rot13    bool
	removals []string
	subst    map[rune]rune // obfuscated -> real
}

// apply undoes the obfuscation: removals, then substitutions, then ROT13.
func (d directives) apply(s string) string {
	for _, rm := range d.removals {
		s = strings.ReplaceAll(s, rm, "")
	}
	if len(d.subst) > 0 {
		s = strings.Map(func(r rune) rune {
			if orig, ok := d.subst[r]; ok {
				return orig
			}
			return r
		}, s)
	}
	if d.rot13 {
		s = strings.Map(rot13, s)
	}
	return s
}

func parseDirectives(script string) directives {
	d := directives{subst: map[rune]rune{}}

	for _, ca := range reClassAttr.FindAllStringSubmatch(script, -1) {
		if !hasEmailMarker(ca[1]) {
			continue
		}
		for _, tok := range strings.Fields(ca[1]) {
			obj, ok := decodeToken(tok)
			if !ok {
				continue
			}
			for k, v := range obj {
				switch {
				case k == "rot":
					d.rot13 = d.rot13 || v == "it"
				case k == "rmv":
					if v != "" {
						d.removals = append(d.removals, v)
					}
				default:
					kr, vr := []rune(k), []rune(v)
					if len(kr) == 1 && len(vr) == 1 {
						d.subst[vr[0]] = kr[0]
					}
				}
			}
		}
	}
	return d
}

func hasEmailMarker(class string) bool {
	for _, m := range emailClassMarkers {
		if strings.Contains(class, m) {
			return true
		}
	}
	return false
}

// decodeToken decodes a Base64 (standard or URL-safe, padding optional)
// JSON object of strings. Regular CSS class names fail fast on length.
func decodeToken(tok string) (map[string]string, bool) {
	if len(tok) < 8 || len(tok) > 80 {
		return nil, false
	}
	if rem := len(tok) % 4; rem != 0 {
		tok += strings.Repeat("=", 4-rem)
	}

	b, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		if b, err = base64.URLEncoding.DecodeString(tok); err != nil {
			return nil, false
		}
	}

	var obj map[string]string
	if err := json.Unmarshal(b, &obj); err != nil || len(obj) == 0 {
		return nil, false
	}
	return obj, true
}

func rot13(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return 'a' + (r-'a'+13)%26
	case r >= 'A' && r <= 'Z':
		return 'A' + (r-'A'+13)%26
	}
	return r
}
