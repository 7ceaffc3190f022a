package directory

import "regexp"

// rewrite is one step of the address pipeline.
type rewrite struct {
	name string
	re   *regexp.Regexp
	repl string
}

// addressRewrites repairs the address markup of the listing site. The order
// matters: later steps assume the cleanup done by earlier ones. RE2's \s does
// not include U+00A0, so non-breaking spaces are spelled out.
var addressRewrites = []rewrite{
	{
		// Physical and mailing addresses are sometimes both listed; keep
		// only the physical one.
		name: "drop mailing section",
		re:   regexp.MustCompile(`(?s)[\s\x{a0}]*Mailing:.*$`),
		repl: "",
	},
	{
		name: "join lines",
		re:   regexp.MustCompile(`(?:\r\n|\n)+`),
		repl: ", ",
	},
	{
		name: "drop physical marker",
		re:   regexp.MustCompile(`^[\s\x{a0}]*Physical:[\s\x{a0}]*`),
		repl: "",
	},
	{
		// The state code is repeated after the zip code, separated by
		// non-breaking spaces.
		name: "drop trailing state",
		re:   regexp.MustCompile(`[\s\x{a0}]*\x{a0}[\s\x{a0}]*[A-Z]{2}$`),
		repl: "",
	},
	{
		// Street and city are sometimes separated by layout spacing only.
		name: "comma for layout spacing",
		re:   regexp.MustCompile(`[\s\x{a0}]*\x{a0}[\s\x{a0}]+([^\s\x{a0}])`),
		repl: ", ${1}",
	},
	{
		name: "single commas",
		re:   regexp.MustCompile(`,+`),
		repl: ",",
	},
	{
		name: "single spaces",
		re:   regexp.MustCompile(`[\s\x{a0}]+`),
		repl: " ",
	},
}

// NormalizeAddress applies the address rewrites in order. It is tuned to one
// site's quirks and is not an address parser. Applying it to its own output
// returns the same string.
func NormalizeAddress(s string) string {
	for _, rw := range addressRewrites {
		s = rw.re.ReplaceAllString(s, rw.repl)
	}
	return s
}
