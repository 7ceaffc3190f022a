package directory

import "testing"

// TestNormalizeAddress covers the malformations the listing site produces.
func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "trailing duplicated state",
			in:   "275 W. 96th Street, #4C New York, NY 10025\u00a0\u00a0NY",
			want: "275 W. 96th Street, #4C New York, NY 10025",
		},
		{
			name: "trailing state after spaces and nbsp",
			in:   "275 W. 96th Street, #4C New York, NY 10025                   \u00a0  NY",
			want: "275 W. 96th Street, #4C New York, NY 10025",
		},
		{
			name: "physical and mailing",
			in:   "Physical: 123 Road\nCity, State\n\nMailing: PO Box 1\n\n City2 State2",
			want: "123 Road, City, State",
		},
		{
			name: "crlf lines",
			in:   "12 Elm St\r\nSpringfield, IL 62701",
			want: "12 Elm St, Springfield, IL 62701",
		},
		{
			name: "layout spacing becomes comma",
			in:   "12 Elm St\u00a0 Springfield, IL 62701",
			want: "12 Elm St, Springfield, IL 62701",
		},
		{
			name: "duplicate commas collapse",
			in:   "12 Elm St,\nSpringfield, IL",
			want: "12 Elm St, Springfield, IL",
		},
		{
			name: "state without nbsp is kept",
			in:   "Chicago, IL",
			want: "Chicago, IL",
		},
		{
			name: "spaces collapse",
			in:   "1  Main   St",
			want: "1 Main St",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeAddress(tc.in); got != tc.want {
				t.Fatalf("NormalizeAddress(%q): want %q, got %q", tc.in, tc.want, got)
			}
		})
	}
}

// TestNormalizeAddress_Idempotent verifies normalizing twice is a no-op
// after the first pass.
func TestNormalizeAddress_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"275 W. 96th Street, #4C New York, NY 10025\u00a0\u00a0NY",
		"Physical: 123 Road\nCity, State\n\nMailing: PO Box 1",
		"12 Elm St\u00a0 Springfield, IL 62701",
		"  a,,, b \r\n\r\n c ",
		"",
	}
	for _, in := range inputs {
		once := NormalizeAddress(in)
		twice := NormalizeAddress(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
