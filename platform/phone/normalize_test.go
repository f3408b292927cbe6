package phone

import "testing"

func TestNormalizeE164FormatsNationalNumbers(t *testing.T) {
	cases := map[string]string{
		"(212) 867-5309":  "+12128675309",
		"212-867-5309":    "+12128675309",
		"+1 212 867 5309": "+12128675309",
	}

	for input, want := range cases {
		if got := NormalizeE164(input); got != want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeE164KeepsUnparseableInput(t *testing.T) {
	if got := NormalizeE164("not-a-number"); got != "not-a-number" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	if got := NormalizeE164("  "); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
