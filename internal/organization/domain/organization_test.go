package domain

import (
	"errors"
	"testing"
)

func TestSlugify(t *testing.T) {
	testCases := []struct {
		name string
		want string
	}{
		{"Acme Dental, LLC", "acme-dental-llc"},
		{"  Bright   Smiles  ", "bright-smiles"},
		{"North\tShore\nDental", "north-shore-dental"},
		{"-Leading and trailing-", "leading-and-trailing"},
		{"Dr. Smith & Partners", "dr-smith-partners"},
		{"Already-a-slug", "already-a-slug"},
		{"Café Ortho", "caf-ortho"},
		{"123 Main St.", "123-main-st"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Slugify(tc.name); got != tc.want {
				t.Errorf("Slugify(%q) = %q, want %q", tc.name, got, tc.want)
			}
		})
	}
}

func TestSlugify_Idempotent(t *testing.T) {
	names := []string{"Acme Dental, LLC", "  a  b  c ", "x--y", "Ünïcode Org", "--", "Mixed CASE 42"}
	for _, name := range names {
		once := Slugify(name)
		if twice := Slugify(once); twice != once {
			t.Errorf("Slugify not idempotent for %q: %q then %q", name, once, twice)
		}
	}
}

func TestSlugify_Deterministic(t *testing.T) {
	name := "Acme Dental, LLC"
	first := Slugify(name)
	for i := 0; i < 10; i++ {
		if got := Slugify(name); got != first {
			t.Fatalf("Slugify(%q) changed between calls: %q vs %q", name, first, got)
		}
	}
}

func TestOrg_Validate(t *testing.T) {
	o := &Org{Name: "Acme", Slug: "acme"}
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if o.Status != OrgStatusActive {
		t.Errorf("status = %q, want %q", o.Status, OrgStatusActive)
	}

	testCases := []struct {
		name string
		org  Org
	}{
		{"empty name", Org{Name: "", Slug: "x"}},
		{"blank name", Org{Name: "   ", Slug: "x"}},
		{"empty slug", Org{Name: "!!!", Slug: ""}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.org.Validate(); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Validate() = %v, want ErrInvalidName", err)
			}
		})
	}
}
