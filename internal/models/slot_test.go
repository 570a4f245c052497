package models

import (
	"errors"
	"testing"
)

func TestParseLegacyPlacement(t *testing.T) {
	cases := []struct {
		in       string
		page     Page
		location Location
		wantErr  bool
	}{
		{"homepage_top_banner", PageHomepage, LocationTopBanner, false},
		{"manga_detail_sidebar", PageMangaDetail, LocationSidebar, false},
		{"reader_in_content_1", PageReader, LocationInContent1, false},
		{"search_results_bottom_banner", PageSearchResults, LocationBottomBanner, false},
		{"homepage_nowhere", "", "", true},
		{"nosuchpage_sidebar", "", "", true},
		{"", "", "", true},
	}
	for _, tc := range cases {
		k, err := ParseLegacyPlacement(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLegacyPlacement(%q): expected error, got %v", tc.in, k)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLegacyPlacement(%q): %v", tc.in, err)
			continue
		}
		if k.Page != tc.page || k.Location != tc.location {
			t.Errorf("ParseLegacyPlacement(%q) = %v, want {%s %s}", tc.in, k, tc.page, tc.location)
		}
	}
}

func TestNormalizeSlot(t *testing.T) {
	// Structured pair wins over legacy placement.
	k, err := NormalizeSlot("reader", "sidebar", "homepage_top_banner")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if k.Page != PageReader || k.Location != LocationSidebar {
		t.Fatalf("unexpected slot %v", k)
	}

	// Legacy placement alone is parsed.
	k, err = NormalizeSlot("", "", "homepage_top_banner")
	if err != nil {
		t.Fatalf("normalize legacy: %v", err)
	}
	if k.String() != "homepage_top_banner" {
		t.Fatalf("round trip = %q", k.String())
	}

	// Neither form is an error.
	if _, err := NormalizeSlot("", "", ""); err == nil {
		t.Fatal("expected error for empty slot")
	}
}

func TestUnknownSlotSentinel(t *testing.T) {
	if _, err := ParseSlot("basement", "top_banner"); !errors.Is(err, ErrUnknownSlot) {
		t.Fatalf("ParseSlot: got %v, want ErrUnknownSlot", err)
	}
	if _, err := ParseSlot("homepage", "nowhere"); !errors.Is(err, ErrUnknownSlot) {
		t.Fatalf("ParseSlot location: got %v, want ErrUnknownSlot", err)
	}
	if _, err := ParseLegacyPlacement("basement_banner"); !errors.Is(err, ErrUnknownSlot) {
		t.Fatalf("ParseLegacyPlacement: got %v, want ErrUnknownSlot", err)
	}
}

func TestSlotCapacity(t *testing.T) {
	if c := (SlotKey{PageHomepage, LocationSidebar}).Capacity(); c != 3 {
		t.Fatalf("sidebar capacity = %d, want 3", c)
	}
	if c := (SlotKey{PageHomepage, LocationTopBanner}).Capacity(); c != DefaultSlotCapacity {
		t.Fatalf("top banner capacity = %d, want %d", c, DefaultSlotCapacity)
	}
}
