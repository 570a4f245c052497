package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSlot is returned when a placement request names a slot the
// platform does not have. Parse errors wrap it, so callers can test with
// errors.Is.
var ErrUnknownSlot = errors.New("unknown slot")

// Page identifies the platform page an ad slot lives on.
type Page string

// Pages known to the platform.
const (
	PageHomepage      Page = "homepage"
	PageMangaDetail   Page = "manga_detail"
	PageReader        Page = "reader"
	PageSearchResults Page = "search_results"
)

// Location identifies where on a page an ad slot sits.
type Location string

// Locations known to the platform.
const (
	LocationTopBanner    Location = "top_banner"
	LocationBottomBanner Location = "bottom_banner"
	LocationSidebar      Location = "sidebar"
	LocationInContent1   Location = "in_content_1"
	LocationInContent2   Location = "in_content_2"
)

var pages = []Page{PageHomepage, PageMangaDetail, PageReader, PageSearchResults}

var locations = []Location{
	LocationTopBanner, LocationBottomBanner, LocationSidebar,
	LocationInContent1, LocationInContent2,
}

// SlotKey is the structured identity of an ad slot. All delivery logic keys
// on this pair; the legacy free-text placement string is normalized into it
// at every boundary and never consulted afterwards.
type SlotKey struct {
	Page     Page
	Location Location
}

// String renders the slot in its legacy combined form, e.g.
// "homepage_top_banner".
func (k SlotKey) String() string {
	return string(k.Page) + "_" + string(k.Location)
}

// slotCapacities holds per-location maximum ad counts. Locations not listed
// fall back to DefaultSlotCapacity.
var slotCapacities = map[Location]int{
	LocationSidebar: 3,
}

// DefaultSlotCapacity is the maximum ad count for locations without an
// explicit capacity.
const DefaultSlotCapacity = 1

// Capacity returns the maximum number of ads the slot renders.
func (k SlotKey) Capacity() int {
	if c, ok := slotCapacities[k.Location]; ok {
		return c
	}
	return DefaultSlotCapacity
}

func validPage(p Page) bool {
	for _, v := range pages {
		if v == p {
			return true
		}
	}
	return false
}

func validLocation(l Location) bool {
	for _, v := range locations {
		if v == l {
			return true
		}
	}
	return false
}

// ParseSlot validates a (page, location) pair.
func ParseSlot(page, location string) (SlotKey, error) {
	k := SlotKey{Page: Page(page), Location: Location(location)}
	if !validPage(k.Page) {
		return SlotKey{}, fmt.Errorf("%w: unknown page %q", ErrUnknownSlot, page)
	}
	if !validLocation(k.Location) {
		return SlotKey{}, fmt.Errorf("%w: unknown location %q", ErrUnknownSlot, location)
	}
	return k, nil
}

// ParseLegacyPlacement splits a combined "page_location" value. Both halves
// contain underscores themselves, so the split matches against the known page
// prefixes rather than a fixed separator position.
func ParseLegacyPlacement(placement string) (SlotKey, error) {
	for _, p := range pages {
		prefix := string(p) + "_"
		if strings.HasPrefix(placement, prefix) {
			loc := Location(strings.TrimPrefix(placement, prefix))
			if validLocation(loc) {
				return SlotKey{Page: p, Location: loc}, nil
			}
		}
	}
	return SlotKey{}, fmt.Errorf("%w: unknown placement %q", ErrUnknownSlot, placement)
}

// NormalizeSlot resolves the structured pair from whichever form the caller
// supplied. The structured pair wins when both are present; a legacy
// placement alone is parsed into it. Supplying neither is an error.
func NormalizeSlot(page, location, placement string) (SlotKey, error) {
	if page != "" || location != "" {
		return ParseSlot(page, location)
	}
	if placement != "" {
		return ParseLegacyPlacement(placement)
	}
	return SlotKey{}, fmt.Errorf("either page and location or a legacy placement is required")
}
