package logic

import (
	"fmt"
	"testing"

	"github.com/panelworks/adserve/internal/models"
)

func TestCollapseVariantsOnePerGroup(t *testing.T) {
	slot := models.SlotKey{Page: models.PageHomepage, Location: models.LocationTopBanner}

	a := slotAd(1, slot, 0)
	a.VariantGroup, a.VariantName = "hero", "control"
	b := slotAd(2, slot, 1)
	b.VariantGroup, b.VariantName = "hero", "treatment"
	plain := slotAd(3, slot, 2)

	got := CollapseVariants([]models.Advertisement{a, b, plain}, "u:1")
	if len(got) != 2 {
		t.Fatalf("kept %d ads, want 2", len(got))
	}
	if got[0].VariantGroup != "hero" {
		t.Fatalf("expected a hero variant first, got %+v", got[0])
	}
	if got[1].ID != 3 {
		t.Fatalf("ungrouped ad dropped: %v", ids(got))
	}
}

func TestCollapseVariantsStablePerViewer(t *testing.T) {
	slot := models.SlotKey{Page: models.PageHomepage, Location: models.LocationTopBanner}
	a := slotAd(1, slot, 0)
	a.VariantGroup = "promo"
	b := slotAd(2, slot, 1)
	b.VariantGroup = "promo"

	first := CollapseVariants([]models.Advertisement{a, b}, "u:42")
	for i := 0; i < 50; i++ {
		got := CollapseVariants([]models.Advertisement{a, b}, "u:42")
		if len(got) != 1 || got[0].ID != first[0].ID {
			t.Fatalf("iteration %d picked ad %d, first pick was %d", i, got[0].ID, first[0].ID)
		}
	}

	// Candidate order must not change the assignment.
	swapped := CollapseVariants([]models.Advertisement{b, a}, "u:42")
	if swapped[0].ID != first[0].ID {
		t.Fatalf("order-dependent pick: %d vs %d", swapped[0].ID, first[0].ID)
	}
}

func TestCollapseVariantsSplitsPopulation(t *testing.T) {
	slot := models.SlotKey{Page: models.PageHomepage, Location: models.LocationTopBanner}
	a := slotAd(1, slot, 0)
	a.VariantGroup = "promo"
	b := slotAd(2, slot, 1)
	b.VariantGroup = "promo"

	counts := map[int]int{}
	for i := 0; i < 1000; i++ {
		got := CollapseVariants([]models.Advertisement{a, b}, fmt.Sprintf("u:%d", i))
		counts[got[0].ID]++
	}
	// A uniform hash should not starve either arm. Wide tolerance: each arm
	// gets at least 30% of viewers.
	for id, n := range counts {
		if n < 300 {
			t.Fatalf("arm %d got only %d of 1000 viewers: %v", id, n, counts)
		}
	}
}

func TestCollapseVariantsSingleMember(t *testing.T) {
	slot := models.SlotKey{Page: models.PageHomepage, Location: models.LocationTopBanner}
	a := slotAd(1, slot, 0)
	a.VariantGroup = "solo"

	got := CollapseVariants([]models.Advertisement{a}, "")
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("single member collapsed away: %v", ids(got))
	}
}
