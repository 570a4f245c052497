package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testAd(id int, slot SlotKey, order int) Advertisement {
	return Advertisement{
		ID:           id,
		Page:         slot.Page,
		Location:     slot.Location,
		ImageURL:     "https://cdn.example.com/a.png",
		LinkURL:      "https://example.com",
		Title:        "ad",
		Type:         AdTypeBanner,
		Active:       true,
		DisplayOrder: order,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, id, 0, time.UTC),
	}
}

func TestGetAdsBySlotOrdering(t *testing.T) {
	slot := SlotKey{PageHomepage, LocationTopBanner}
	s := NewInMemoryAdStore()

	a := testAd(1, slot, 2)
	b := testAd(2, slot, 1)
	c := testAd(3, slot, 1)
	c.CreatedAt = b.CreatedAt.Add(-time.Hour) // older, same order

	if err := s.ReloadAll([]Advertisement{a, b, c}, nil); err != nil {
		t.Fatalf("reload: %v", err)
	}

	got := s.GetAdsBySlot(slot)
	if len(got) != 3 {
		t.Fatalf("got %d ads, want 3", len(got))
	}
	wantIDs := []int{3, 2, 1} // order asc, then created asc
	for i, want := range wantIDs {
		if got[i].ID != want {
			t.Fatalf("position %d = ad %d, want %d", i, got[i].ID, want)
		}
	}
}

func TestStoreCRUD(t *testing.T) {
	slot := SlotKey{PageReader, LocationInContent1}
	s := NewInMemoryAdStore()

	ad := testAd(10, slot, 0)
	if err := s.InsertAd(&ad); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got := s.GetAd(10); got == nil || got.Title != "ad" {
		t.Fatalf("get after insert: %+v", got)
	}

	ad.Title = "updated"
	if err := s.UpdateAd(ad); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.GetAd(10); got.Title != "updated" {
		t.Fatalf("title = %q after update", got.Title)
	}

	if err := s.SetAdActive(10, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if s.GetAd(10).Active {
		t.Fatal("ad still active")
	}

	if err := s.DeleteAd(10); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.GetAd(10) != nil {
		t.Fatal("ad still present after delete")
	}
	if err := s.DeleteAd(10); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkBudgetExhausted(t *testing.T) {
	slot := SlotKey{PageHomepage, LocationTopBanner}
	s := NewInMemoryAdStore()
	ad := testAd(1, slot, 0)
	if err := s.ReloadAll([]Advertisement{ad}, nil); err != nil {
		t.Fatalf("reload: %v", err)
	}

	spent := decimal.RequireFromString("25.50")
	if err := s.MarkBudgetExhausted(1, spent); err != nil {
		t.Fatalf("mark: %v", err)
	}
	got := s.GetAd(1)
	if !got.BudgetExhausted {
		t.Fatal("flag not set")
	}
	if !got.TotalBudgetSpent.Equal(spent) {
		t.Fatalf("spent = %s, want %s", got.TotalBudgetSpent, spent)
	}
}

func TestDeleteCampaignDetachesAds(t *testing.T) {
	slot := SlotKey{PageHomepage, LocationTopBanner}
	s := NewInMemoryAdStore()

	c := Campaign{ID: 5, Name: "spring", Active: true}
	ad := testAd(1, slot, 0)
	ad.CampaignID = 5
	if err := s.ReloadAll([]Advertisement{ad}, []Campaign{c}); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if err := s.DeleteCampaign(5); err != nil {
		t.Fatalf("delete campaign: %v", err)
	}
	if s.GetCampaign(5) != nil {
		t.Fatal("campaign still present")
	}
	if got := s.GetAd(1); got.CampaignID != 0 {
		t.Fatalf("ad still attached to campaign %d", got.CampaignID)
	}
}
