package models

import (
	"errors"
	"sort"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an entity is not present in the data store.
var ErrNotFound = errors.New("entity not found")

// AdStore provides thread-safe access to the delivery engine's read-mostly
// configuration: advertisements and campaigns. The hot read path serves from
// an immutable in-memory snapshot; Postgres remains the source of truth and
// the snapshot is refreshed on reload and after admin mutations. Counter and
// spend writes never go through this store.
type AdStore interface {
	// Read operations (hot path)
	GetAd(id int) *Advertisement
	GetAdsBySlot(key SlotKey) []Advertisement
	GetCampaign(id int) *Campaign

	// Iteration (admin path)
	GetAllAds() []Advertisement
	GetAllCampaigns() []Campaign

	// Atomic bulk replacement (reload path)
	ReloadAll(ads []Advertisement, campaigns []Campaign) error

	// CRUD operations mirrored from admin mutations
	InsertAd(ad *Advertisement) error
	UpdateAd(ad Advertisement) error
	DeleteAd(id int) error
	SetAdActive(id int, active bool) error

	InsertCampaign(c *Campaign) error
	UpdateCampaign(c Campaign) error
	DeleteCampaign(id int) error

	// MarkBudgetExhausted records the recorder's hard stop in the snapshot
	// so the resolver excludes the ad without waiting for a reload.
	MarkBudgetExhausted(id int, spent decimal.Decimal) error
}

// adSnapshot is an immutable view of all delivery configuration.
type adSnapshot struct {
	ads       []Advertisement
	adIndex   map[int]*Advertisement
	slotIndex map[SlotKey][]Advertisement

	campaigns     []Campaign
	campaignIndex map[int]*Campaign
}

// InMemoryAdStore implements AdStore with atomic snapshot swaps. Readers
// never block; every mutation builds a fresh snapshot and publishes it with
// a single pointer store.
type InMemoryAdStore struct {
	data atomic.Pointer[adSnapshot]
}

// NewInMemoryAdStore returns an empty store.
func NewInMemoryAdStore() *InMemoryAdStore {
	s := &InMemoryAdStore{}
	s.data.Store(buildSnapshot(nil, nil))
	return s
}

func buildSnapshot(ads []Advertisement, campaigns []Campaign) *adSnapshot {
	snap := &adSnapshot{
		ads:           ads,
		adIndex:       make(map[int]*Advertisement, len(ads)),
		slotIndex:     make(map[SlotKey][]Advertisement),
		campaigns:     campaigns,
		campaignIndex: make(map[int]*Campaign, len(campaigns)),
	}
	for i := range ads {
		a := &ads[i]
		snap.adIndex[a.ID] = a
		snap.slotIndex[a.Slot()] = append(snap.slotIndex[a.Slot()], *a)
	}
	// Slot candidate lists are pre-sorted so the resolver's final ordering
	// only depends on which ads survive filtering.
	for k := range snap.slotIndex {
		list := snap.slotIndex[k]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].DisplayOrder != list[j].DisplayOrder {
				return list[i].DisplayOrder < list[j].DisplayOrder
			}
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		})
		snap.slotIndex[k] = list
	}
	for i := range campaigns {
		snap.campaignIndex[campaigns[i].ID] = &campaigns[i]
	}
	return snap
}

// GetAd returns the ad with the given id, or nil.
func (s *InMemoryAdStore) GetAd(id int) *Advertisement {
	if a, ok := s.data.Load().adIndex[id]; ok {
		return a
	}
	return nil
}

// GetAdsBySlot returns the ads configured for a slot, sorted by display
// order then creation time. The returned slice is a copy.
func (s *InMemoryAdStore) GetAdsBySlot(key SlotKey) []Advertisement {
	if list, ok := s.data.Load().slotIndex[key]; ok {
		out := make([]Advertisement, len(list))
		copy(out, list)
		return out
	}
	return nil
}

// GetCampaign returns the campaign with the given id, or nil.
func (s *InMemoryAdStore) GetCampaign(id int) *Campaign {
	if c, ok := s.data.Load().campaignIndex[id]; ok {
		return c
	}
	return nil
}

// GetAllAds returns a copy of every ad in the snapshot.
func (s *InMemoryAdStore) GetAllAds() []Advertisement {
	ads := s.data.Load().ads
	out := make([]Advertisement, len(ads))
	copy(out, ads)
	return out
}

// GetAllCampaigns returns a copy of every campaign in the snapshot.
func (s *InMemoryAdStore) GetAllCampaigns() []Campaign {
	cs := s.data.Load().campaigns
	out := make([]Campaign, len(cs))
	copy(out, cs)
	return out
}

// ReloadAll atomically replaces the entire snapshot.
func (s *InMemoryAdStore) ReloadAll(ads []Advertisement, campaigns []Campaign) error {
	adsCopy := make([]Advertisement, len(ads))
	copy(adsCopy, ads)
	csCopy := make([]Campaign, len(campaigns))
	copy(csCopy, campaigns)
	s.data.Store(buildSnapshot(adsCopy, csCopy))
	return nil
}

// mutate rebuilds the snapshot from a transformed copy of the current data.
func (s *InMemoryAdStore) mutate(fn func(ads []Advertisement, campaigns []Campaign) ([]Advertisement, []Campaign, error)) error {
	cur := s.data.Load()
	ads := make([]Advertisement, len(cur.ads))
	copy(ads, cur.ads)
	campaigns := make([]Campaign, len(cur.campaigns))
	copy(campaigns, cur.campaigns)

	ads, campaigns, err := fn(ads, campaigns)
	if err != nil {
		return err
	}
	s.data.Store(buildSnapshot(ads, campaigns))
	return nil
}

// InsertAd adds a new ad to the snapshot.
func (s *InMemoryAdStore) InsertAd(ad *Advertisement) error {
	return s.mutate(func(ads []Advertisement, cs []Campaign) ([]Advertisement, []Campaign, error) {
		return append(ads, *ad), cs, nil
	})
}

// UpdateAd replaces an existing ad.
func (s *InMemoryAdStore) UpdateAd(ad Advertisement) error {
	return s.mutate(func(ads []Advertisement, cs []Campaign) ([]Advertisement, []Campaign, error) {
		for i := range ads {
			if ads[i].ID == ad.ID {
				ads[i] = ad
				return ads, cs, nil
			}
		}
		return nil, nil, ErrNotFound
	})
}

// DeleteAd removes an ad from the snapshot.
func (s *InMemoryAdStore) DeleteAd(id int) error {
	return s.mutate(func(ads []Advertisement, cs []Campaign) ([]Advertisement, []Campaign, error) {
		for i := range ads {
			if ads[i].ID == id {
				return append(ads[:i], ads[i+1:]...), cs, nil
			}
		}
		return nil, nil, ErrNotFound
	})
}

// SetAdActive toggles an ad's active flag.
func (s *InMemoryAdStore) SetAdActive(id int, active bool) error {
	return s.mutate(func(ads []Advertisement, cs []Campaign) ([]Advertisement, []Campaign, error) {
		for i := range ads {
			if ads[i].ID == id {
				ads[i].Active = active
				return ads, cs, nil
			}
		}
		return nil, nil, ErrNotFound
	})
}

// MarkBudgetExhausted flips the hard-stop flag and records the final spend.
func (s *InMemoryAdStore) MarkBudgetExhausted(id int, spent decimal.Decimal) error {
	return s.mutate(func(ads []Advertisement, cs []Campaign) ([]Advertisement, []Campaign, error) {
		for i := range ads {
			if ads[i].ID == id {
				ads[i].BudgetExhausted = true
				ads[i].TotalBudgetSpent = spent
				return ads, cs, nil
			}
		}
		return nil, nil, ErrNotFound
	})
}

// InsertCampaign adds a new campaign to the snapshot.
func (s *InMemoryAdStore) InsertCampaign(c *Campaign) error {
	return s.mutate(func(ads []Advertisement, cs []Campaign) ([]Advertisement, []Campaign, error) {
		return ads, append(cs, *c), nil
	})
}

// UpdateCampaign replaces an existing campaign.
func (s *InMemoryAdStore) UpdateCampaign(c Campaign) error {
	return s.mutate(func(ads []Advertisement, cs []Campaign) ([]Advertisement, []Campaign, error) {
		for i := range cs {
			if cs[i].ID == c.ID {
				cs[i] = c
				return ads, cs, nil
			}
		}
		return nil, nil, ErrNotFound
	})
}

// DeleteCampaign removes a campaign. Ads owned by the campaign are detached,
// matching the relational cascade in Postgres.
func (s *InMemoryAdStore) DeleteCampaign(id int) error {
	return s.mutate(func(ads []Advertisement, cs []Campaign) ([]Advertisement, []Campaign, error) {
		found := false
		for i := range cs {
			if cs[i].ID == id {
				cs = append(cs[:i], cs[i+1:]...)
				found = true
				break
			}
		}
		if !found {
			return nil, nil, ErrNotFound
		}
		for i := range ads {
			if ads[i].CampaignID == id {
				ads[i].CampaignID = 0
			}
		}
		return ads, cs, nil
	})
}
