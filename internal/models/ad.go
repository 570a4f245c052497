package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ad creative types.
const (
	AdTypeBanner  = "banner"
	AdTypeSidebar = "sidebar"
	AdTypePopup   = "popup"
	AdTypeInline  = "inline"
)

// AdTypes lists the valid creative type values.
var AdTypes = []string{AdTypeBanner, AdTypeSidebar, AdTypePopup, AdTypeInline}

// StringSet is a small serialized set of strings used for targeting
// dimensions. A nil or empty set means the dimension is unconstrained.
type StringSet []string

// Empty reports whether the set places no constraint.
func (s StringSet) Empty() bool { return len(s) == 0 }

// Contains reports set membership.
func (s StringSet) Contains(v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// Advertisement is the orderable, schedulable creative unit the delivery
// engine selects from. Targeting sets are conjunctive: every non-empty set
// must match the viewer. Budget and cost fields use decimals so spend
// accounting never drifts; counters are server-incremented only.
type Advertisement struct {
	ID         int `json:"id"`
	CampaignID int `json:"campaign_id,omitempty"` // 0 when the ad is not part of a campaign

	// Placement identity. Page and Location are authoritative; Placement
	// retains the legacy free-text value for admin round-tripping only.
	Page      Page     `json:"page"`
	Location  Location `json:"location"`
	Placement string   `json:"placement,omitempty"`

	// Creative fields returned to the client for rendering.
	ImageURL    string `json:"image_url"`
	LinkURL     string `json:"link_url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`

	Active    bool      `json:"active"`
	StartDate time.Time `json:"start_date"` // zero value means unbounded
	EndDate   time.Time `json:"end_date"`

	// DisplayOrder ranks ads within a slot; lower values render first.
	DisplayOrder int `json:"display_order"`

	// VariantGroup groups mutually exclusive creatives for A/B exposure.
	// At most one member of a group is shown to a given viewer.
	VariantGroup string `json:"variant_group,omitempty"`
	VariantName  string `json:"variant_name,omitempty"`

	// Targeting sets. Empty means match-all for that dimension.
	TargetCountries   StringSet `json:"target_countries,omitempty"`
	TargetDeviceTypes StringSet `json:"target_device_types,omitempty"`
	TargetUserRoles   StringSet `json:"target_user_roles,omitempty"`
	TargetLanguages   StringSet `json:"target_languages,omitempty"`

	// Budget and cost configuration for paid campaigns. Null means the ad
	// is not billed on that axis.
	Budget            decimal.NullDecimal `json:"budget,omitempty"`
	DailyBudget       decimal.NullDecimal `json:"daily_budget,omitempty"`
	CostPerClick      decimal.NullDecimal `json:"cost_per_click,omitempty"`
	CostPerImpression decimal.NullDecimal `json:"cost_per_impression,omitempty"`
	TotalBudgetSpent  decimal.Decimal     `json:"total_budget_spent"`
	ConversionGoal    string              `json:"conversion_goal,omitempty"`

	// BudgetExhausted is flipped by the analytics recorder once spend
	// reaches the budget. The resolver treats it as a hard stop.
	BudgetExhausted bool `json:"budget_exhausted"`

	// FrequencyCap limits impressions per viewer per day. 0 means unlimited.
	FrequencyCap int `json:"frequency_cap"`

	ImpressionCount int64 `json:"impression_count"`
	ClickCount      int64 `json:"click_count"`
	ConversionCount int64 `json:"conversion_count"`

	// Admin-only metadata, never consulted by delivery decisions and never
	// exposed through the delivery API.
	Tags  string `json:"tags,omitempty"`
	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Slot returns the structured slot identity of the ad.
func (a *Advertisement) Slot() SlotKey {
	return SlotKey{Page: a.Page, Location: a.Location}
}

// CostBased reports whether the ad accrues spend on impressions or clicks.
func (a *Advertisement) CostBased() bool {
	return a.CostPerClick.Valid || a.CostPerImpression.Valid
}

// Validate checks admin-supplied fields and returns per-field errors keyed by
// JSON field name. An empty map means the ad is well formed.
func (a *Advertisement) Validate() map[string]string {
	errs := make(map[string]string)
	if _, err := NormalizeSlot(string(a.Page), string(a.Location), a.Placement); err != nil {
		errs["placement"] = err.Error()
	}
	if a.ImageURL == "" {
		errs["image_url"] = "required"
	}
	if a.LinkURL == "" {
		errs["link_url"] = "required"
	}
	if a.Title == "" {
		errs["title"] = "required"
	}
	if a.Type != "" && !StringSet(AdTypes).Contains(a.Type) {
		errs["type"] = "unknown ad type"
	}
	if !a.StartDate.IsZero() && !a.EndDate.IsZero() && !a.StartDate.Before(a.EndDate) {
		errs["end_date"] = "end date must be after start date"
	}
	if a.FrequencyCap < 0 {
		errs["frequency_cap"] = "must be >= 0"
	}
	if a.VariantName != "" && a.VariantGroup == "" {
		errs["variant_group"] = "required when variant_name is set"
	}
	for _, d := range a.TargetDeviceTypes {
		if !StringSet(DeviceTypes).Contains(d) {
			errs["target_device_types"] = "unknown device type " + d
		}
	}
	for _, r := range a.TargetUserRoles {
		if !StringSet(UserRoles).Contains(r) {
			errs["target_user_roles"] = "unknown role " + r
		}
	}
	if a.Budget.Valid && a.Budget.Decimal.IsNegative() {
		errs["budget"] = "must be >= 0"
	}
	if a.DailyBudget.Valid && a.DailyBudget.Decimal.IsNegative() {
		errs["daily_budget"] = "must be >= 0"
	}
	return errs
}

// AdSlotResponse is the public shape returned by the delivery endpoint. It
// carries only what the client needs to render and report; internal fields
// such as targeting rules, notes and spend never leave the server.
type AdSlotResponse struct {
	ID            int    `json:"id"`
	ImageURL      string `json:"image_url"`
	LinkURL       string `json:"link_url"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Type          string `json:"type"`
	VariantName   string `json:"variant_name,omitempty"`
	ImpressionURL string `json:"impression_url"`
	ClickURL      string `json:"click_url"`
}

// PublicAd projects an Advertisement to its delivery-safe shape.
func PublicAd(a Advertisement) AdSlotResponse {
	return AdSlotResponse{
		ID:          a.ID,
		ImageURL:    a.ImageURL,
		LinkURL:     a.LinkURL,
		Title:       a.Title,
		Description: a.Description,
		Type:        a.Type,
		VariantName: a.VariantName,
	}
}
