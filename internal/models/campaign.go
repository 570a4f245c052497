package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Campaign is a named budget and time envelope that can own many ads.
// Delivery decisions are made per ad; the campaign exists for grouping,
// reporting and an aggregate budget ceiling.
type Campaign struct {
	ID          int                 `json:"id"`
	Name        string              `json:"name"`
	Budget      decimal.NullDecimal `json:"budget,omitempty"`
	SpentAmount decimal.Decimal     `json:"spent_amount"`
	StartDate   time.Time           `json:"start_date"`
	EndDate     time.Time           `json:"end_date"`
	Active      bool                `json:"active"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Validate returns per-field errors for admin-supplied campaign data.
func (c *Campaign) Validate() map[string]string {
	errs := make(map[string]string)
	if c.Name == "" {
		errs["name"] = "required"
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && !c.StartDate.Before(c.EndDate) {
		errs["end_date"] = "end date must be after start date"
	}
	if c.Budget.Valid && c.Budget.Decimal.IsNegative() {
		errs["budget"] = "must be >= 0"
	}
	return errs
}
