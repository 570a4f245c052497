package logic

import (
	"time"

	"github.com/panelworks/adserve/internal/models"
)

// IsScheduleActive reports whether an ad's schedule window contains the given
// instant. A zero start or end date leaves that side of the window unbounded.
// Both boundaries are inclusive: an ad runs from its start date through the
// end of its end date instant.
func IsScheduleActive(ad *models.Advertisement, now time.Time) bool {
	if !ad.StartDate.IsZero() && now.Before(ad.StartDate) {
		return false
	}
	if !ad.EndDate.IsZero() && now.After(ad.EndDate) {
		return false
	}
	return true
}

// FilterScheduled keeps only ads whose schedule window is open at the given
// instant. Filtering happens in place on the supplied slice.
func FilterScheduled(ads []models.Advertisement, now time.Time) []models.Advertisement {
	out := ads[:0]
	for i := range ads {
		if IsScheduleActive(&ads[i], now) {
			out = append(out, ads[i])
		}
	}
	return out
}
