package logic

import (
	"github.com/panelworks/adserve/internal/models"
)

// MatchesTargeting reports whether the viewer satisfies every non-empty
// targeting set on the ad. The sets are conjunctive, and an unknown viewer
// attribute fails closed: an ad targeted at specific countries is never shown
// to a viewer whose country could not be resolved.
func MatchesTargeting(ad *models.Advertisement, viewer models.ViewerContext) bool {
	if !matchDimension(ad.TargetCountries, viewer.Country) {
		return false
	}
	if !matchDimension(ad.TargetDeviceTypes, viewer.DeviceType) {
		return false
	}
	if !matchDimension(ad.TargetUserRoles, viewer.Role) {
		return false
	}
	if !matchDimension(ad.TargetLanguages, viewer.Language) {
		return false
	}
	return true
}

func matchDimension(set models.StringSet, value string) bool {
	if set.Empty() {
		return true
	}
	if value == "" {
		return false
	}
	return set.Contains(value)
}

// FilterTargeted keeps only ads whose targeting rules the viewer satisfies.
// Filtering happens in place on the supplied slice.
func FilterTargeted(ads []models.Advertisement, viewer models.ViewerContext) []models.Advertisement {
	out := ads[:0]
	for i := range ads {
		if MatchesTargeting(&ads[i], viewer) {
			out = append(out, ads[i])
		}
	}
	return out
}
