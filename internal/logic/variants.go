package logic

import (
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/panelworks/adserve/internal/models"
)

// CollapseVariants reduces each variant group among the candidates to a
// single member so a viewer never sees competing A/B arms side by side.
//
// Assignment is a stable hash of (group, viewer key) over the group's
// members sorted by ID, so a given viewer sees the same arm across requests
// and days while the population splits evenly. Viewers without a stable
// identity get a uniform random pick per request. Ads outside any group pass
// through untouched, and the relative order of survivors is preserved.
func CollapseVariants(ads []models.Advertisement, viewerKey string) []models.Advertisement {
	groups := make(map[string][]int) // group name -> indexes into ads
	for i := range ads {
		if g := ads[i].VariantGroup; g != "" {
			groups[g] = append(groups[g], i)
		}
	}
	if len(groups) == 0 {
		return ads
	}

	chosen := make(map[int]bool, len(groups))
	for name, idxs := range groups {
		if len(idxs) == 1 {
			chosen[idxs[0]] = true
			continue
		}
		// Deterministic member order regardless of candidate order.
		sort.Slice(idxs, func(a, b int) bool { return ads[idxs[a]].ID < ads[idxs[b]].ID })
		chosen[idxs[pickVariant(name, viewerKey, len(idxs))]] = true
	}

	out := ads[:0]
	for i := range ads {
		if ads[i].VariantGroup == "" || chosen[i] {
			out = append(out, ads[i])
		}
	}
	return out
}

func pickVariant(group, viewerKey string, n int) int {
	if viewerKey == "" {
		return rand.Intn(n)
	}
	h := fnv.New32a()
	h.Write([]byte(group))
	h.Write([]byte{0})
	h.Write([]byte(viewerKey))
	return int(h.Sum32() % uint32(n))
}
