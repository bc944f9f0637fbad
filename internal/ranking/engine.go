// Package ranking turns scored candidates into the final ordered digest.
package ranking

import (
	"cmp"
	"slices"

	"ArxivDigest/internal/domain"
)

// Build applies the category filter (when enabled), the inclusive threshold and
// first-seen deduplication, then orders survivors by score descending with the
// paper ID as tie-breaker. It does not modify scored.
func Build(profile domain.Profile, scored []domain.ScoredPaper, meta domain.DigestMeta) domain.Digest {
	kept := make([]domain.ScoredPaper, 0, len(scored))
	seen := make(map[string]struct{}, len(scored))

	for _, sp := range scored {
		if profile.FilterCategories && !sp.Paper.HasAnyCategory(profile.Categories) {
			continue
		}
		if sp.Score < profile.Threshold {
			continue
		}
		if _, dup := seen[sp.Paper.ID]; dup {
			continue
		}
		seen[sp.Paper.ID] = struct{}{}
		kept = append(kept, sp)
	}

	slices.SortStableFunc(kept, compare)

	return domain.Digest{Meta: meta, Papers: kept}
}

func compare(a, b domain.ScoredPaper) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.Paper.ID, b.Paper.ID)
}
