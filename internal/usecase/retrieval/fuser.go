package retrieval

import (
	"sort"

	"github.com/tuexperto/taxsearch/internal/domain/channel"
	"github.com/tuexperto/taxsearch/internal/domain/result"
)

// fuse merges per-channel lists into one cross-channel ranking.
// Ordering: score descending, ties broken by channel priority (lower wins),
// remaining ties keep input order. Items with identical display text collapse
// into the single highest-ranked occurrence. The output is capped at max.
//
// Deterministic: equal inputs always produce equal output.
func fuse(
	perChannel map[channel.Channel][]result.Item,
	order []channel.Channel,
	table channel.Table,
	max int,
) []result.Item {
	var merged []result.Item
	for _, ch := range order {
		merged = append(merged, perChannel[ch]...)
	}
	if len(merged) == 0 {
		return []result.Item{}
	}

	priority := func(i *result.Item) int {
		d, ok := table[i.Channel()]
		if !ok {
			return int(^uint(0) >> 1)
		}
		return d.Priority
	}

	sort.SliceStable(merged, func(a, b int) bool {
		if merged[a].Score() != merged[b].Score() {
			return merged[a].Score() > merged[b].Score()
		}
		return priority(&merged[a]) < priority(&merged[b])
	})

	// Ranked order makes the first occurrence the winner.
	seen := make(map[string]bool, len(merged))
	fused := make([]result.Item, 0, len(merged))
	for i := range merged {
		text := merged[i].Text()
		if seen[text] {
			continue
		}
		seen[text] = true
		fused = append(fused, merged[i])
		if max > 0 && len(fused) == max {
			break
		}
	}
	return fused
}
