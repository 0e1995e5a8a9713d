package cost

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// NoValue labels records that lack the grouped dimension.
const NoValue = "(none)"

// GroupBy sums estimated records per value of one dimension. An empty
// dimension groups by the full dimension key. Groups come back ordered by
// descending cost, then ascending key.
func GroupBy(records []model.CostRecord, dimension string) []model.GroupCost {
	groups := make(map[string]*model.GroupCost)
	for _, r := range records {
		if !r.Estimated() {
			continue
		}
		key := r.Dimensions.String()
		if dimension != "" {
			v, ok := r.Dimensions.Value(dimension)
			if !ok {
				v = NoValue
			}
			key = v
		}
		g := groups[key]
		if g == nil {
			g = &model.GroupCost{Key: key, Cost: decimal.Zero}
			groups[key] = g
		}
		g.Records++
		g.InputTokens += r.InputTokens
		g.OutputTokens += r.OutputTokens
		g.Cost = g.Cost.Add(*r.EstimatedCost)
	}

	out := make([]model.GroupCost, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	SortGroups(out)
	return out
}

// SortGroups orders groups by descending cost, then ascending key.
func SortGroups(groups []model.GroupCost) {
	sort.Slice(groups, func(i, j int) bool {
		if c := groups[i].Cost.Cmp(groups[j].Cost); c != 0 {
			return c > 0
		}
		return groups[i].Key < groups[j].Key
	})
}

// TopN returns at most n groups in cost order. n <= 0 returns none.
func TopN(groups []model.GroupCost, n int) []model.GroupCost {
	sorted := make([]model.GroupCost, len(groups))
	copy(sorted, groups)
	SortGroups(sorted)
	if n <= 0 {
		return nil
	}
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
