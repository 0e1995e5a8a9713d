// Package cost attributes token usage to money using a price table.
package cost

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// PriceTable resolves the per-token price of a model ID.
type PriceTable interface {
	Lookup(modelID string) (model.Price, bool)
}

// Estimate sums the input and output token series of each dimension key
// and prices them. When both the CloudWatch and the log-alias token metric
// exist for a key, only the CloudWatch one counts. Keys without a ModelId
// dimension, or whose model is missing from prices, get a nil EstimatedCost. Records are ordered by
// model ID, then dimension key.
func Estimate(series model.SeriesMap, prices PriceTable, currency string) []model.CostRecord {
	type usage struct {
		in, out float64
	}
	byKey := make(map[model.DimensionKey]*usage)
	for _, k := range series.Keys() {
		isIn, isOut := model.IsInputTokenMetric(k.Metric), model.IsOutputTokenMetric(k.Metric)
		if (!isIn && !isOut) || series.ShadowedTokenAlias(k) {
			continue
		}
		u := byKey[k.Dimensions]
		if u == nil {
			u = &usage{}
			byKey[k.Dimensions] = u
		}
		total := 0.0
		if s := series[k]; s != nil {
			for _, smp := range s.Samples {
				total += smp.Value
			}
		}
		if isIn {
			u.in += total
		} else {
			u.out += total
		}
	}

	records := make([]model.CostRecord, 0, len(byKey))
	for key, u := range byKey {
		rec := model.CostRecord{
			Dimensions:   key,
			InputTokens:  int64(math.Round(u.in)),
			OutputTokens: int64(math.Round(u.out)),
			Currency:     currency,
		}
		if id, ok := key.Value(model.DimModelID); ok {
			rec.ModelID = id
			if price, ok := prices.Lookup(id); ok {
				c := Price(price, rec.InputTokens, rec.OutputTokens)
				rec.EstimatedCost = &c
			}
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].ModelID != records[j].ModelID {
			return records[i].ModelID < records[j].ModelID
		}
		return records[i].Dimensions < records[j].Dimensions
	})
	return records
}

// Price returns in*InputPerToken + out*OutputPerToken, exactly.
func Price(p model.Price, in, out int64) decimal.Decimal {
	return p.InputPerToken.Mul(decimal.NewFromInt(in)).
		Add(p.OutputPerToken.Mul(decimal.NewFromInt(out)))
}

// Split holds estimated cost divided by token type.
type Split struct {
	Input  decimal.Decimal
	Output decimal.Decimal
}

// Total returns input plus output cost.
func (s Split) Total() decimal.Decimal { return s.Input.Add(s.Output) }

// SplitByTokenType prices input and output tokens separately over the
// estimated records.
func SplitByTokenType(records []model.CostRecord, prices PriceTable) Split {
	var s Split
	for _, r := range records {
		if !r.Estimated() {
			continue
		}
		p, ok := prices.Lookup(r.ModelID)
		if !ok {
			continue
		}
		s.Input = s.Input.Add(p.InputPerToken.Mul(decimal.NewFromInt(r.InputTokens)))
		s.Output = s.Output.Add(p.OutputPerToken.Mul(decimal.NewFromInt(r.OutputTokens)))
	}
	return s
}

// Total sums the estimated records. Unestimated records are skipped, not
// counted as zero cost.
func Total(records []model.CostRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if r.Estimated() {
			total = total.Add(*r.EstimatedCost)
		}
	}
	return total
}

// Unestimated returns the records without a price.
func Unestimated(records []model.CostRecord) []model.CostRecord {
	var out []model.CostRecord
	for _, r := range records {
		if !r.Estimated() {
			out = append(out, r)
		}
	}
	return out
}
