package config

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// ModelPricing holds per-million-token on-demand prices for a model.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

type modelPricingVersion struct {
	EffectiveFrom time.Time
	Pricing       ModelPricing
}

// DefaultPricing maps normalized Bedrock model IDs to on-demand pricing.
var DefaultPricing = map[string]ModelPricing{
	"anthropic.claude-opus-4-1":        {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"anthropic.claude-opus-4":          {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"anthropic.claude-sonnet-4-5":      {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"anthropic.claude-sonnet-4":        {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"anthropic.claude-3-7-sonnet":      {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"anthropic.claude-3-5-sonnet":      {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"anthropic.claude-3-5-haiku":       {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"anthropic.claude-haiku-4-5":       {InputPerMTok: 1.00, OutputPerMTok: 5.00},
	"anthropic.claude-3-haiku":         {InputPerMTok: 0.25, OutputPerMTok: 1.25},
	"anthropic.claude-3-opus":          {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"anthropic.claude-v2":              {InputPerMTok: 8.00, OutputPerMTok: 24.00},
	"anthropic.claude-instant-v1":      {InputPerMTok: 0.80, OutputPerMTok: 2.40},
	"amazon.titan-text-express-v1":     {InputPerMTok: 0.20, OutputPerMTok: 0.60},
	"amazon.titan-text-lite-v1":        {InputPerMTok: 0.15, OutputPerMTok: 0.20},
	"amazon.nova-pro-v1":               {InputPerMTok: 0.80, OutputPerMTok: 3.20},
	"amazon.nova-lite-v1":              {InputPerMTok: 0.06, OutputPerMTok: 0.24},
	"amazon.nova-micro-v1":             {InputPerMTok: 0.035, OutputPerMTok: 0.14},
	"meta.llama3-1-70b-instruct-v1":    {InputPerMTok: 0.72, OutputPerMTok: 0.72},
	"meta.llama3-1-8b-instruct-v1":     {InputPerMTok: 0.22, OutputPerMTok: 0.22},
	"mistral.mistral-large-2407-v1":    {InputPerMTok: 2.00, OutputPerMTok: 6.00},
	"cohere.command-r-plus-v1":         {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"cohere.command-text-v14":          {InputPerMTok: 1.50, OutputPerMTok: 2.00},
	"ai21.jamba-1-5-large-v1":          {InputPerMTok: 2.00, OutputPerMTok: 8.00},
}

// defaultPricingHistory stores effective-dated prices for each model.
// Entries must be sorted by EffectiveFrom ascending.
var defaultPricingHistory = makeDefaultPricingHistory(DefaultPricing)

func makeDefaultPricingHistory(base map[string]ModelPricing) map[string][]modelPricingVersion {
	history := make(map[string][]modelPricingVersion, len(base))
	for modelName, pricing := range base {
		history[modelName] = []modelPricingVersion{
			{Pricing: pricing},
		}
	}
	// Claude 2 launched on Bedrock at the older list price.
	history["anthropic.claude-v2"] = []modelPricingVersion{
		{Pricing: ModelPricing{InputPerMTok: 11.02, OutputPerMTok: 32.68}},
		{EffectiveFrom: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Pricing: base["anthropic.claude-v2"]},
	}
	return history
}

func hasPricingModel(id string) bool {
	if _, ok := defaultPricingHistory[id]; ok {
		return true
	}
	_, ok := DefaultPricing[id]
	return ok
}

var regionPrefixes = []string{"us.", "eu.", "apac.", "us-gov.", "global."}

// NormalizeModelName reduces a Bedrock model identifier to its base ID.
// It strips ARN prefixes, cross-region inference profile prefixes,
// throughput suffixes and date/version segments.
// e.g., "us.anthropic.claude-3-5-sonnet-20241022-v2:0" -> "anthropic.claude-3-5-sonnet"
func NormalizeModelName(raw string) string {
	id := strings.TrimSpace(raw)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	for _, p := range regionPrefixes {
		if strings.HasPrefix(id, p) {
			id = strings.TrimPrefix(id, p)
			break
		}
	}
	if hasPricingModel(id) {
		return id
	}
	if i := strings.LastIndex(id, ":"); i >= 0 {
		id = id[:i]
		if hasPricingModel(id) {
			return id
		}
	}

	// Strip trailing -vN and -YYYYMMDD segments one at a time.
	parts := strings.Split(id, "-")
	for len(parts) > 1 {
		last := parts[len(parts)-1]
		if !isVersionSegment(last) && !(isAllDigits(last) && len(last) >= 8) {
			break
		}
		parts = parts[:len(parts)-1]
		if candidate := strings.Join(parts, "-"); hasPricingModel(candidate) {
			return candidate
		}
	}

	return id
}

func isVersionSegment(s string) bool {
	return len(s) > 1 && s[0] == 'v' && isAllDigits(s[1:])
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// LookupPricing returns the pricing for a model, normalizing the name first.
// Returns zero pricing and false if the model is unknown.
func LookupPricing(id string) (ModelPricing, bool) {
	return LookupPricingAt(id, time.Now())
}

// LookupPricingAt returns the pricing for a model at the given timestamp.
// If at is zero, the latest known pricing entry is used.
func LookupPricingAt(id string, at time.Time) (ModelPricing, bool) {
	normalized := NormalizeModelName(id)
	versions, ok := defaultPricingHistory[normalized]
	if !ok || len(versions) == 0 {
		p, fallback := DefaultPricing[normalized]
		return p, fallback
	}

	if at.IsZero() {
		return versions[len(versions)-1].Pricing, true
	}

	at = at.UTC()
	selected := versions[0].Pricing
	for _, v := range versions {
		if v.EffectiveFrom.IsZero() || !at.Before(v.EffectiveFrom.UTC()) {
			selected = v.Pricing
			continue
		}
		break
	}
	return selected, true
}

// PriceTable resolves per-token prices at a fixed point in time, with user
// overrides taking precedence over the built-in history.
type PriceTable struct {
	at        time.Time
	overrides map[string]ModelPricing
}

// NewPriceTable builds a table priced at the given time. A zero time uses
// the latest prices. An override of a model without built-in pricing must
// set both prices; otherwise it is ignored and the model stays unpriced.
func NewPriceTable(at time.Time, overrides PricingOverrides) *PriceTable {
	pt := &PriceTable{at: at, overrides: make(map[string]ModelPricing, len(overrides.Overrides))}
	for id, o := range overrides.Overrides {
		base, known := LookupPricingAt(id, at)
		if !known && (o.InputPerMTok == nil || o.OutputPerMTok == nil) {
			continue
		}
		if o.InputPerMTok != nil {
			base.InputPerMTok = *o.InputPerMTok
		}
		if o.OutputPerMTok != nil {
			base.OutputPerMTok = *o.OutputPerMTok
		}
		pt.overrides[NormalizeModelName(id)] = base
	}
	return pt
}

var perMillion = decimal.NewFromInt(1_000_000)

// Lookup returns the per-token price of a model.
func (pt *PriceTable) Lookup(modelID string) (model.Price, bool) {
	normalized := NormalizeModelName(modelID)
	p, ok := pt.overrides[normalized]
	if !ok {
		p, ok = LookupPricingAt(normalized, pt.at)
	}
	if !ok {
		return model.Price{}, false
	}
	return perToken(p), true
}

// Models returns the IDs priced by the table, sorted.
func (pt *PriceTable) Models() []string {
	seen := make(map[string]struct{}, len(DefaultPricing)+len(pt.overrides))
	for id := range DefaultPricing {
		seen[id] = struct{}{}
	}
	for id := range pt.overrides {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func perToken(p ModelPricing) model.Price {
	return model.Price{
		InputPerToken:  decimal.NewFromFloat(p.InputPerMTok).Div(perMillion),
		OutputPerToken: decimal.NewFromFloat(p.OutputPerMTok).Div(perMillion),
	}
}

// StaticPrices is a fixed per-token price table keyed by exact model ID.
type StaticPrices map[string]model.Price

// Lookup returns the price for an exact model ID.
func (s StaticPrices) Lookup(modelID string) (model.Price, bool) {
	p, ok := s[modelID]
	return p, ok
}
