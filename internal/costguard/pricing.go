package costguard

import (
	"strings"
)

// ModelPricing holds per-million-token pricing for a model.
type ModelPricing struct {
	InputPer1M       float64
	OutputPer1M      float64
	CachedInputPer1M float64
}

// defaultPricing is a table of well-known model prices, used when a usage
// record or precheck doesn't carry its own pricing override. Not exhaustive;
// it covers the providers the agent runtime ships adapters for.
var defaultPricing = map[string]map[string]ModelPricing{
	"anthropic": {
		"claude-sonnet-4-20250514": {InputPer1M: 3.0, OutputPer1M: 15.0, CachedInputPer1M: 0.30},
		"claude-opus-4-20250514":   {InputPer1M: 15.0, OutputPer1M: 75.0, CachedInputPer1M: 1.50},
		"claude-3-5-haiku-latest":  {InputPer1M: 1.0, OutputPer1M: 5.0, CachedInputPer1M: 0.10},
	},
	"openai": {
		"gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.0, CachedInputPer1M: 1.25},
		"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60, CachedInputPer1M: 0.075},
		"o1":          {InputPer1M: 15.0, OutputPer1M: 60.0, CachedInputPer1M: 7.50},
	},
	"bedrock": {
		"anthropic.claude-sonnet-4-20250514-v1:0": {InputPer1M: 3.0, OutputPer1M: 15.0, CachedInputPer1M: 0.30},
	},
}

// fallbackPricing is used when provider/model is unknown or empty. It
// reflects a mid-tier model so a misconfigured precheck still produces a
// conservative, non-zero cost estimate rather than silently budgeting free.
var fallbackPricing = ModelPricing{InputPer1M: 3.0, OutputPer1M: 15.0, CachedInputPer1M: 0.30}

// ResolvePricing looks up pricing for a provider/model pair, falling back to
// a prefix match for versioned model names and finally to fallbackPricing.
func ResolvePricing(provider, model string) ModelPricing {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if provider == "" || model == "" {
		return fallbackPricing
	}

	models, ok := defaultPricing[provider]
	if !ok {
		return fallbackPricing
	}
	if p, ok := models[model]; ok {
		return p
	}
	for id, p := range models {
		if strings.HasPrefix(model, id) || strings.HasPrefix(id, model) {
			return p
		}
	}
	return fallbackPricing
}

// EstimateCostUSD converts input/output/cached token counts into a dollar
// figure using the given pricing. Token counts are per-million scaled.
func EstimateCostUSD(inputTokens, outputTokens, cachedTokens int, pricing ModelPricing) float64 {
	cost := float64(inputTokens)*pricing.InputPer1M +
		float64(outputTokens)*pricing.OutputPer1M +
		float64(cachedTokens)*pricing.CachedInputPer1M
	return cost / 1_000_000
}

// EstimatePlannedCostUSD is a coarse precheck-time estimate: it treats
// plannedTokens as a single blended token count priced at the output rate,
// since a turn that hasn't run yet carries no input/output split. Output
// rate is used rather than input because it is always the more expensive of
// the two, making the estimate conservative (it never under-budgets).
func EstimatePlannedCostUSD(plannedTokens int, pricing ModelPricing) float64 {
	return float64(plannedTokens) * pricing.OutputPer1M / 1_000_000
}
