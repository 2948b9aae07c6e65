package llm

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

// ModelPricing contains pricing per million tokens.
type ModelPricing struct {
	Input  decimal.Decimal // Per million input tokens
	Output decimal.Decimal // Per million output tokens
}

// modelPricingTable is keyed by model family.
var modelPricingTable = map[string]ModelPricing{
	"opus-4-5":      {Input: decimal.NewFromFloat(5), Output: decimal.NewFromFloat(25)},
	"opus-4-1":      {Input: decimal.NewFromFloat(15), Output: decimal.NewFromFloat(75)},
	"opus-4":        {Input: decimal.NewFromFloat(15), Output: decimal.NewFromFloat(75)},
	"sonnet-4-5":    {Input: decimal.NewFromFloat(3), Output: decimal.NewFromFloat(15)},
	"sonnet-4":      {Input: decimal.NewFromFloat(3), Output: decimal.NewFromFloat(15)},
	"haiku-4-5":     {Input: decimal.NewFromFloat(1), Output: decimal.NewFromFloat(5)},
	"haiku-3-5":     {Input: decimal.NewFromFloat(0.80), Output: decimal.NewFromFloat(4)},
	"gpt-4o":        {Input: decimal.NewFromFloat(2.50), Output: decimal.NewFromFloat(10)},
	"gpt-4o-mini":   {Input: decimal.NewFromFloat(0.15), Output: decimal.NewFromFloat(0.60)},
	"gpt-4.1":       {Input: decimal.NewFromFloat(2), Output: decimal.NewFromFloat(8)},
	"gpt-4.1-mini":  {Input: decimal.NewFromFloat(0.40), Output: decimal.NewFromFloat(1.60)},
	"gpt-3.5-turbo": {Input: decimal.NewFromFloat(0.50), Output: decimal.NewFromFloat(1.50)},
}

// zeroPricing is used when model is not found. Returns $0 cost rather than
// silently defaulting to a specific model's pricing.
var zeroPricing = ModelPricing{}

// modelFamily extracts the pricing family from a full model name.
// e.g., "claude-sonnet-4-5-20250929" -> "sonnet-4-5"
// e.g., "gpt-4o-mini-2024-07-18" -> "gpt-4o-mini"
func modelFamily(modelName string) string {
	name := strings.ToLower(modelName)
	if strings.HasPrefix(name, "gpt-") {
		// Longest known prefix wins so gpt-4o-mini is not priced as gpt-4o.
		best := ""
		for family := range modelPricingTable {
			if strings.HasPrefix(family, "gpt-") && strings.HasPrefix(name, family) && len(family) > len(best) {
				best = family
			}
		}
		if best != "" {
			return best
		}
		return name
	}

	name = strings.TrimPrefix(name, "claude-")
	parts := strings.Split(name, "-")
	if len(parts) < 2 {
		return name
	}

	family := parts[0]
	if family != "opus" && family != "sonnet" && family != "haiku" {
		return name
	}

	if len(parts[1]) != 1 || parts[1][0] < '0' || parts[1][0] > '9' {
		return name
	}
	major := parts[1]

	// Minor version is a single digit; date suffixes are 8+ characters
	if len(parts) >= 3 && len(parts[2]) == 1 && parts[2][0] >= '0' && parts[2][0] <= '9' {
		return family + "-" + major + "-" + parts[2]
	}
	return family + "-" + major
}

// GetPricing returns pricing for a model.
// Returns zero pricing for unknown models and logs a warning.
func GetPricing(modelName string) ModelPricing {
	family := modelFamily(modelName)
	if pricing, ok := modelPricingTable[family]; ok {
		return pricing
	}
	slog.Warn("unknown model for pricing", "model", modelName, "family", family)
	return zeroPricing
}

var oneMillion = decimal.NewFromInt(1_000_000)

// EstimateCost returns the USD cost of a completion.
func EstimateCost(c *Completion) decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	pricing := GetPricing(c.Model)
	input := decimal.NewFromInt(c.InputTokens).Mul(pricing.Input).Div(oneMillion)
	output := decimal.NewFromInt(c.OutputTokens).Mul(pricing.Output).Div(oneMillion)
	return input.Add(output)
}
