package ai

import "strings"

// Price is the USD cost per million tokens.
type Price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultPrice applies to models missing from the table.
var DefaultPrice = Price{InputPerMillion: 3, OutputPerMillion: 15}

// Prices is keyed by model family prefix.
var Prices = map[string]Price{
	"claude-opus":       {InputPerMillion: 15, OutputPerMillion: 75},
	"claude-sonnet":     {InputPerMillion: 3, OutputPerMillion: 15},
	"claude-haiku":      {InputPerMillion: 0.8, OutputPerMillion: 4},
	"claude-3-opus":     {InputPerMillion: 15, OutputPerMillion: 75},
	"claude-3-5-sonnet": {InputPerMillion: 3, OutputPerMillion: 15},
	"claude-3-5-haiku":  {InputPerMillion: 0.8, OutputPerMillion: 4},
	"claude-3-haiku":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
}

// PriceFor returns the entry whose key is the longest prefix of model.
func PriceFor(model string) Price {
	best := ""
	for key := range Prices {
		if strings.HasPrefix(model, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return DefaultPrice
	}
	return Prices[best]
}

// Cost prices input and output tokens independently.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p := PriceFor(model)
	return float64(inputTokens)/1_000_000*p.InputPerMillion + float64(outputTokens)/1_000_000*p.OutputPerMillion
}
