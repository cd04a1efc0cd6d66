package usage

import (
	"fmt"

	"github.com/spf13/viper"
)

// Price holds the per-model rates in cents per one million tokens. Rates are
// kept in integer cents so cost arithmetic never touches floats.
type Price struct {
	PromptCentsPerMTok     int64 `mapstructure:"prompt_cents_per_mtok"`
	CompletionCentsPerMTok int64 `mapstructure:"completion_cents_per_mtok"`
}

// defaultPrices mirrors the published vendor list prices as of early 2024,
// when the catalog models were current.
var defaultPrices = map[string]Price{
	"gpt-4":             {PromptCentsPerMTok: 3000, CompletionCentsPerMTok: 6000},
	"gpt-4-turbo":       {PromptCentsPerMTok: 1000, CompletionCentsPerMTok: 3000},
	"gpt-3.5-turbo":     {PromptCentsPerMTok: 50, CompletionCentsPerMTok: 150},
	"gpt-3.5-turbo-16k": {PromptCentsPerMTok: 300, CompletionCentsPerMTok: 400},

	"claude-3-opus-20240229":   {PromptCentsPerMTok: 1500, CompletionCentsPerMTok: 7500},
	"claude-3-sonnet-20240229": {PromptCentsPerMTok: 300, CompletionCentsPerMTok: 1500},
	"claude-3-haiku-20240307":  {PromptCentsPerMTok: 25, CompletionCentsPerMTok: 125},

	"gemini-pro":        {PromptCentsPerMTok: 50, CompletionCentsPerMTok: 150},
	"gemini-pro-vision": {PromptCentsPerMTok: 50, CompletionCentsPerMTok: 150},

	"command":       {PromptCentsPerMTok: 100, CompletionCentsPerMTok: 200},
	"command-light": {PromptCentsPerMTok: 30, CompletionCentsPerMTok: 60},
}

// LoadPriceFile reads per-model price overrides from a YAML file. The file
// maps model names to prompt_cents_per_mtok / completion_cents_per_mtok pairs;
// entries shadow the built-in defaults when passed to TableCost.
func LoadPriceFile(path string) (map[string]Price, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("usage: read price file: %w", err)
	}

	var prices map[string]Price
	if err := v.Unmarshal(&prices); err != nil {
		return nil, fmt.Errorf("usage: parse price file: %w", err)
	}
	return prices, nil
}

// CostFn computes the cost of one completion in integer cents. A failure is
// never fatal to the completion; the Recorder downgrades it to zero cost.
type CostFn func(model string, promptTokens, completionTokens int) (int64, error)

// TableCost returns a CostFn backed by a price table. Entries in overrides
// shadow the built-in defaults, so operators can patch prices through
// configuration without a rebuild. Unknown models are an error.
func TableCost(overrides map[string]Price) CostFn {
	table := make(map[string]Price, len(defaultPrices)+len(overrides))
	for m, p := range defaultPrices {
		table[m] = p
	}
	for m, p := range overrides {
		table[m] = p
	}

	return func(model string, promptTokens, completionTokens int) (int64, error) {
		p, ok := table[model]
		if !ok {
			return 0, fmt.Errorf("usage: no price for model %q", model)
		}
		cost := int64(promptTokens)*p.PromptCentsPerMTok/1_000_000 +
			int64(completionTokens)*p.CompletionCentsPerMTok/1_000_000
		return cost, nil
	}
}
