package embedding

// CostEstimate is a pre-flight budget for embedding a set of texts.
type CostEstimate struct {
	Tokens int     `json:"token_count"`
	USD    float64 `json:"estimated_cost_usd"`
}

// charsPerToken approximates the provider's tokenizer. More accurate would
// be a real BPE tokenizer, but this is sufficient for budgeting and keeps
// the estimate a pure function.
const charsPerToken = 4

// usdPerKiloTokens by embedding model.
var usdPerKiloTokens = map[string]float64{
	"text-embedding-3-small": 0.00002,
	"text-embedding-3-large": 0.00013,
	"text-embedding-ada-002": 0.0001,
}

// EstimateCost approximates token count and dollar cost for embedding the
// given texts with the given model. Unknown models price as ada-002.
func EstimateCost(texts []string, model string) CostEstimate {
	chars := 0

	for _, text := range texts {
		chars += len(text)
	}

	tokens := (chars + charsPerToken - 1) / charsPerToken

	price, ok := usdPerKiloTokens[model]

	if !ok {
		price = usdPerKiloTokens["text-embedding-ada-002"]
	}

	return CostEstimate{
		Tokens: tokens,
		USD:    float64(tokens) / 1000 * price,
	}
}
