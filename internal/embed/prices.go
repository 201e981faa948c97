package embed

// pricePerToken is the pinned USD price per input token for known embedding
// models. Cost estimates for unknown models are 0; the caller surfaces a
// warning in that case.
var pricePerToken = map[string]float64{
	"text-embedding-3-small": 0.02 / 1_000_000,
	"text-embedding-3-large": 0.13 / 1_000_000,
	"text-embedding-ada-002": 0.10 / 1_000_000,
	"static":                 0,
}

// PriceKnown reports whether the model has a pinned price.
func PriceKnown(model string) bool {
	_, ok := pricePerToken[model]
	return ok
}

// EstimateCostUSD returns the estimated cost of embedding the given token
// count with the model, 0 when the model is unknown.
func EstimateCostUSD(model string, tokens int) float64 {
	return pricePerToken[model] * float64(tokens)
}
