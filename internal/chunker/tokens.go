package chunker

// TokenEstimator approximates the number of model tokens in a text.
// Implementations must be cheap: the chunker calls them in tight loops.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates one token per four characters, the common
// approximation for English prose.
type CharEstimator struct{}

func (CharEstimator) Estimate(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		return 1
	}
	return n
}
