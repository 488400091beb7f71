// internal/verifier/confidence.go
package verifier

// Weights blends the four verification checks into a confidence score.
// Consistency and quorum weigh heavier than freshness: split-brain is more
// dangerous than slightly stale data. The exact blend is a policy choice,
// so it is configurable rather than hard-coded.
type Weights struct {
	Consistency int `json:"consistency" yaml:"consistency"`
	Quorum      int `json:"quorum" yaml:"quorum"`
	Policy      int `json:"policy" yaml:"policy"`
	Freshness   int `json:"freshness" yaml:"freshness"`
}

// DefaultWeights is the documented default blend
func DefaultWeights() Weights {
	return Weights{Consistency: 35, Quorum: 30, Policy: 20, Freshness: 15}
}

func (w Weights) total() int {
	return w.Consistency + w.Quorum + w.Policy + w.Freshness
}

// Band is the qualitative confidence band
type Band string

const (
	BandVeryHigh Band = "very_high"
	BandHigh     Band = "high"
	BandMedium   Band = "medium"
	BandLow      Band = "low"
)

// Confidence is the scored trustworthiness of a verified failover
type Confidence struct {
	Score int  `json:"score"`
	Band  Band `json:"band"`
}

// Score computes the weighted 0-100 score from the four check outcomes
func (w Weights) Score(consistency, policy, quorum, freshness bool) int {
	total := w.total()
	if total == 0 {
		return 0
	}
	earned := 0
	if consistency {
		earned += w.Consistency
	}
	if policy {
		earned += w.Policy
	}
	if quorum {
		earned += w.Quorum
	}
	if freshness {
		earned += w.Freshness
	}
	return earned * 100 / total
}

// BandFor maps a score to its band. Any failed check caps the band at
// medium, so a "mostly fine" failover is never reported as trustworthy.
func BandFor(score int, allPassed bool) Band {
	band := BandLow
	switch {
	case score >= 90:
		band = BandVeryHigh
	case score >= 75:
		band = BandHigh
	case score >= 50:
		band = BandMedium
	}
	if !allPassed && (band == BandVeryHigh || band == BandHigh) {
		band = BandMedium
	}
	return band
}
