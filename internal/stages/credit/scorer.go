// internal/stages/credit/scorer.go
package credit

import (
	"math/rand"
	"sync"
	"time"

	"prequal-pipeline/internal/models"
)

// Fixed-score PANs for deterministic end-to-end runs.
const (
	panAlwaysPrime    = "ABCDE1234F" // scores 790
	panAlwaysSubprime = "FGHIJ5678K" // scores 610
)

// Scorer simulates a credit bureau lookup. The score is derived from the
// application profile plus a small random adjustment; the adjustment source
// is seeded at construction so runs can be made reproducible.
type Scorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewScorer builds a scorer. A zero seed uses the current time.
func NewScorer(seed int64) *Scorer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Scorer{rng: rand.New(rand.NewSource(seed))}
}

// Score returns a simulated CIBIL score in [300, 900].
func (s *Scorer) Score(panNumber string, monthlyIncomeINR float64, loanType models.LoanType) int {
	switch panNumber {
	case panAlwaysPrime:
		return 790
	case panAlwaysSubprime:
		return 610
	}

	score := 650

	switch {
	case monthlyIncomeINR > 75000:
		score += 40
	case monthlyIncomeINR < 30000:
		score -= 20
	}

	switch loanType {
	case models.LoanTypePersonal:
		score -= 10
	case models.LoanTypeHome:
		score += 10
	}

	s.mu.Lock()
	score += s.rng.Intn(11) - 5
	s.mu.Unlock()

	if score < 300 {
		score = 300
	}
	if score > 900 {
		score = 900
	}
	return score
}
