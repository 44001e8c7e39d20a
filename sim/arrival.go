package sim

import (
	"math/rand"
	"time"
)

// ArrivalSampler generates inter-arrival times for a client.
type ArrivalSampler interface {
	// SampleIAT returns the next inter-arrival gap.
	// Always returns a positive value.
	SampleIAT(rng *rand.Rand) time.Duration
}

// PoissonSampler generates exponentially-distributed inter-arrival times
// (CV=1), so the aggregate arrival process approximates Poisson at the
// configured rate.
type PoissonSampler struct {
	rate float64 // requests per second
}

// NewPoissonSampler builds a sampler for the given per-client rate (req/s).
func NewPoissonSampler(rate float64) *PoissonSampler {
	return &PoissonSampler{rate: rate}
}

func (s *PoissonSampler) SampleIAT(rng *rand.Rand) time.Duration {
	iat := time.Duration(rng.ExpFloat64() / s.rate * float64(time.Second))
	if iat < time.Microsecond {
		return time.Microsecond
	}
	return iat
}
