// Service-time oracle: draws simulated processing durations from the
// configured distribution. Each worker owns its own oracle so draws never
// contend and stay reproducible under a fixed seed.

package sim

import (
	"time"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// minServiceTime floors normal draws, which are the only distribution here
// that can go non-positive: exponential draws are strictly positive and
// uniform draws are bounded below by their configured minimum, so neither is
// clamped.
const minServiceTime = 10 * time.Millisecond

// ServiceTimeOracle yields the next simulated service duration.
type ServiceTimeOracle interface {
	Next() time.Duration
}

// fixedServiceTime returns a constant duration.
type fixedServiceTime struct {
	d time.Duration
}

func (f fixedServiceTime) Next() time.Duration { return f.d }

// distServiceTime draws from a gonum continuous distribution, in seconds.
type distServiceTime struct {
	dist  distuv.Rander
	floor bool // clamp negative/near-zero draws (normal can go negative)
}

func (d distServiceTime) Next() time.Duration {
	s := d.dist.Rand()
	dur := time.Duration(s * float64(time.Second))
	if d.floor && dur < minServiceTime {
		return minServiceTime
	}
	if dur < 0 {
		return 0
	}
	return dur
}

// NewServiceTimeOracle builds the oracle for one worker. The seed should be
// derived per worker from PartitionedRNG.SeedFor.
func NewServiceTimeOracle(cfg ServiceTimeConfig, seed int64) (ServiceTimeOracle, error) {
	src := exprand.NewSource(uint64(seed))
	switch cfg.Type {
	case ServiceTimeFixed:
		return fixedServiceTime{d: secondsToDuration(cfg.Fixed)}, nil
	case ServiceTimeUniform:
		return distServiceTime{dist: distuv.Uniform{Min: cfg.UniformA, Max: cfg.UniformB, Src: src}}, nil
	case ServiceTimeExponential:
		return distServiceTime{dist: distuv.Exponential{Rate: cfg.ExpLambda, Src: src}}, nil
	case ServiceTimeNormal:
		return distServiceTime{dist: distuv.Normal{Mu: cfg.NormalMean, Sigma: cfg.NormalStd, Src: src}, floor: true}, nil
	}
	return nil, &ConfigError{Field: "service_time.type", Reason: "unknown distribution"}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
