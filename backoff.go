package caseflow

import (
	"time"

	"github.com/caseflow-dev/caseflow/config"
)

// Backoff computes the delay before a retry attempt. Attempt numbering starts
// at 1 for the first retry.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ConstantBackoff waits the same interval between every retry.
type ConstantBackoff struct {
	Interval time.Duration
}

// Delay implements Backoff.
func (b ConstantBackoff) Delay(int) time.Duration { return b.Interval }

// ExponentialBackoff doubles the interval on each retry, capped at Max when
// Max is set.
type ExponentialBackoff struct {
	Interval time.Duration
	Max      time.Duration
}

// Delay implements Backoff.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Interval
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

func newBackoff(bc config.BackoffConfig) Backoff {
	if bc.Strategy == config.BackoffExponential {
		return ExponentialBackoff{Interval: bc.Interval.Std(), Max: bc.Max.Std()}
	}
	return ConstantBackoff{Interval: bc.Interval.Std()}
}
