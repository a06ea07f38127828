package caseflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/caseflow-dev/caseflow"
)

func TestConstantBackoff(t *testing.T) {
	b := caseflow.ConstantBackoff{Interval: 200 * time.Millisecond}

	assert.Equal(t, 200*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(5))
}

func TestExponentialBackoff(t *testing.T) {
	b := caseflow.ExponentialBackoff{Interval: 100 * time.Millisecond, Max: 2 * time.Second}

	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, 2*time.Second, b.Delay(10), "cap applies")
}

func TestExponentialBackoffWithoutCap(t *testing.T) {
	b := caseflow.ExponentialBackoff{Interval: time.Millisecond}

	assert.Equal(t, 8*time.Millisecond, b.Delay(4))
	assert.Equal(t, time.Millisecond, b.Delay(0), "attempts clamp to 1")
}
