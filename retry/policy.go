package retry

import (
	"time"
)

// Default values of the mail retry policy.
const (
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 3
	DefaultMultiplier  = 2
)

// Policy decides how long to wait after a failed attempt.
// tryNum is the number of attempts made so far (starting with 1).
type Policy interface {
	TryNum(tryNum int) (delay time.Duration, stop bool)
}

// NewDefaultExponential returns Exponential with 1s base delay and 3 attempts.
func NewDefaultExponential() *Exponential {
	return NewExponential(DefaultBaseDelay, DefaultMaxAttempts)
}

// NewExponential creates a bounded Policy doubling the delay after every failure.
func NewExponential(base time.Duration, maxAttempts int) *Exponential {
	if base < 0 {
		panic("base delay should not be negative")
	}
	if maxAttempts < 1 {
		panic("max attempts should be positive")
	}

	return &Exponential{
		base:        base,
		maxAttempts: maxAttempts,
	}
}

// Exponential waits base*2^(n-1) after the n-th failed attempt
// and stops once maxAttempts attempts were made.
type Exponential struct {
	base        time.Duration
	maxAttempts int
}

func (e *Exponential) TryNum(tryNum int) (time.Duration, bool) {
	if tryNum >= e.maxAttempts {
		return 0, true
	}
	if tryNum < 1 {
		tryNum = 1
	}

	return e.base << (tryNum - 1), false
}

// MaxAttempts returns the total attempt budget.
func (e *Exponential) MaxAttempts() int {
	return e.maxAttempts
}

// NewConstant creates a Policy with a fixed delay.
// maxAttempts == 0 means unbounded.
func NewConstant(interval time.Duration, maxAttempts int) *Constant {
	return &Constant{interval: interval, maxAttempts: maxAttempts}
}

type Constant struct {
	interval    time.Duration
	maxAttempts int
}

func (c *Constant) TryNum(tryNum int) (time.Duration, bool) {
	if c.maxAttempts > 0 && tryNum >= c.maxAttempts {
		return 0, true
	}
	return c.interval, false
}

// NewDefaultCapped returns Capped used for broker reconnects.
func NewDefaultCapped() *Capped {
	return NewCapped(100*time.Millisecond, 30*time.Second, DefaultMultiplier)
}

// NewCapped creates an unbounded Policy growing geometrically up to max.
func NewCapped(base, max time.Duration, multiplier int) *Capped {
	if base == 0 {
		panic("interval should not be 0")
	}
	if multiplier == 0 {
		panic("multiplier should not be 0")
	}
	if max == 0 {
		panic("max interval should not be 0")
	}

	return &Capped{base: base, max: max, multiplier: multiplier}
}

// Capped never stops, it only caps the delay.
type Capped struct {
	base       time.Duration
	max        time.Duration
	multiplier int
}

func (c *Capped) TryNum(tryNum int) (time.Duration, bool) {
	delay := c.base
	for i := 1; i < tryNum; i++ {
		delay *= time.Duration(c.multiplier)
		if delay >= c.max {
			return c.max, false
		}
	}
	return delay, false
}
