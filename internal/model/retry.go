package model

import (
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 15 * time.Second
)

// RetryPolicy bounds the attempts of a single stage. The delay between
// attempts is fixed: no jitter and no backoff growth.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Delay       time.Duration `json:"delay" yaml:"delay"`
}

// DefaultRetryPolicy returns 3 attempts spaced 15 seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultRetryDelay}
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy: max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry policy: delay must not be negative, got %s", p.Delay)
	}
	return nil
}
