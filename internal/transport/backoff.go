package transport

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffSettings declares the reconnect delay schedule: attempt n (n >= 1)
// waits min(Base * 2^(n-1), Cap). Full-jump backoff, not jittered.
type BackoffSettings struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func (s BackoffSettings) normalize() BackoffSettings {
	if s.Base <= 0 {
		s.Base = time.Second
	}
	if s.Cap < s.Base {
		s.Cap = 30 * time.Second
	}
	if s.MaxAttempts < 1 {
		s.MaxAttempts = 10
	}
	return s
}

func newBackoff(settings BackoffSettings) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = settings.Base
	b.MaxInterval = settings.Cap
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}
