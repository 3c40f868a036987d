package stream

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// newBackoff returns the reconnect schedule: base·2^attempt capped at maxDelay,
// stopping after maxAttempts delays.
func newBackoff(opts Options) retry.Backoff {
	b := retry.NewExponential(opts.BaseDelay)
	b = retry.WithCappedDuration(opts.MaxDelay, b)
	return retry.WithMaxRetries(uint64(opts.MaxAttempts), b)
}

// Schedule lists every delay the client would wait before giving up.
func Schedule(opts Options) []time.Duration {
	opts = opts.withDefaults()
	b := newBackoff(opts)
	var out []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			return out
		}
		out = append(out, d)
	}
}
