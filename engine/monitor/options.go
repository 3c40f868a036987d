package monitor

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/briefcase-hq/briefcase/engine/infra/monitoring"
	"github.com/briefcase-hq/briefcase/engine/monitor/stream"
	"github.com/briefcase-hq/briefcase/pkg/config"
)

const (
	DefaultMinGoalLength     = 10
	DefaultMaxRetries        = 3
	DefaultRetryBaseDelay    = time.Second
	DefaultFeedbackCacheSize = 256
)

// Options tunes a Controller. Zero values fall back to the package defaults.
type Options struct {
	MinGoalLength      int
	MaxRetries         int
	RetryBaseDelay     time.Duration
	AutoRetry          bool
	Poll               PollOptions
	Stream             stream.Options
	StallCheckInterval time.Duration
	StallThreshold     time.Duration
	EventBufferSize    int
	FeedbackCacheSize  int
	Clock              clock.Clock
	Metrics            *monitoring.MonitorMetrics
}

func DefaultOptions() Options {
	return Options{
		MinGoalLength:      DefaultMinGoalLength,
		MaxRetries:         DefaultMaxRetries,
		RetryBaseDelay:     DefaultRetryBaseDelay,
		AutoRetry:          true,
		Poll:               PollOptions{Interval: DefaultPollInterval, Timeout: DefaultPollTimeout, RecentLimit: DefaultRecentLimit},
		Stream:             stream.DefaultOptions(),
		StallCheckInterval: DefaultStallCheckInterval,
		StallThreshold:     DefaultStallThreshold,
		EventBufferSize:    DefaultEventBufferSize,
		FeedbackCacheSize:  DefaultFeedbackCacheSize,
	}
}

// OptionsFromConfig maps the loaded configuration onto controller options.
func OptionsFromConfig(cfg *config.Config) Options {
	m := cfg.Monitor
	return Options{
		MinGoalLength:  m.MinGoalLength,
		MaxRetries:     cfg.Retry.MaxRetries,
		RetryBaseDelay: cfg.Retry.BaseDelay,
		AutoRetry:      cfg.Retry.Auto,
		Poll: PollOptions{
			Interval:    m.PollInterval,
			Timeout:     m.PollTimeout,
			RecentLimit: m.RecentLimit,
		},
		Stream: stream.Options{
			MaxAttempts: m.Stream.MaxAttempts,
			BaseDelay:   m.Stream.BaseDelay,
			MaxDelay:    m.Stream.MaxDelay,
		},
		StallCheckInterval: m.StallCheckInterval,
		StallThreshold:     m.StallThreshold,
		EventBufferSize:    m.EventBufferSize,
		FeedbackCacheSize:  m.FeedbackCacheSize,
	}
}

func (o Options) withDefaults() Options {
	if o.MinGoalLength <= 0 {
		o.MinGoalLength = DefaultMinGoalLength
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if o.FeedbackCacheSize <= 0 {
		o.FeedbackCacheSize = DefaultFeedbackCacheSize
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}
