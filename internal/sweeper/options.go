package sweeper

import (
	"time"

	"github.com/stacklok/workload-launcher/internal/telemetry"
)

type settings struct {
	metrics *telemetry.LauncherMetrics
	now     func() time.Time
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures a sweeper
type Option func(*settings)

// WithMetrics records sweeper activity on m
func WithMetrics(m *telemetry.LauncherMetrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
