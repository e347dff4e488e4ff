package scale

import "time"

// WithLogger sets the logger
func WithLogger(logger Logger) func(*Scale) {
	return func(s *Scale) {
		s.logger = logger
	}
}

// WithConnectDelay sets the time to wait for hardware transients after opening the channel
func WithConnectDelay(delay time.Duration) func(*Scale) {
	return func(s *Scale) {
		s.connectDelay = delay
	}
}

// WithRestartDelay sets the time to wait for hardware transients after reopening the channel
func WithRestartDelay(delay time.Duration) func(*Scale) {
	return func(s *Scale) {
		s.restartDelay = delay
	}
}
