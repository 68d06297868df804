package dedupe

import "time"

// Option applies a configuration option to the in-memory ledger.
type Option func(*inMemoryLedger)

// WithMaxSize bounds the number of tracked ids. When full, the oldest id is
// evicted. A value <= 0 disables the bound.
func WithMaxSize(maxSize int) Option {
	return func(l *inMemoryLedger) {
		l.maxSize = maxSize
	}
}

// WithClock overrides the time source used to expire entries.
func WithClock(now func() time.Time) Option {
	return func(l *inMemoryLedger) {
		if now != nil {
			l.now = now
		}
	}
}
