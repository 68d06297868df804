// Package loadtest drives many concurrent visitors through the page API and
// checks that every page converges on the same roster.
package loadtest

import (
	"errors"
	"time"
)

// Defaults for Config.
const (
	DefaultVisitors = 200
	DefaultWorkers  = 16
	DefaultTimeout  = 10 * time.Second
	DefaultSettle   = 30 * time.Second
)

var (
	// ErrUnhealthy is returned when the service health check fails.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrNotConverged is returned when the observer never sees every RSVP.
	ErrNotConverged = errors.New("roster did not converge")
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Visitors int           // Number of simulated visitors, one RSVP each
	Workers  int           // Number of concurrent visitors
	Timeout  time.Duration // Per-request timeout
	Settle   time.Duration // How long to wait for the observer to converge
	Verbose  bool          // Log every visitor
}

func (c *Config) normalize() {
	if c.Visitors <= 0 {
		c.Visitors = DefaultVisitors
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
}

// Stats holds run statistics.
type Stats struct {
	Visitors       int
	Submitted      int
	Failed         int
	ExpectedGuests int
	ObservedGuests int
	ObservedRSVPs  int
	StartTime      time.Time
	Duration       time.Duration
}
