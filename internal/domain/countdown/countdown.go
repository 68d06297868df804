// Package countdown computes the time remaining until the event.
package countdown

import (
	"time"
)

const (
	msPerSecond = int64(1000)
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

// Breakdown is the remaining time split into display units.
type Breakdown struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
}

// Compute splits target-now into days, hours, minutes and seconds.
//
// Each unit is the floor of the remainder left by the next larger unit.
// Remainders keep the sign of the distance, so once the target has passed
// the components go negative. That is left as is.
func Compute(target, now time.Time) Breakdown {
	distance := target.Sub(now).Milliseconds()
	return Breakdown{
		Days:    floorDiv(distance, msPerDay),
		Hours:   floorDiv(distance%msPerDay, msPerHour),
		Minutes: floorDiv(distance%msPerHour, msPerMinute),
		Seconds: floorDiv(distance%msPerMinute, msPerSecond),
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
