// Package marketwindow classifies instants into the three daily trading
// windows the pipeline scrapes. All boundaries are expressed in Pakistan
// Standard Time (UTC+5, no DST) as minutes since midnight.
package marketwindow

import (
	"time"

	"moverscan/pkg/models"
)

// PKT is the fixed reference zone. Loaded without tzdata so the binary does
// not depend on a zone database at runtime.
var PKT = time.FixedZone("PKT", 5*60*60)

const (
	preStart   = 870  // 14:30
	preEnd     = 1170 // 19:30
	afterStart = 120  // 02:00
	afterEnd   = 360  // 06:00
)

// ClassifyAt maps an instant to exactly one window, or WindowNone outside
// market hours. The current window wraps midnight, so it is the disjunction
// of [19:30, 24:00) and [00:00, 02:00) rather than a single range.
func ClassifyAt(t time.Time) models.Window {
	local := t.In(PKT)
	m := local.Hour()*60 + local.Minute()

	switch {
	case m >= preStart && m < preEnd:
		return models.WindowPre
	case m >= preEnd || m < afterStart:
		return models.WindowActive
	case m >= afterStart && m < afterEnd:
		return models.WindowAfter
	default:
		return models.WindowNone
	}
}

// Classify evaluates the current instant. Call at every tick; the result is
// never cached.
func Classify() models.Window {
	return ClassifyAt(time.Now())
}
