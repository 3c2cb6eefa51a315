package admission

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HALF-DAY PERIOD - Granularity of request endpoints
// =============================================================================

// HalfDay qualifies the start or end date of a request.
type HalfDay string

const (
	Morning   HalfDay = "MORNING"
	Afternoon HalfDay = "AFTERNOON"
	FullDay   HalfDay = "FULL_DAY"
)

func (p HalfDay) Valid() bool {
	switch p {
	case Morning, Afternoon, FullDay:
		return true
	}
	return false
}

// Value is what an endpoint contributes to a multi-day span.
func (p HalfDay) Value() decimal.Decimal {
	if p == FullDay {
		return one
	}
	return half
}

// Edge selects which end of a half-day an instant is anchored to.
type Edge int

const (
	EdgeStart Edge = iota
	EdgeEnd
)

var (
	half = decimal.New(5, -1)
	one  = decimal.NewFromInt(1)
)

const midday = 12 * time.Hour

// =============================================================================
// INSTANTS
// =============================================================================

// ToInstant maps (date, period) to a point in time usable for ordering.
// A start edge anchors to the beginning of the half, an end edge to its end:
//
//	            EdgeStart     EdgeEnd
//	MORNING     00:00         12:00
//	AFTERNOON   12:00         24:00
//	FULL_DAY    00:00         24:00
func ToInstant(date Date, period HalfDay, edge Edge) time.Time {
	day := date.Time()
	switch edge {
	case EdgeStart:
		if period == Afternoon {
			return day.Add(midday)
		}
		return day
	default:
		if period == Morning {
			return day.Add(midday)
		}
		return day.AddDate(0, 0, 1)
	}
}

// Reachable reports whether (endDate, endPeriod) lies after (startDate, startPeriod).
// On a single day FULL_DAY only pairs with FULL_DAY, and an AFTERNOON start
// cannot end in the MORNING.
func Reachable(startDate Date, startPeriod HalfDay, endDate Date, endPeriod HalfDay) bool {
	if endDate.Before(startDate) {
		return false
	}
	if endDate.Equal(startDate) && (startPeriod == FullDay) != (endPeriod == FullDay) {
		return false
	}
	return ToInstant(endDate, endPeriod, EdgeEnd).After(ToInstant(startDate, startPeriod, EdgeStart))
}

// =============================================================================
// DAY SPAN
// =============================================================================

// DaySpan returns the number of days covered by a request, in exact halves.
//
// Same day:       1 for FULL_DAY/FULL_DAY or MORNING/AFTERNOON, 0.5 for the same half.
// Several days:   diffDays - 1 + startValue + endValue, where FULL_DAY counts 1
//                 and a half-day endpoint counts 0.5.
//
// The caller guarantees end >= start; a reversed span yields zero.
func DaySpan(startDate Date, startPeriod HalfDay, endDate Date, endPeriod HalfDay) decimal.Decimal {
	diffDays := DaysBetween(startDate, endDate)
	if diffDays < 0 {
		return decimal.Zero
	}
	if diffDays == 0 {
		if startPeriod == endPeriod && startPeriod != FullDay {
			return half
		}
		return one
	}
	return decimal.NewFromInt(int64(diffDays - 1)).
		Add(startPeriod.Value()).
		Add(endPeriod.Value())
}
