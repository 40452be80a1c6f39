package domain

import "time"

const dateLayout = "2006-01-02"

// EndOfMonth returns the last calendar day of the month in UTC.
func EndOfMonth(year, month int) time.Time {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
}

// ResolveStart maps a run end date and a plan periodicity to the start of the
// settlement window. ok is false when the plan does not fire this period.
func ResolveStart(end time.Time, periodicity int) (time.Time, bool) {
	year := end.Year()
	month := int(end.Month())
	switch periodicity {
	case 1:
		return firstOfMonth(year, month), true
	case 2:
		if month%2 == 0 {
			return firstOfMonth(year, month-1), true
		}
	case 3:
		if month%3 == 0 {
			return firstOfMonth(year, month-2), true
		}
	case 4:
		// month-4 is kept as is: the window spans five calendar months.
		if month%4 == 0 {
			return firstOfMonth(year, month-4), true
		}
	case 6:
		if month%6 == 0 {
			return firstOfMonth(year, month-5), true
		}
	case 12:
		if month == 12 {
			return firstOfMonth(year, 1), true
		}
	}
	return time.Time{}, false
}

// PeriodType classifies a window as monthly, quarterly, semester or yearly.
type PeriodType string

const (
	PeriodNone      PeriodType = ""
	PeriodMonthly   PeriodType = "12"
	PeriodQuarterly PeriodType = "4"
	PeriodSemester  PeriodType = "2"
	PeriodYearly    PeriodType = "1"
)

// PeriodOf returns the period type and the period index within the year.
// Wider periods are matched first, so a Jan-Dec window is yearly rather
// than quarterly. A yearly window has index 1.
func PeriodOf(start, end time.Time) (PeriodType, int) {
	startMonth := int(start.Month())
	endMonth := int(end.Month())
	switch {
	case startMonth == 1 && endMonth == 12:
		return PeriodYearly, 1
	case startMonth%6 == 1 && endMonth == startMonth+5:
		return PeriodSemester, endMonth / 6
	case startMonth%3 == 1 && endMonth == startMonth+2:
		return PeriodQuarterly, endMonth / 3
	case startMonth == endMonth:
		return PeriodMonthly, endMonth
	}
	return PeriodNone, 0
}

// DateKey renders the calendar value of t.
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

func firstOfMonth(year, month int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysInclusive counts calendar days from a to b, both included.
func daysInclusive(a, b time.Time) int {
	return int(truncateDay(b).Sub(truncateDay(a)).Hours()/24) + 1
}
