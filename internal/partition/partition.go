// Package partition splits a lookback day count into bounded, month-aligned
// date windows.
package partition

import "time"

// Window is an inclusive date range that never spans a calendar month.
type Window struct {
	Start time.Time
	End   time.Time
	Year  int
	Month time.Month
}

// Days returns the inclusive day count of the window.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Contains reports whether day falls inside the window.
func (w Window) Contains(day time.Time) bool {
	day = truncate(day)
	return !day.Before(w.Start) && !day.After(w.End)
}

// Split breaks totalDays ending at refEnd into ordered windows, most recent
// first. Windows are contiguous, non-overlapping, at most maxWindowDays long,
// and chunked within calendar months so a window never crosses a provider's
// monthly billing-period boundary. A totalDays below 1 yields no windows.
func Split(totalDays, maxWindowDays int, refEnd time.Time) []Window {
	if totalDays < 1 {
		return nil
	}
	if maxWindowDays < 1 {
		maxWindowDays = 1
	}

	end := truncate(refEnd)
	remaining := totalDays
	windows := make([]Window, 0, totalDays/maxWindowDays+1)

	for remaining > 0 {
		// Days available in the current month, counting back from end to day 1.
		monthDays := end.Day()
		take := monthDays
		if take > remaining {
			take = remaining
		}

		segStart := end.AddDate(0, 0, -(take - 1))
		windows = append(windows, chunk(segStart, end, maxWindowDays)...)
		remaining -= take

		// Step to the last day of the previous month.
		end = segStart.AddDate(0, 0, -1)
		if take < monthDays {
			// Month only partially consumed; remaining hit zero.
			break
		}
	}

	return windows
}

// chunk splits one within-month segment into windows of at most max days,
// most recent first.
func chunk(segStart, segEnd time.Time, max int) []Window {
	var windows []Window
	end := segEnd
	for !end.Before(segStart) {
		start := end.AddDate(0, 0, -(max - 1))
		if start.Before(segStart) {
			start = segStart
		}
		windows = append(windows, Window{
			Start: start,
			End:   end,
			Year:  end.Year(),
			Month: end.Month(),
		})
		end = start.AddDate(0, 0, -1)
	}
	return windows
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
