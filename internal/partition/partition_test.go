package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSplit_Example(t *testing.T) {
	windows := Split(5, 3, date(2025, time.March, 10))

	assert.Len(t, windows, 2)
	assert.Equal(t, date(2025, time.March, 8), windows[0].Start)
	assert.Equal(t, date(2025, time.March, 10), windows[0].End)
	assert.Equal(t, 3, windows[0].Days())
	assert.Equal(t, date(2025, time.March, 6), windows[1].Start)
	assert.Equal(t, date(2025, time.March, 7), windows[1].End)
	assert.Equal(t, 2, windows[1].Days())
}

func TestSplit_NonPositiveTotal(t *testing.T) {
	assert.Empty(t, Split(0, 3, date(2025, time.March, 10)))
	assert.Empty(t, Split(-7, 3, date(2025, time.March, 10)))
}

func TestSplit_NeverCrossesMonthBoundary(t *testing.T) {
	windows := Split(15, 10, date(2025, time.March, 5))

	// 5 days of March, then 10 days of February. The February chunk must not
	// merge with March even though maxWindowDays would allow a longer window.
	assert.Len(t, windows, 2)
	assert.Equal(t, date(2025, time.March, 1), windows[0].Start)
	assert.Equal(t, date(2025, time.March, 5), windows[0].End)
	assert.Equal(t, date(2025, time.February, 19), windows[1].Start)
	assert.Equal(t, date(2025, time.February, 28), windows[1].End)
	assert.Equal(t, time.February, windows[1].Month)
	assert.Equal(t, 2025, windows[1].Year)
}

func TestSplit_LeapFebruary(t *testing.T) {
	windows := Split(3, 31, date(2024, time.March, 2))

	assert.Len(t, windows, 2)
	assert.Equal(t, date(2024, time.March, 1), windows[0].Start)
	assert.Equal(t, date(2024, time.March, 2), windows[0].End)
	assert.Equal(t, date(2024, time.February, 29), windows[1].Start)
	assert.Equal(t, date(2024, time.February, 29), windows[1].End)
}

func TestSplit_Properties(t *testing.T) {
	refs := []time.Time{
		date(2025, time.March, 10),
		date(2025, time.January, 1),
		date(2024, time.February, 29),
		date(2025, time.December, 31),
		date(2025, time.July, 15),
	}

	for _, ref := range refs {
		for totalDays := 1; totalDays <= 95; totalDays += 7 {
			for _, max := range []int{1, 3, 10, 31} {
				windows := Split(totalDays, max, ref)

				sum := 0
				for i, w := range windows {
					assert.False(t, w.End.Before(w.Start), "start<=end")
					assert.LessOrEqual(t, w.Days(), max, "window within max")
					assert.Equal(t, w.Start.Month(), w.End.Month(), "window inside one month")
					sum += w.Days()

					if i > 0 {
						prev := windows[i-1]
						assert.Equal(t, prev.Start.AddDate(0, 0, -1), w.End,
							"windows contiguous most-recent-first")
					}
				}
				assert.Equal(t, totalDays, sum, "lengths sum to totalDays")
				assert.Equal(t, ref, windows[0].End, "most recent window ends at reference date")
			}
		}
	}
}
