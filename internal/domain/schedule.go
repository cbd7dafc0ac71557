package domain

import "time"

// Office hours: half-hour slots 09:00-13:00, lunch until 14:30, then 14:30-17:00.
const (
	openHour       = 9
	closeHour      = 17
	lunchStartHour = 13
	slotMinutes    = 30
)

// SlotBoundaries lists the valid (hour, minute) slot starts of an office day,
// in order. Eight morning slots and six afternoon slots.
func SlotBoundaries() [][2]int {
	boundaries := make([][2]int, 0, 14)
	for h := 9; h <= 12; h++ {
		boundaries = append(boundaries, [2]int{h, 0}, [2]int{h, 30})
	}
	boundaries = append(boundaries,
		[2]int{14, 30}, [2]int{15, 0}, [2]int{15, 30},
		[2]int{16, 0}, [2]int{16, 30}, [2]int{17, 0},
	)
	return boundaries
}

// ResolveSlot maps a desired timestamp to the nearest valid operating slot on
// the same calendar date. Minutes snap to the nearest of :00/:30, then the
// time of day is clamped into office hours: before 09:00 goes to 09:00, the
// lunch window [13:00, 14:30) goes to 14:30, and anything past 17:00 goes to
// 17:00.
func ResolveSlot(desired time.Time) time.Time {
	hour := desired.Hour()
	minute := desired.Minute()

	// Snap to the nearer of :00 and :30 within the hour; the :15 tie
	// snaps down.
	if minute <= 15 {
		minute = 0
	} else {
		minute = 30
	}

	if hour < openHour {
		hour, minute = openHour, 0
	}
	if hour == lunchStartHour || (hour == 14 && minute < 30) {
		hour, minute = 14, 30
	}
	if hour > closeHour || (hour == closeHour && minute > 0) {
		hour, minute = closeHour, 0
	}

	return time.Date(desired.Year(), desired.Month(), desired.Day(), hour, minute, 0, 0, desired.Location())
}

// SlotIndex returns the 1-based position of the slot within the day's
// schedule. Timestamps produced by ResolveSlot always hit a boundary; for
// anything else it falls back to counting half hours since opening, floored
// at 1.
func SlotIndex(slot time.Time) int {
	h, m := slot.Hour(), slot.Minute()
	for i, b := range SlotBoundaries() {
		if b[0] == h && b[1] == m {
			return i + 1
		}
	}
	idx := ((h-openHour)*60 + m) / slotMinutes
	if idx < 0 {
		idx = 0
	}
	return idx + 1
}

// SlotDate formats the slot's calendar date as stored on the token row.
func SlotDate(slot time.Time) string {
	return slot.Format("2006-01-02")
}
