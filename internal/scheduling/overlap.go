package scheduling

import (
	"sort"
	"time"
)

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Back-to-back intervals (aEnd == bStart) do not
// overlap, so an appointment ending at 10:30 never collides with one
// starting at 10:30.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// FindConflicts returns every candidate whose interval overlaps the proposed
// [start, start+duration) window, sorted by start time ascending. Candidates
// are expected to be pre-filtered to one owner, active statuses, and to
// exclude the appointment being updated. Pure: no side effects on candidates.
func FindConflicts(start time.Time, durationMinutes int, candidates []Appointment) []Appointment {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	var conflicts []Appointment
	for _, c := range candidates {
		if Overlaps(start, end, c.StartTime, c.EndTime()) {
			conflicts = append(conflicts, c)
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].StartTime.Before(conflicts[j].StartTime)
	})

	return conflicts
}
