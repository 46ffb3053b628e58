package model

import (
	"slices"
	"strconv"

	"gradespeed-backend/internal/qmath"
)

func itoa(i int) string {
	return strconv.Itoa(i)
}

// AllCycles returns every cycle of every semester of a course in order.
func (c Course) AllCycles() []Cycle {
	nested := make([][]Cycle, len(c.Semesters))
	for i, s := range c.Semesters {
		nested[i] = s.Cycles
	}
	return qmath.Flatten(nested)
}

// FindCycle returns a pointer to the cycle with the given url hash, or nil.
func (g *Grades) FindCycle(urlHash string) *Cycle {
	if urlHash == "" {
		return nil
	}
	for ci := range g.Courses {
		for si := range g.Courses[ci].Semesters {
			sem := &g.Courses[ci].Semesters[si]
			for yi := range sem.Cycles {
				if sem.Cycles[yi].URLHash == urlHash {
					return &sem.Cycles[yi]
				}
			}
		}
	}
	return nil
}

// CompareAttendanceEvents orders events by date, then block.
func CompareAttendanceEvents(a, b AttendanceEvent) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return a.Block - b.Block
}

// SortAttendanceEvents sorts events chronologically in place.
func SortAttendanceEvents(events []AttendanceEvent) {
	slices.SortStableFunc(events, CompareAttendanceEvents)
}
