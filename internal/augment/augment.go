// Package augment merges a freshly scraped grade tree into the previously
// stored one and reports what changed between them.
package augment

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"gradespeed-backend/internal/components/assert"
	"gradespeed-backend/internal/components/chrono"
	"gradespeed-backend/internal/components/telemetry"
	"gradespeed-backend/internal/model"
)

const (
	report_augmenter_diff_year          = "augmenter.diff-year"
	report_augmenter_diff_cycle         = "augmenter.diff-cycle"
	report_augmenter_augment_attendance = "augmenter.augment-attendance"
)

// MismatchError is returned when two cycles that should describe the same
// grading period do not.
type MismatchError struct {
	Base     string
	Specific string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("url hashes do not match: %q != %q", e.Base, e.Specific)
}

type Augmenter struct {
	clock chrono.API
	tel   telemetry.API
}

func NewAugmenter(clock chrono.API, tel telemetry.API) Augmenter {
	assert.NotNil(clock)
	assert.NotNil(tel)
	return Augmenter{
		clock: clock,
		tel:   telemetry.NewScopedAPI("augment", tel),
	}
}

func sameGrade(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

func formatGrade(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPoints(earned, possible float64) string {
	if possible == 100 {
		return formatGrade(earned)
	}
	return fmt.Sprintf("%s/%s", formatGrade(earned), formatGrade(possible))
}

func indexCourses(courses []model.Course) map[string]model.Course {
	out := make(map[string]model.Course, len(courses))
	for _, c := range courses {
		if c.ID == "" {
			continue
		}
		out[c.ID] = c
	}
	return out
}

// DiffYear compares the cycle averages of two year snapshots. Courses are
// matched by id, semesters and cycles inside a matched course by position.
func (a Augmenter) DiffYear(oldCourses, newCourses []model.Course) []model.GradeChange {
	var diffs []model.GradeChange
	timestamp := a.clock.Now()
	old := indexCourses(oldCourses)

	for _, newCourse := range newCourses {
		oldCourse, found := old[newCourse.ID]
		if !found {
			for _, cycle := range newCourse.AllCycles() {
				if cycle.URLHash == "" || math.IsNaN(cycle.Average) {
					continue
				}
				diffs = append(diffs, model.GradeChange{
					ID:        cycle.URLHash,
					Timestamp: timestamp,
					Type:      model.ChangeNew,
					NewGrade:  formatGrade(cycle.Average),
				})
			}
			continue
		}

		if len(oldCourse.Semesters) != len(newCourse.Semesters) {
			a.tel.ReportWarning(
				report_augmenter_diff_year,
				fmt.Errorf("semester count changed from %d to %d", len(oldCourse.Semesters), len(newCourse.Semesters)),
				newCourse.Title,
			)
		}
		for si := 0; si < min(len(oldCourse.Semesters), len(newCourse.Semesters)); si++ {
			oldCycles := oldCourse.Semesters[si].Cycles
			newCycles := newCourse.Semesters[si].Cycles
			for ci := 0; ci < min(len(oldCycles), len(newCycles)); ci++ {
				change, ok := a.diffGrade(
					newCycles[ci].URLHash,
					oldCycles[ci].Average,
					newCycles[ci].Average,
					formatGrade(newCycles[ci].Average),
					timestamp,
					report_augmenter_diff_year,
				)
				if ok {
					diffs = append(diffs, change)
				}
			}
		}
	}

	return diffs
}

// diffGrade compares a single grade, an id that is empty means the new side
// has nothing worth reporting. A grade showing up where there was none is NEW
// even inside a matched course.
func (a Augmenter) diffGrade(id string, oldGrade, newGrade float64, formatted string, timestamp time.Time, reportID string) (model.GradeChange, bool) {
	if id == "" || math.IsNaN(newGrade) || sameGrade(oldGrade, newGrade) {
		return model.GradeChange{}, false
	}

	change := model.GradeChange{
		ID:        id,
		Timestamp: timestamp,
		NewGrade:  formatted,
	}
	switch {
	case math.IsNaN(oldGrade):
		change.Type = model.ChangeNew
	case newGrade > oldGrade:
		change.Type = model.ChangeUp
	case newGrade < oldGrade:
		change.Type = model.ChangeDown
	default:
		a.tel.ReportWarning(reportID, "unreachable branch reached", id, oldGrade, newGrade)
		return model.GradeChange{}, false
	}
	return change, true
}

// DiffCycle compares the assignments of two snapshots of the same cycle,
// matching categories and assignments by id.
func (a Augmenter) DiffCycle(oldCycle, newCycle model.Cycle) []model.GradeChange {
	var diffs []model.GradeChange
	timestamp := a.clock.Now()

	oldCategories := make(map[string]model.Category, len(oldCycle.Categories))
	for _, c := range oldCycle.Categories {
		oldCategories[c.ID] = c
	}

	for _, category := range newCycle.Categories {
		oldCategory, found := oldCategories[category.ID]
		if !found {
			for _, assignment := range category.Assignments {
				if math.IsNaN(assignment.PtsEarned) {
					continue
				}
				diffs = append(diffs, model.GradeChange{
					ID:        assignment.ID,
					Timestamp: timestamp,
					Type:      model.ChangeNew,
					NewGrade:  formatPoints(assignment.PtsEarned, assignment.PtsPossible),
				})
			}
			continue
		}

		oldAssignments := make(map[string]model.Assignment, len(oldCategory.Assignments))
		for _, assignment := range oldCategory.Assignments {
			oldAssignments[assignment.ID] = assignment
		}
		for _, assignment := range category.Assignments {
			oldEarned := math.NaN()
			if old, ok := oldAssignments[assignment.ID]; ok {
				oldEarned = old.PtsEarned
			}
			change, ok := a.diffGrade(
				assignment.ID,
				oldEarned,
				assignment.PtsEarned,
				formatPoints(assignment.PtsEarned, assignment.PtsPossible),
				timestamp,
				report_augmenter_diff_cycle,
			)
			if ok {
				diffs = append(diffs, change)
			}
		}
	}

	return diffs
}

// AugmentYear returns a copy of newCourses where every cycle that was already
// known keeps the detail of its previous snapshot.
func (a Augmenter) AugmentYear(oldCourses, newCourses []model.Course) ([]model.Course, error) {
	oldCycles := map[string]model.Cycle{}
	for _, course := range oldCourses {
		for _, cycle := range course.AllCycles() {
			if cycle.URLHash == "" {
				continue
			}
			oldCycles[cycle.URLHash] = cycle
		}
	}

	out := make([]model.Course, len(newCourses))
	for i, course := range newCourses {
		course = course.Clone()
		for si := range course.Semesters {
			cycles := course.Semesters[si].Cycles
			for ci, cycle := range cycles {
				old, ok := oldCycles[cycle.URLHash]
				if cycle.URLHash == "" || !ok {
					continue
				}
				merged, err := AugmentCycle(cycle, old)
				if err != nil {
					return nil, err
				}
				cycles[ci] = merged
			}
		}
		out[i] = course
	}
	return out, nil
}

// AugmentCycle fills in whatever detail base lacks from specific. Base is
// usually the freshly parsed summary cycle and specific the richer stored one,
// so the fresh average always wins.
func AugmentCycle(base, specific model.Cycle) (model.Cycle, error) {
	if base.URLHash != specific.URLHash {
		return model.Cycle{}, &MismatchError{Base: base.URLHash, Specific: specific.URLHash}
	}

	out := base.Clone()
	if out.Categories == nil && specific.Categories != nil {
		detail := specific.Clone()
		out.Categories = detail.Categories
		out.UsesLetterGrades = specific.UsesLetterGrades
	}
	if out.Title == "" {
		out.Title = specific.Title
	}
	if out.LastUpdated.IsZero() {
		out.LastUpdated = specific.LastUpdated
	}
	if out.ChangedGrades == nil && specific.ChangedGrades != nil {
		out.ChangedGrades = slices.Clone(specific.ChangedGrades)
	}
	return out, nil
}

// AugmentAttendanceEvents carries the read flag of known events over to a
// fresh attendance scrape. Both lists must be sorted with
// model.SortAttendanceEvents, only one event can happen per block per day.
func (a Augmenter) AugmentAttendanceEvents(oldEvents, newEvents []model.AttendanceEvent) []model.AttendanceEvent {
	out := make([]model.AttendanceEvent, 0, len(newEvents))

	oldIndex, newIndex := 0, 0
	for oldIndex < len(oldEvents) && newIndex < len(newEvents) {
		fromOld := oldEvents[oldIndex]
		fromNew := newEvents[newIndex]

		switch c := model.CompareAttendanceEvents(fromOld, fromNew); {
		case c > 0:
			out = append(out, fromNew)
			newIndex++
		case c < 0:
			// an event should never disappear once it has been recorded
			a.tel.ReportWarning(
				report_augmenter_augment_attendance,
				"event vanished from attendance",
				fromOld.Date.Format(time.DateOnly),
				fromOld.Block,
			)
			oldIndex++
		default:
			fromNew.Read = fromOld.Read
			out = append(out, fromNew)
			oldIndex++
			newIndex++
		}
	}
	out = append(out, newEvents[newIndex:]...)
	if remaining := len(oldEvents) - oldIndex; remaining > 0 {
		a.tel.ReportWarning(
			report_augmenter_augment_attendance,
			"events vanished from the end of attendance",
			remaining,
		)
	}

	return out
}
