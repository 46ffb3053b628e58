// Package calc computes averages and GPAs from parsed grades. Every function
// is pure and NaN stands for a grade that is not there.
package calc

import (
	"math"
	"strings"

	"gradespeed-backend/internal/model"
	"gradespeed-backend/internal/qmath"
)

// DroppedNote is how teachers mark an assignment excluded from the category
// average, there is no structured flag for it.
const DroppedNote = "(Dropped)"

// SemesterAverage weighs the mean of the graded cycles against the exam.
// Cycles get (300 - 3*examWeight) scaled by the share of cycles that are
// graded, the exam gets 3*examWeight unless it is exempt or missing.
func SemesterAverage(semester model.Semester, examWeight float64) float64 {
	cycleAverages := make([]float64, len(semester.Cycles))
	for i, c := range semester.Cycles {
		cycleAverages[i] = c.Average
	}
	present := len(qmath.Numerics(cycleAverages))

	cycleAverage := qmath.Average(cycleAverages)
	cycleWeight := math.NaN()
	if len(semester.Cycles) > 0 {
		cycleWeight = (300 - examWeight*3) * float64(present) / float64(len(semester.Cycles))
	}

	examGrade := semester.ExamGrade
	examGradeWeight := examWeight * 3
	if semester.ExamIsExempt || math.IsNaN(examGrade) {
		examGrade = math.NaN()
		examGradeWeight = math.NaN()
	}

	return qmath.WeightedAverage(
		[]float64{cycleAverage, examGrade},
		[]float64{cycleWeight, examGradeWeight},
	)
}

// CycleAverage is the weighted average of the graded categories plus the
// bonus of every category, graded or not.
func CycleAverage(cycle model.Cycle) float64 {
	var averages, weights []float64
	bonus := 0.0
	for _, c := range cycle.Categories {
		if !math.IsNaN(c.Bonus) {
			bonus += c.Bonus
		}
		if math.IsNaN(c.Average) {
			continue
		}
		averages = append(averages, c.Average)
		weights = append(weights, c.Weight)
	}
	return qmath.WeightedAverage(averages, weights) + bonus
}

func countsTowardAverage(a model.Assignment) bool {
	return !a.ExtraCredit &&
		!math.IsNaN(a.PtsEarned) &&
		!strings.Contains(a.Note, DroppedNote) &&
		a.PtsPossible > 0
}

// CategoryAverage is the weighted average of every graded assignment scaled
// to 100 points, extra credit and dropped assignments are left out.
func CategoryAverage(assignments []model.Assignment) float64 {
	var scores, weights []float64
	for _, a := range assignments {
		if !countsTowardAverage(a) {
			continue
		}
		scores = append(scores, a.PtsEarned*100/a.PtsPossible)
		weights = append(weights, a.Weight)
	}
	return qmath.WeightedAverage(scores, weights)
}

// CategoryBonuses adds up the points earned on graded extra credit
// assignments, they are added to the category average as is.
func CategoryBonuses(assignments []model.Assignment) float64 {
	bonus := 0.0
	for _, a := range assignments {
		if a.ExtraCredit && !math.IsNaN(a.PtsEarned) {
			bonus += a.PtsEarned
		}
	}
	return bonus
}
