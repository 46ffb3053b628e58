package calc

import (
	"math"
	"strings"

	"gradespeed-backend/internal/model"
	"gradespeed-backend/internal/qmath"
)

// GradePoint maps a semester average onto the 4 point scale plus offset.
func GradePoint(average, offset float64) float64 {
	if math.IsNaN(average) {
		return math.NaN()
	}
	if average < 70 {
		return 0
	}
	return math.Min((average-60)/10, 4) + offset
}

func gpa(courses []model.Course, offset func(model.Course) float64) float64 {
	var points []float64
	for _, course := range courses {
		o := offset(course)
		for _, semester := range course.Semesters {
			points = append(points, GradePoint(semester.Average, o))
		}
	}
	return qmath.Average(points)
}

// UnweightedGPA averages the grade points of every semester of every course.
func UnweightedGPA(courses []model.Course) float64 {
	return gpa(courses, func(model.Course) float64 { return 0 })
}

// InList reports whether a course is listed by id or by title.
func InList(course model.Course, list []string) bool {
	for _, entry := range list {
		if course.ID != "" && entry == course.ID {
			return true
		}
		if strings.EqualFold(strings.TrimSpace(entry), course.Title) {
			return true
		}
	}
	return false
}

// IsHonors reports whether a course is listed in honors by id or by title.
func IsHonors(course model.Course, honors []string) bool {
	return InList(course, honors)
}

// WeightedGPA is UnweightedGPA where honors courses earn honorsOffset extra
// points per semester.
func WeightedGPA(courses []model.Course, honors []string, honorsOffset float64) float64 {
	return gpa(courses, func(c model.Course) float64 {
		if IsHonors(c, honors) {
			return honorsOffset
		}
		return 0
	})
}

// GradedSemesters counts the semesters that have an average.
func GradedSemesters(courses []model.Course) int {
	n := 0
	for _, course := range courses {
		for _, semester := range course.Semesters {
			if !math.IsNaN(semester.Average) {
				n++
			}
		}
	}
	return n
}

// CumulativeGPA folds the gpa of earlier semesters into the current one,
// weighting both by how many semesters they cover.
func CumulativeGPA(prevGPA, prevSemesters, currentGPA float64, currentSemesters int) float64 {
	if math.IsNaN(prevGPA) || prevSemesters <= 0 {
		return currentGPA
	}
	if math.IsNaN(currentGPA) || currentSemesters == 0 {
		return prevGPA
	}
	return qmath.WeightedAverage(
		[]float64{prevGPA, currentGPA},
		[]float64{prevSemesters, float64(currentSemesters)},
	)
}
