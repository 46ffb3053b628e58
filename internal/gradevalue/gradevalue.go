package gradevalue

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type letter struct {
	name  string
	value float64
}

// ordered from highest to lowest
var letters = []letter{
	{"A+", 98},
	{"A", 95},
	{"A-", 92},
	{"B+", 88},
	{"B", 85},
	{"B-", 82},
	{"C+", 78},
	{"C", 75},
	{"C-", 72},
	{"D+", 68},
	{"D", 65},
	{"D-", 62},
	{"F", 0},
}

// LetterToNumber returns the numeric value of a letter grade, ok is false
// when grade is not a letter grade.
func LetterToNumber(grade string) (value float64, ok bool) {
	for _, l := range letters {
		if l.name == grade {
			return l.value, true
		}
	}
	return 0, false
}

// IsLetter reports whether grade is one of the known letter grades.
func IsLetter(grade string) bool {
	_, ok := LetterToNumber(grade)
	return ok
}

// NumberToLetter returns the letter grade closest to grade, preferring the
// higher letter on ties.
func NumberToLetter(grade float64) string {
	if math.IsNaN(grade) {
		return ""
	}
	best := letters[len(letters)-1].name
	bestDiff := math.Inf(1)
	for _, l := range letters {
		diff := math.Abs(l.value - grade)
		if diff < bestDiff {
			best = l.name
			bestDiff = diff
		}
	}
	return best
}

var (
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// ParseInt reads a letter grade or the leading integer of grade, "95%"
// reads as 95. It returns NaN when nothing can be read.
func ParseInt(grade string) float64 {
	grade = strings.TrimSpace(grade)
	if v, ok := LetterToNumber(grade); ok {
		return v
	}
	match := intPrefix.FindString(grade)
	if match == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ParseFloat is ParseInt but it also reads a fractional part.
func ParseFloat(grade string) float64 {
	grade = strings.TrimSpace(grade)
	if v, ok := LetterToNumber(grade); ok {
		return v
	}
	match := floatPrefix.FindString(grade)
	if match == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
