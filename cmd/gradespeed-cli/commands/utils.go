package commands

import (
	"math"
	"os"
	"strconv"
	"time"

	"gradespeed-backend/internal/qmath"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func formatGrade(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatGPA rounds to the precision set in the app preferences.
func formatGPA(v float64, precision int) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(qmath.Round(v, precision), 'f', precision, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.DateTime)
}
