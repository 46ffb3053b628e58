package commands

import (
	"fmt"
	"strconv"
	"strings"

	"gradespeed-backend/internal/model"

	"github.com/antzucaro/matchr"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cycleCmd)
}

var cycleCmd = &cobra.Command{
	Use:   "cycle <course> <cycle number>",
	Short: "Fetches the assignments of one grading cycle of a course.",
	Long:  "Fetches the assignments of one grading cycle of a course. The course is matched loosely against course titles, cycles are numbered from 1 across the whole year.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid cycle number '%s'", args[1])
		}

		handle, err := activeHandle(cmd.Context())
		if err != nil {
			return err
		}
		grades, err := handle.GradesYear()
		if err != nil {
			return err
		}
		if len(grades.Courses) == 0 {
			update, err := handle.LoadGradesYear(cmd.Context())
			if err != nil {
				return err
			}
			grades = update.Grades
		}

		course, ok := closestCourse(grades.Courses, args[0])
		if !ok {
			return fmt.Errorf("no course like '%s'", args[0])
		}
		cycles := course.AllCycles()
		if number < 1 || number > len(cycles) {
			return fmt.Errorf("%s has cycles 1 to %d", course.Title, len(cycles))
		}
		cycle := cycles[number-1]
		if cycle.URLHash == "" {
			return fmt.Errorf("cycle %d of %s has no grades yet", number, course.Title)
		}

		update, err := handle.LoadGradesCycle(cmd.Context(), cycle.URLHash)
		if err != nil {
			return err
		}
		printCycle(course.Title, update.Cycle)
		if update.Grades != nil {
			printChanges(*update.Grades, update.YearChanges)
		}
		grades, err = handle.GradesYear()
		if err != nil {
			return err
		}
		printChanges(grades, update.Changes)
		return nil
	},
}

func closestCourse(courses []model.Course, name string) (model.Course, bool) {
	var best model.Course
	bestSimilarity := 0.0
	for _, course := range courses {
		similarity := matchr.JaroWinkler(strings.ToLower(name), strings.ToLower(course.Title), false)
		if similarity > bestSimilarity {
			best = course
			bestSimilarity = similarity
		}
	}
	return best, bestSimilarity >= nameThreshold
}

func printCycle(courseTitle string, cycle model.Cycle) {
	for _, category := range cycle.Categories {
		t := newTable()
		t.SetTitle(fmt.Sprintf("%s: %s (%s%%)", courseTitle, category.Title, formatGrade(category.Weight)))
		t.AppendHeader(table.Row{"Assignment", "Due", "Earned", "Possible", "Weight", "Note"})
		for _, assignment := range category.Assignments {
			title := assignment.Title
			if assignment.ExtraCredit {
				title += " (extra credit)"
			}
			due := ""
			if !assignment.DateDue.IsZero() {
				due = assignment.DateDue.Format("Jan 02")
			}
			t.AppendRow(table.Row{
				title,
				due,
				formatGrade(assignment.PtsEarned),
				formatGrade(assignment.PtsPossible),
				formatGrade(assignment.Weight),
				assignment.Note,
			})
		}
		t.AppendFooter(table.Row{"Average", "", formatGrade(category.Average), "", "", ""})
		t.Render()
	}
	fmt.Printf("cycle average: %s\n", formatGrade(cycle.Average))
}
