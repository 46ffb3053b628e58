package commands

import (
	"fmt"

	"gradespeed-backend/internal/gradeservice"
	"gradespeed-backend/internal/model"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var gradesCached *bool

func init() {
	gradesCached = gradesCmd.Flags().Bool("cached", false, "Print the stored grades without fetching.")
	rootCmd.AddCommand(gradesCmd)
}

var gradesCmd = &cobra.Command{
	Use:   "grades [--cached]",
	Short: "Fetches the year's grades of the active student and prints what changed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, err := activeHandle(cmd.Context())
		if err != nil {
			return err
		}

		var grades model.Grades
		var changes []model.GradeChange
		if *gradesCached {
			grades, err = handle.GradesYear()
		} else {
			var update gradeservice.YearUpdate
			update, err = handle.LoadGradesYear(cmd.Context())
			grades, changes = update.Grades, update.Changes
		}
		if err != nil {
			return err
		}

		printGrades(grades)
		printChanges(grades, changes)
		return nil
	},
}

func printGrades(grades model.Grades) {
	header := table.Row{"Period", "Course", "Teacher"}
	if len(grades.Courses) > 0 {
		for si, semester := range grades.Courses[0].Semesters {
			for ci := range semester.Cycles {
				header = append(header, fmt.Sprintf("C%d", si*len(semester.Cycles)+ci+1))
			}
			if grades.HasExams {
				header = append(header, fmt.Sprintf("Exam %d", si+1))
			}
			if grades.HasSemesterAverages {
				header = append(header, fmt.Sprintf("Sem %d", si+1))
			}
		}
	}

	t := newTable()
	t.SetTitle(fmt.Sprintf("updated %s", formatTime(grades.LastUpdated)))
	t.AppendHeader(header)
	for _, course := range grades.Courses {
		row := table.Row{course.Period, course.Title, course.TeacherName}
		for _, semester := range course.Semesters {
			for _, cycle := range semester.Cycles {
				row = append(row, formatGrade(cycle.Average))
			}
			if grades.HasExams {
				exam := formatGrade(semester.ExamGrade)
				if semester.ExamIsExempt {
					exam = "Exc"
				}
				row = append(row, exam)
			}
			if grades.HasSemesterAverages {
				row = append(row, formatGrade(semester.Average))
			}
		}
		t.AppendRow(row)
	}
	t.Render()
}

// changeLabels maps the ids of grade changes to the course and cycle they
// belong to.
func changeLabels(grades model.Grades) map[string]string {
	labels := map[string]string{}
	for _, course := range grades.Courses {
		for i, cycle := range course.AllCycles() {
			if cycle.URLHash == "" {
				continue
			}
			labels[cycle.URLHash] = fmt.Sprintf("%s, cycle %d", course.Title, i+1)
			for _, category := range cycle.Categories {
				for _, assignment := range category.Assignments {
					labels[assignment.ID] = fmt.Sprintf("%s, %s", course.Title, assignment.Title)
				}
			}
		}
	}
	return labels
}

func printChanges(grades model.Grades, changes []model.GradeChange) {
	if len(changes) == 0 {
		return
	}
	labels := changeLabels(grades)

	t := newTable()
	t.SetTitle("changes")
	t.AppendHeader(table.Row{"", "What", "Grade", "When", "ID"})
	for _, change := range changes {
		t.AppendRow(table.Row{change.Type, labels[change.ID], change.NewGrade, formatTime(change.Timestamp), change.ID})
	}
	t.Render()
}
