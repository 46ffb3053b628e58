package commands

import (
	"fmt"

	"gradespeed-backend/internal/model"

	"github.com/spf13/cobra"
)

var (
	gpaPrev      *float64
	gpaSemesters *float64
	gpaHonors    *[]string
	gpaElectives *[]string
)

func init() {
	gpaPrev = gpaCmd.Flags().Float64("prev", 0, "The cumulative gpa of earlier years.")
	gpaSemesters = gpaCmd.Flags().Float64("prev-semesters", 0, "How many semesters --prev covers.")
	gpaHonors = gpaCmd.Flags().StringSlice("honors", nil, "Titles or ids of courses that are weighted.")
	gpaElectives = gpaCmd.Flags().StringSlice("electives", nil, "Titles or ids of courses left out of the gpa.")
	rootCmd.AddCommand(gpaCmd)
}

var gpaCmd = &cobra.Command{
	Use:   "gpa [--prev <gpa> --prev-semesters <n>] [--honors <course>,...] [--electives <course>,...]",
	Short: "Prints the gpa of the active student from the stored grades, flags update the stored gpa data.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		handle, err := activeHandle(ctx)
		if err != nil {
			return err
		}
		student, err := handle.Student()
		if err != nil {
			return err
		}

		data := student.GPAData
		changed := false
		flags := cmd.Flags()
		if flags.Changed("prev") {
			data.PrevGPA = *gpaPrev
			changed = true
		}
		if flags.Changed("prev-semesters") {
			data.NumPrevSemesters = *gpaSemesters
			changed = true
		}
		if flags.Changed("honors") {
			data.WeightedCourses = *gpaHonors
			changed = true
		}
		if flags.Changed("electives") {
			data.ElectiveCourses = *gpaElectives
			changed = true
		}
		if changed {
			err = handle.SetGPAData(ctx, data)
			if err != nil {
				return err
			}
		}

		prefs, err := app.service.Preferences(ctx)
		if err != nil {
			return err
		}
		gpa, err := handle.GPA()
		if err != nil {
			return err
		}
		printGPA(student.Preferences, prefs.GPAPrecision, gpa.Weighted, gpa.Unweighted)
		return nil
	},
}

func printGPA(prefs model.StudentPrefs, precision int, weighted, unweighted float64) {
	if prefs.GPAWeightedOn {
		fmt.Printf("weighted:   %s\n", formatGPA(weighted, precision))
	}
	if prefs.GPAUnweightedOn {
		fmt.Printf("unweighted: %s\n", formatGPA(unweighted, precision))
	}
}
