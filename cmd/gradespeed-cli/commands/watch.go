package commands

import (
	"context"
	"fmt"
	"log/slog"

	"gradespeed-backend/internal/components/chrono"
	"gradespeed-backend/internal/gradeservice"
	"gradespeed-backend/internal/model"

	"github.com/spf13/cobra"
)

var watchSchedule *string

func init() {
	watchSchedule = watchCmd.Flags().String("schedule", "", "A cron spec to poll on, defaults to the update interval in the app preferences.")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--schedule <cron spec>]",
	Short: "Polls the active student's grades and logs whatever changed until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		handle, err := activeHandle(ctx)
		if err != nil {
			return err
		}
		prefs, err := app.service.Preferences(ctx)
		if err != nil {
			return err
		}

		spec := *watchSchedule
		if spec == "" {
			if !prefs.UpdateOn {
				return fmt.Errorf("automatic updates are turned off in the preferences, pass --schedule to poll anyway")
			}
			spec = fmt.Sprintf("@every %s", prefs.UpdateInterval)
		}

		poll := func() {
			pollGrades(ctx, handle, prefs)
		}
		cron := chrono.NewStandardCron(app.clock, app.tel)
		err = cron.Cron(spec, poll)
		if err != nil {
			<-cron.Stop().Done()
			return fmt.Errorf("invalid schedule '%s': %w", spec, err)
		}

		slog.Info("watching grades", "schedule", spec)
		poll()
		<-ctx.Done()
		<-cron.Stop().Done()
		return nil
	},
}

func pollGrades(ctx context.Context, handle *gradeservice.Handle, prefs model.Preferences) {
	update, err := handle.LoadGradesYear(ctx)
	if err != nil {
		slog.Warn("failed to load grades", "err", err)
		return
	}
	student, err := handle.Student()
	if err != nil {
		slog.Warn("failed to read student", "err", err)
		return
	}

	level := student.Preferences.NotifLevel
	changes := gradeservice.Notable(level, update.Changes)
	if level == model.NotifyAssignment {
		details, err := handle.RefreshDetails(ctx, update.Changes)
		if err != nil {
			slog.Warn("failed to refresh cycle details", "err", err)
		}
		changes = append(changes, details...)
	}
	if len(changes) == 0 {
		slog.Debug("no grade changes")
		return
	}

	if prefs.NotifsConsolidate {
		slog.Info("grades changed", "student", displayName(student), "count", len(changes))
		return
	}
	labels := changeLabels(student.Grades)
	for _, change := range changes {
		slog.Info(
			"grade changed",
			"student", displayName(student),
			"what", labels[change.ID],
			"type", change.Type.String(),
			"grade", change.NewGrade,
		)
	}
}
