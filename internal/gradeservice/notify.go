package gradeservice

import (
	"context"

	"gradespeed-backend/internal/model"
)

// Notable filters year changes down to what the student asked to be told
// about. Assignment level changes come from RefreshDetails.
func Notable(level model.NotificationLevel, changes []model.GradeChange) []model.GradeChange {
	var out []model.GradeChange
	for _, change := range changes {
		switch level {
		case model.NotifyNone:
			continue
		case model.NotifyCycleDrop:
			if change.Type != model.ChangeDown {
				continue
			}
		}
		out = append(out, change)
	}
	return out
}

// RefreshDetails reloads the detail of every cycle that changed and was
// already loaded before, returning the assignment changes found.
func (h *Handle) RefreshDetails(ctx context.Context, yearChanges []model.GradeChange) ([]model.GradeChange, error) {
	grades, err := h.GradesYear()
	if err != nil {
		return nil, err
	}

	var out []model.GradeChange
	for _, change := range yearChanges {
		cycle := grades.FindCycle(change.ID)
		if cycle == nil || cycle.Categories == nil {
			continue
		}
		update, err := h.LoadGradesCycle(ctx, change.ID)
		if err != nil {
			return out, err
		}
		out = append(out, update.Changes...)
	}
	return out, nil
}
