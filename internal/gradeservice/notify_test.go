package gradeservice

import (
	"context"
	"strings"
	"testing"

	"gradespeed-backend/internal/model"
	"gradespeed-backend/internal/transport/transporttest"

	"github.com/stretchr/testify/require"
)

func TestNotable(t *testing.T) {
	changes := []model.GradeChange{
		{ID: "a", Type: model.ChangeNew},
		{ID: "b", Type: model.ChangeUp},
		{ID: "c", Type: model.ChangeDown},
	}

	require.Empty(t, Notable(model.NotifyNone, changes))
	require.Equal(t, changes[2:], Notable(model.NotifyCycleDrop, changes))
	require.Equal(t, changes, Notable(model.NotifyCycleChange, changes))
	require.Equal(t, changes, Notable(model.NotifyAssignment, changes))
	require.Empty(t, Notable(model.NotifyAssignment, nil))
}

func TestRefreshDetails(t *testing.T) {
	f := newFixture(t)
	handle := f.login(t)
	ctx := context.Background()

	update, err := handle.LoadGradesYear(ctx)
	require.NoError(t, err)

	// nothing has detail loaded yet
	changes, err := handle.RefreshDetails(ctx, update.Changes)
	require.NoError(t, err)
	require.Empty(t, changes)

	_, err = handle.LoadGradesCycle(ctx, transporttest.EnglishCycle1)
	require.NoError(t, err)

	f.portal.Update(func(p *transporttest.Portal) {
		p.Year = strings.Replace(p.Year, ">90</a>", ">91</a>", 1)
		p.Cycles[transporttest.EnglishCycle1] = strings.Replace(
			transporttest.CyclePage,
			`<td class="AssignmentGrade">45</td>`,
			`<td class="AssignmentGrade">50</td>`,
			1,
		)
	})

	update, err = handle.LoadGradesYear(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, update.Changes)

	changes, err = handle.RefreshDetails(ctx, update.Changes)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, "50/50", changes[0].NewGrade)
}
