package commands

import (
	"testing"

	"gradespeed-backend/internal/model"

	"github.com/stretchr/testify/require"
)

func TestClosestChoice(t *testing.T) {
	choices := []model.StudentChoice{
		{StudentID: "111", Name: "Doe, Jane"},
		{StudentID: "222", Name: "Doe, John"},
	}

	choice, _, ok := closestChoice(choices, "doe, john")
	require.True(t, ok)
	require.Equal(t, "222", choice.StudentID)

	_, _, ok = closestChoice(choices, "Zimmerman")
	require.False(t, ok)

	_, _, ok = closestChoice(nil, "Doe, Jane")
	require.False(t, ok)
}

func TestClosestCourse(t *testing.T) {
	courses := []model.Course{
		{Title: "English II"},
		{Title: "Art I"},
	}

	course, ok := closestCourse(courses, "english")
	require.True(t, ok)
	require.Equal(t, "English II", course.Title)

	_, ok = closestCourse(courses, "chemistry")
	require.False(t, ok)
}
