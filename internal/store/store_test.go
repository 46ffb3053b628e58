package store

import (
	"context"
	"math"
	"testing"
	"time"

	"gradespeed-backend/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	db, err := OpenSqlite(":memory:")
	require.NoError(t, err)
	sqlite, err := NewSqlKV(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlite.Close()
	})

	return map[string]KV{
		"memory": NewMemoryKV(),
		"sqlite": sqlite,
	}
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Set(ctx, "a", []byte("1")))
			require.NoError(t, kv.Set(ctx, "a", []byte("2")))
			value, err := kv.Get(ctx, "a")
			require.NoError(t, err)
			require.Equal(t, []byte("2"), value)

			require.NoError(t, kv.Remove(ctx, "a"))
			_, err = kv.Get(ctx, "a")
			require.ErrorIs(t, err, ErrNotFound)

			// removing twice is not an error
			require.NoError(t, kv.Remove(ctx, "a"))
		})
	}
}

func sampleStudent(id string) model.Student {
	return model.Student{
		ID:          id,
		Name:        "Jane Doe",
		School:      "LASA High School",
		StudentID:   "111",
		Preferences: model.DefaultStudentPrefs(),
		Grades: model.Grades{
			LastUpdated: time.Date(2014, time.October, 15, 12, 0, 0, 0, time.UTC),
			Courses: []model.Course{{
				ID:    "course",
				Title: "English II",
				Semesters: []model.Semester{{
					Average:   math.NaN(),
					ExamGrade: math.NaN(),
					Cycles: []model.Cycle{
						{URLHash: "abc", Average: 90},
						{Average: math.NaN()},
					},
				}},
			}},
		},
		Attendance: model.Attendance{
			Events: []model.AttendanceEvent{{ID: "e", Block: 2, Explanation: "Tardy", Read: true}},
		},
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := NewStore(kv)

			version, err := s.Init(ctx)
			require.NoError(t, err)
			require.Equal(t, 0, version)
			version, err = s.Init(ctx)
			require.NoError(t, err)
			require.Equal(t, SchemaVersion, version)

			prefs, err := s.Preferences(ctx)
			require.NoError(t, err)
			require.Equal(t, model.DefaultPreferences(), prefs)

			accounts, err := s.Accounts(ctx)
			require.NoError(t, err)
			require.Empty(t, accounts)

			_, found, err := s.ActiveStudent(ctx)
			require.NoError(t, err)
			require.False(t, found)

			creds := model.Credentials{District: "austin", Username: "jdoe", Password: "pw"}
			account := model.Account{
				ID:          model.AccountID(creds),
				Credentials: creds,
				Students:    []model.Student{sampleStudent("s1")},
			}
			require.NoError(t, s.AddAccount(ctx, account))
			require.ErrorIs(t, s.AddAccount(ctx, account), ErrAccountExists)

			stored, err := s.Account(ctx, account.ID)
			require.NoError(t, err)
			if diff := cmp.Diff(account, stored, cmpopts.EquateNaNs(), cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("account did not round trip (-want +got):\n%s", diff)
			}

			second := sampleStudent("s2")
			second.Name = "John Doe"
			require.NoError(t, s.AddStudent(ctx, account.ID, second))
			require.ErrorIs(t, s.AddStudent(ctx, account.ID, second), ErrStudentExists)

			second.Grades.Courses[0].Title = "English III"
			require.NoError(t, s.UpdateStudent(ctx, second))
			require.ErrorIs(t, s.UpdateStudent(ctx, sampleStudent("nobody")), ErrNotFound)

			accounts, err = s.Accounts(ctx)
			require.NoError(t, err)
			require.Len(t, accounts, 1)
			require.Len(t, accounts[0].Students, 2)
			require.Equal(t, "English III", accounts[0].Students[1].Grades.Courses[0].Title)

			require.NoError(t, s.SetActiveStudent(ctx, "s2"))
			active, found, err := s.ActiveStudent(ctx)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, "John Doe", active.Name)

			prefs.GPAPrecision = 2
			require.NoError(t, s.SetPreferences(ctx, prefs))
			prefs, err = s.Preferences(ctx)
			require.NoError(t, err)
			require.Equal(t, 2, prefs.GPAPrecision)

			require.NoError(t, s.RemoveAccount(ctx, account.ID))
			_, err = s.Account(ctx, account.ID)
			require.ErrorIs(t, err, ErrNotFound)
			_, err = s.Student(ctx, "s2")
			require.ErrorIs(t, err, ErrNotFound)
			_, found, err = s.ActiveStudent(ctx)
			require.NoError(t, err)
			require.False(t, found)

			accounts, err = s.Accounts(ctx)
			require.NoError(t, err)
			require.Empty(t, accounts)
		})
	}
}

func TestConfigOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Config{}.Open(ctx)
	require.NoError(t, err)
	require.IsType(t, &MemoryKV{}, kv)

	kv, err = Config{File: t.TempDir() + "/gradespeed.db"}.Open(ctx)
	require.NoError(t, err)
	defer kv.Close()
	require.IsType(t, SqlKV{}, kv)

	require.NoError(t, kv.Set(ctx, "k", []byte("v")))
	value, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)
}
