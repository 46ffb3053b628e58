package gradeservice

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"gradespeed-backend/internal/components/chrono"
	"gradespeed-backend/internal/components/telemetry"
	"gradespeed-backend/internal/model"
	"gradespeed-backend/internal/retriever"
	"gradespeed-backend/internal/store"
	"gradespeed-backend/internal/transport"
	"gradespeed-backend/internal/transport/transporttest"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2014, time.October, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	portal  *transporttest.Portal
	kv      *store.MemoryKV
	clock   chrono.FixedImpl
	rec     *telemetry.Recorder
	service *Service
}

func newService(t testing.TB, portal *transporttest.Portal, kv store.KV, clock chrono.FixedImpl, rec *telemetry.Recorder) *Service {
	t.Helper()
	s, err := NewService(context.Background(), Options{
		Store: store.NewStore(kv),
		NewTransport: func() (transport.Transport, error) {
			return portal, nil
		},
		Clock: clock,
		Tel:   rec,
	})
	require.NoError(t, err)
	return s
}

func newFixture(t testing.TB, students ...model.StudentChoice) fixture {
	t.Helper()
	portal := transporttest.NewPortal("jdoe", "hunter2")
	portal.Students = students
	kv := store.NewMemoryKV()
	clock := chrono.NewFixedImpl(testNow)
	rec := telemetry.NewRecorder()
	return fixture{
		portal:  portal,
		kv:      kv,
		clock:   clock,
		rec:     rec,
		service: newService(t, portal, kv, clock, rec),
	}
}

func (f fixture) login(t testing.TB) *Handle {
	t.Helper()
	attempt, err := f.service.AttemptLogin(context.Background(), "austin", "jdoe", "hunter2")
	require.NoError(t, err)
	require.NotNil(t, attempt.Handle)
	return attempt.Handle
}

var ignoreTimes = cmpopts.IgnoreFields(model.GradeChange{}, "Timestamp")

func TestAttemptLoginSingleStudent(t *testing.T) {
	f := newFixture(t)
	handle := f.login(t)

	accountID := model.AccountID(model.Credentials{District: "austin", Username: "jdoe", Password: "hunter2"})
	require.Equal(t, accountID, handle.AccountID())
	require.Equal(t, model.SingleStudentID(accountID), handle.StudentID())

	accounts := f.service.Accounts()
	require.Len(t, accounts, 1)
	require.Len(t, accounts[0].Students, 1)
	require.Equal(t, model.DefaultStudentPrefs(), accounts[0].Students[0].Preferences)

	active, found, err := f.service.ActiveIdentity(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Same(t, handle, active)
}

func TestReloginKeepsHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.login(t)

	attempt, err := f.service.AttemptLogin(ctx, "austin", "jdoe", "hunter2")
	require.NoError(t, err)
	require.Same(t, first, attempt.Handle)
	require.Same(t, attempt.retriever, first.retriever)

	identity, err := f.service.Identity(first.AccountID(), first.StudentID())
	require.NoError(t, err)
	require.Same(t, first, identity)

	_, err = first.LoadGradesYear(ctx)
	require.NoError(t, err)
}

func TestAttemptLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.AttemptLogin(context.Background(), "austin", "jdoe", "wrong")
	var validation *retriever.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Empty(t, f.service.Accounts())
}

func TestAttemptLoginUnknownDistrict(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.AttemptLogin(context.Background(), "springfield", "jdoe", "hunter2")
	require.Error(t, err)
	require.Empty(t, f.portal.Requests)
}

func TestAttemptLoginDisambiguation(t *testing.T) {
	jane := transporttest.Choice("Doe, Jane", "111")
	john := transporttest.Choice("Doe, John", "222")
	f := newFixture(t, jane, john)
	ctx := context.Background()

	attempt, err := f.service.AttemptLogin(ctx, "austin", "jdoe", "hunter2")
	require.NoError(t, err)
	require.Nil(t, attempt.Handle)
	require.Equal(t, []model.StudentChoice{jane, john}, attempt.Choices)
	require.Empty(t, f.service.Accounts())

	_, err = attempt.SelectStudent(ctx, "333")
	require.ErrorIs(t, err, retriever.ErrStudentNotFound)

	handle, err := attempt.SelectStudent(ctx, "222")
	require.NoError(t, err)
	require.Equal(t, "222", f.portal.Selected)

	student, err := handle.Student()
	require.NoError(t, err)
	require.Equal(t, "Doe, John", student.Name)
	require.Equal(t, "222", student.StudentID)
	require.Equal(t, model.SelectedStudentID(handle.AccountID(), "222"), student.ID)

	// a second login for the other student joins the same account
	attempt, err = f.service.AttemptLogin(ctx, "austin", "jdoe", "hunter2")
	require.NoError(t, err)
	_, err = attempt.SelectStudent(ctx, "111")
	require.NoError(t, err)

	accounts := f.service.Accounts()
	require.Len(t, accounts, 1)
	require.Len(t, accounts[0].Students, 2)
}

func TestLoadGradesYear(t *testing.T) {
	f := newFixture(t)
	handle := f.login(t)
	ctx := context.Background()

	update, err := handle.LoadGradesYear(ctx)
	require.NoError(t, err)
	require.Len(t, update.Grades.Courses, 2)
	require.Equal(t, testNow, update.Grades.LastUpdated)

	// every graded cycle is new the first time around
	expected := []model.GradeChange{
		{ID: transporttest.EnglishCycle1, Type: model.ChangeNew, NewGrade: "90"},
		{ID: transporttest.EnglishCycle2, Type: model.ChangeNew, NewGrade: "85"},
	}
	if diff := cmp.Diff(expected, update.Changes, ignoreTimes); diff != "" {
		t.Fatalf("unexpected changes (-want +got):\n%s", diff)
	}

	student, err := handle.Student()
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", student.Name)
	require.Equal(t, "LASA High School", student.School)

	f.clock.Advance(time.Hour)
	f.portal.Update(func(p *transporttest.Portal) {
		p.Year = strings.Replace(p.Year, ">85</a>", ">88</a>", 1)
	})

	update, err = handle.LoadGradesYear(ctx)
	require.NoError(t, err)
	expected = []model.GradeChange{
		{ID: transporttest.EnglishCycle2, Timestamp: testNow.Add(time.Hour), Type: model.ChangeUp, NewGrade: "88"},
	}
	require.Equal(t, expected, update.Changes)
	require.Len(t, update.Grades.ChangedGrades, 3)

	cycle, err := handle.GradesCycle(transporttest.EnglishCycle2)
	require.NoError(t, err)
	require.Equal(t, 88.0, cycle.Average)

	_, err = handle.GradesCycle("missing")
	require.ErrorIs(t, err, ErrUnknownCycle)
}

func TestLoadGradesCycle(t *testing.T) {
	f := newFixture(t)
	handle := f.login(t)
	ctx := context.Background()

	_, err := handle.LoadGradesYear(ctx)
	require.NoError(t, err)

	update, err := handle.LoadGradesCycle(ctx, transporttest.EnglishCycle1)
	require.NoError(t, err)
	require.Empty(t, update.Changes)
	require.Nil(t, update.Grades)
	require.Len(t, update.Cycle.Categories, 2)

	f.portal.Update(func(p *transporttest.Portal) {
		p.Cycles[transporttest.EnglishCycle1] = strings.Replace(
			transporttest.CyclePage,
			`<td class="AssignmentGrade">45</td>`,
			`<td class="AssignmentGrade">48</td>`,
			1,
		)
	})

	update, err = handle.LoadGradesCycle(ctx, transporttest.EnglishCycle1)
	require.NoError(t, err)
	require.Len(t, update.Changes, 1)
	require.Equal(t, model.ChangeUp, update.Changes[0].Type)
	require.Equal(t, "48/50", update.Changes[0].NewGrade)

	// a year reload keeps the loaded detail
	_, err = handle.LoadGradesYear(ctx)
	require.NoError(t, err)
	cycle, err := handle.GradesCycle(transporttest.EnglishCycle1)
	require.NoError(t, err)
	require.Len(t, cycle.Categories, 2)
	require.Len(t, cycle.ChangedGrades, 1)

	_, err = handle.LoadGradesCycle(ctx, transporttest.EnglishCycle2)
	var transportErr *transport.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestLoadAttendanceKeepsReadFlag(t *testing.T) {
	f := newFixture(t)
	handle := f.login(t)
	ctx := context.Background()

	events, err := handle.LoadAttendance(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)

	marked, err := handle.MarkRead(ctx, events[1].ID)
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	events, err = handle.LoadAttendance(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.False(t, events[0].Read)
	require.True(t, events[1].Read)
	require.False(t, events[2].Read)

	attendance, err := handle.Attendance()
	require.NoError(t, err)
	require.Equal(t, testNow, attendance.LastUpdated)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	handle := f.login(t)
	ctx := context.Background()

	_, err := handle.LoadGradesYear(ctx)
	require.NoError(t, err)

	unread, err := handle.Unread()
	require.NoError(t, err)
	require.Len(t, unread, 2)

	marked, err := handle.MarkRead(ctx, transporttest.EnglishCycle1, "unknown")
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	// marking twice is a no-op
	marked, err = handle.MarkRead(ctx, transporttest.EnglishCycle1)
	require.NoError(t, err)
	require.Zero(t, marked)

	unread, err = handle.Unread()
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.Equal(t, transporttest.EnglishCycle2, unread[0].ID)
}

func TestGPA(t *testing.T) {
	f := newFixture(t)
	handle := f.login(t)
	ctx := context.Background()

	_, err := handle.LoadGradesYear(ctx)
	require.NoError(t, err)

	gpa, err := handle.GPA()
	require.NoError(t, err)
	require.InDelta(t, 2.9, gpa.Unweighted, 1e-9)
	require.InDelta(t, 2.9, gpa.Weighted, 1e-9)

	err = handle.SetGPAData(ctx, model.GPAData{
		PrevGPA:          3,
		NumPrevSemesters: 1,
		WeightedCourses:  []string{"English II"},
	})
	require.NoError(t, err)

	gpa, err = handle.GPA()
	require.NoError(t, err)
	require.InDelta(t, 2.95, gpa.Unweighted, 1e-9)
	require.InDelta(t, 3.45, gpa.Weighted, 1e-9)

	err = handle.SetGPAData(ctx, model.GPAData{ElectiveCourses: []string{"english ii"}})
	require.NoError(t, err)
	gpa, err = handle.GPA()
	require.NoError(t, err)
	require.True(t, math.IsNaN(gpa.Unweighted))
}

func TestAppPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.CheckAppPassword(ctx, "anything"))

	require.NoError(t, f.service.SetAppPassword(ctx, "s3cret"))
	require.ErrorIs(t, f.service.CheckAppPassword(ctx, "wrong"), ErrWrongPassword)
	require.NoError(t, f.service.CheckAppPassword(ctx, "s3cret"))

	prefs, err := f.service.Preferences(ctx)
	require.NoError(t, err)
	require.True(t, prefs.PasswordOn)
	require.NotEqual(t, "s3cret", prefs.PasswordHash)

	require.NoError(t, f.service.SetAppPassword(ctx, ""))
	require.NoError(t, f.service.CheckAppPassword(ctx, "wrong"))
}

func TestIdentityAfterRestart(t *testing.T) {
	f := newFixture(t)
	handle := f.login(t)
	ctx := context.Background()

	_, err := handle.LoadGradesYear(ctx)
	require.NoError(t, err)
	require.NoError(t, handle.SetStudentPrefs(ctx, model.StudentPrefs{NotifLevel: model.NotifyCycleDrop}))

	restarted := newService(t, f.portal, f.kv, f.clock, f.rec)
	active, found, err := restarted.ActiveIdentity(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, handle.StudentID(), active.StudentID())

	student, err := active.Student()
	require.NoError(t, err)
	require.Equal(t, model.NotifyCycleDrop, student.Preferences.NotifLevel)
	require.Len(t, student.Grades.Courses, 2)
	require.Len(t, student.Grades.ChangedGrades, 2)

	// the restored handle logs in on its own
	logins := len(f.portal.Requests)
	_, err = active.LoadGradesYear(ctx)
	require.NoError(t, err)
	require.Greater(t, len(f.portal.Requests), logins+1)
}

func TestRemoveAccount(t *testing.T) {
	f := newFixture(t)
	handle := f.login(t)
	ctx := context.Background()

	require.NoError(t, f.service.RemoveAccount(ctx, handle.AccountID()))
	require.Empty(t, f.service.Accounts())

	_, err := handle.Student()
	require.ErrorIs(t, err, ErrUnknownAccount)

	_, found, err := f.service.ActiveIdentity(ctx)
	require.NoError(t, err)
	require.False(t, found)

	err = f.service.RemoveAccount(ctx, handle.AccountID())
	require.ErrorIs(t, err, ErrUnknownAccount)
}
