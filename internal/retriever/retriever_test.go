package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"gradespeed-backend/internal/components/chrono"
	"gradespeed-backend/internal/components/telemetry"
	"gradespeed-backend/internal/district"
	"gradespeed-backend/internal/model"
	"gradespeed-backend/internal/transport"
	"gradespeed-backend/internal/transport/transporttest"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2014, time.October, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	portal    *transporttest.Portal
	clock     chrono.FixedImpl
	rec       *telemetry.Recorder
	retriever *Retriever
}

func newFixture(t testing.TB, studentID string, students ...model.StudentChoice) fixture {
	t.Helper()
	portal := transporttest.NewPortal("jdoe", "hunter2")
	portal.Students = students

	clock := chrono.NewFixedImpl(testNow)
	rec := telemetry.NewRecorder()
	r := NewRetriever(
		district.Austin,
		model.Credentials{District: "austin", Username: "jdoe", Password: "hunter2"},
		studentID,
		portal,
		clock,
		rec,
	)
	return fixture{portal: portal, clock: clock, rec: rec, retriever: r}
}

func TestLoginSingleStudent(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	require.Equal(t, StateAnonymous, f.retriever.State())
	require.False(t, f.retriever.IsLoggedIn())

	result, err := f.retriever.Login(ctx)
	require.NoError(t, err)
	require.Equal(t, NoDisambiguationNeeded{}, result)
	require.Equal(t, StateAuthenticated, f.retriever.State())
	require.True(t, f.retriever.IsLoggedIn())

	// the hidden form state of the login page is posted back
	require.Len(t, f.portal.Requests, 2)
	require.Equal(t, "login-state", f.portal.Requests[1].Query.Get("__VIEWSTATE"))
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t, "")
	f.retriever.SetCredentials(model.Credentials{District: "austin", Username: "jdoe", Password: "wrong"})

	_, err := f.retriever.Login(context.Background())
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "post-login", validation.Page)
	require.Equal(t, StateCredentialsSubmitted, f.retriever.State())
	require.False(t, f.retriever.IsLoggedIn())
}

func TestLoginTransportError(t *testing.T) {
	f := newFixture(t, "")
	f.portal.Fail = errors.New("connection reset")

	_, err := f.retriever.Login(context.Background())
	var transportErr *transport.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, StateAnonymous, f.retriever.State())
}

func TestLoginCancelled(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.retriever.Login(ctx)
	var transportErr *transport.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoginDisambiguation(t *testing.T) {
	jane := transporttest.Choice("Doe, Jane", "111")
	john := transporttest.Choice("Doe, John", "222")
	f := newFixture(t, "", jane, john)
	ctx := context.Background()

	result, err := f.retriever.Login(ctx)
	require.NoError(t, err)
	require.Equal(t, Choices{Students: []model.StudentChoice{jane, john}}, result)
	require.Equal(t, StateDisambiguationRequired, f.retriever.State())
	require.False(t, f.retriever.IsLoggedIn())

	_, err = f.retriever.GetYear(ctx)
	require.ErrorIs(t, err, ErrNoStudent)

	err = f.retriever.SelectStudent(ctx, "222")
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, f.retriever.State())
	require.Equal(t, "222", f.portal.Selected)

	last := f.portal.Requests[len(f.portal.Requests)-1]
	require.Equal(t, "home-validation", last.Query.Get("__EVENTVALIDATION"))
}

func TestLoginPreselectedStudent(t *testing.T) {
	f := newFixture(t, "111", transporttest.Choice("Doe, Jane", "111"))

	result, err := f.retriever.Login(context.Background())
	require.NoError(t, err)
	require.Equal(t, NoDisambiguationNeeded{}, result)
	require.Equal(t, "111", f.portal.Selected)
	require.Equal(t, StateAuthenticated, f.retriever.State())
}

func TestLoginUnknownStudent(t *testing.T) {
	f := newFixture(t, "999", transporttest.Choice("Doe, Jane", "111"))

	_, err := f.retriever.Login(context.Background())
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestGetYear(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	year, err := f.retriever.GetYear(ctx)
	require.NoError(t, err)
	require.Equal(t, model.StudentInfo{Name: "Jane Doe", School: "LASA High School"}, year.Student)
	require.Len(t, year.Grades.Courses, 2)
	require.Equal(t, "English II", year.Grades.Courses[0].Title)
	require.True(t, f.retriever.IsYearLoaded())

	api := district.Austin.API
	require.Equal(t, 1, f.portal.Count(api.Login.Load))

	// inside the session window no new login happens
	f.clock.Advance(4 * time.Minute)
	_, err = f.retriever.GetYear(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, f.portal.Count(api.Login.Load))

	f.clock.Advance(SessionWindow + time.Second)
	require.False(t, f.retriever.IsLoggedIn())
	_, err = f.retriever.GetYear(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.portal.Count(api.Login.Load))
}

func TestGetYearInvalidPage(t *testing.T) {
	f := newFixture(t, "")
	f.portal.Year = `<html><body><p>Your session has expired</p></body></html>`

	_, err := f.retriever.GetYear(context.Background())
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "year", validation.Page)
}

func TestGetCycle(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	result, err := f.retriever.GetCycle(ctx, transporttest.EnglishCycle1)
	require.NoError(t, err)
	require.Equal(t, transporttest.EnglishCycle1, result.Cycle.URLHash)
	require.Len(t, result.Cycle.Categories, 2)
	require.Nil(t, result.Grades)

	last := f.portal.Requests[len(f.portal.Requests)-1]
	require.Equal(t, transporttest.EnglishCycle1, last.Query.Get("data"))

	// austin serves cycles without loading the year page first
	require.Len(t, f.portal.Requests, 3)

	_, err = f.retriever.GetCycle(ctx, "missing")
	var transportErr *transport.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, 404, transportErr.Status)
}

func TestGetAttendance(t *testing.T) {
	f := newFixture(t, "")

	events, err := f.retriever.GetAttendance(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		require.LessOrEqual(t, model.CompareAttendanceEvents(events[i-1], events[i]), 0)
	}
	require.Equal(t, "Tardy", events[1].Explanation)
}

func TestSetCredentialsResetsSession(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.retriever.Login(context.Background())
	require.NoError(t, err)

	f.retriever.SetCredentials(model.Credentials{District: "austin", Username: "jdoe", Password: "hunter2"})
	require.Equal(t, StateAnonymous, f.retriever.State())
	require.False(t, f.retriever.IsLoggedIn())
	require.False(t, f.retriever.IsYearLoaded())
}
