// Package retriever drives a single GradeSpeed session: logging in, picking
// a student and fetching the grade and attendance pages.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"gradespeed-backend/internal/components/assert"
	"gradespeed-backend/internal/components/chrono"
	"gradespeed-backend/internal/components/telemetry"
	"gradespeed-backend/internal/district"
	"gradespeed-backend/internal/dom"
	"gradespeed-backend/internal/model"
	"gradespeed-backend/internal/parser"
	"gradespeed-backend/internal/transport"
)

const (
	report_retriever_login          = "retriever.login"
	report_retriever_select_student = "retriever.select-student"
	report_retriever_get_year       = "retriever.get-year"
	report_retriever_get_cycle      = "retriever.get-cycle"
	report_retriever_get_attendance = "retriever.get-attendance"
)

// SessionWindow is how long the portal keeps a session alive after the last
// authenticated response.
const SessionWindow = 5 * time.Minute

type State int

const (
	StateAnonymous State = iota
	StateLoginPageLoaded
	StateCredentialsSubmitted
	StateDisambiguationRequired
	StateStudentSelected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateLoginPageLoaded:
		return "login-page-loaded"
	case StateCredentialsSubmitted:
		return "credentials-submitted"
	case StateDisambiguationRequired:
		return "disambiguation-required"
	case StateStudentSelected:
		return "student-selected"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

var (
	// ErrNoStudent is returned when grades are requested from an account with
	// several students before one was selected.
	ErrNoStudent = errors.New("no student selected")
	// ErrStudentNotFound is returned when the selected student id is not one
	// of the account's choices.
	ErrStudentNotFound = errors.New("student not under account")
)

// ValidationError means a page did not look like the page that was expected.
// The portal gives no other signal, so this covers wrong credentials,
// expired sessions and markup changes alike.
type ValidationError struct {
	Page string
	URL  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: unexpected %s page at %s", e.Page, e.URL)
}

// LoginResult is either NoDisambiguationNeeded or Choices.
type LoginResult interface {
	loginResult()
}

// NoDisambiguationNeeded means the session is authenticated and bound to a
// student.
type NoDisambiguationNeeded struct{}

// Choices means the account has several students and one of them must be
// picked with Retriever.SelectStudent.
type Choices struct {
	Students []model.StudentChoice
}

func (NoDisambiguationNeeded) loginResult() {}
func (Choices) loginResult()                {}

type YearResult struct {
	Grades  model.Grades
	Student model.StudentInfo
}

type CycleResult struct {
	Cycle model.Cycle
	// Grades is nil when the cycle page does not carry the year table.
	Grades *model.Grades
}

// Retriever is one browser session against a district. It is not safe for
// concurrent use, every step depends on the page state of the previous one.
type Retriever struct {
	district  district.District
	transport transport.Transport
	parser    parser.Parser
	clock     chrono.API
	tel       telemetry.API

	credentials model.Credentials
	// studentID is the student to select after logging in, empty when the
	// account has a single student or none was picked yet.
	studentID string

	state              State
	lastResponse       dom.Node
	lastResponseTime   time.Time
	lastGradesResponse time.Time
}

func NewRetriever(
	d district.District,
	credentials model.Credentials,
	studentID string,
	t transport.Transport,
	clock chrono.API,
	tel telemetry.API,
) *Retriever {
	assert.NotEmptyStr(d.ID)
	assert.NotNil(t)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return &Retriever{
		district:    d,
		transport:   t,
		parser:      parser.NewParser(d, clock, tel),
		clock:       clock,
		tel:         telemetry.NewScopedAPI("retriever", tel),
		credentials: credentials,
		studentID:   studentID,
	}
}

func (r *Retriever) State() State {
	return r.state
}

// SetCredentials switches the session to another account, dropping any
// session state of the previous one.
func (r *Retriever) SetCredentials(credentials model.Credentials) {
	r.credentials = credentials
	r.studentID = ""
	r.state = StateAnonymous
	r.lastResponse = nil
	r.lastResponseTime = time.Time{}
	r.lastGradesResponse = time.Time{}
}

// SetStudent sets the student that will be selected on the next login.
func (r *Retriever) SetStudent(studentID string) {
	r.studentID = studentID
}

func (r *Retriever) fetch(ctx context.Context, page string, endpoint district.Endpoint, query url.Values) (dom.Node, error) {
	r.tel.ReportDebug("fetch", page, endpoint.Method, endpoint.URL)
	res, err := r.transport.Do(ctx, transport.Request{
		Method: endpoint.Method,
		URL:    endpoint.URL,
		Query:  query,
	})
	if err != nil {
		return nil, fmt.Errorf("load %s page: %w", page, err)
	}
	return res.Document, nil
}

func (r *Retriever) touch(doc dom.Node) {
	if doc != nil {
		r.lastResponse = doc
	}
	r.lastResponseTime = r.clock.Now()
}

func (r *Retriever) fresh(t time.Time) bool {
	return !t.IsZero() && !r.clock.Now().After(t.Add(SessionWindow))
}

// Login runs the whole login sequence. When the account has several students
// and none was set, it stops with the list of Choices.
func (r *Retriever) Login(ctx context.Context) (LoginResult, error) {
	api := r.district.API
	r.state = StateAnonymous

	doc, err := r.fetch(ctx, "login", api.Login.Load, nil)
	if err != nil {
		return nil, err
	}
	if !api.Login.ValidateLoginPage(doc) {
		return nil, &ValidationError{Page: "login", URL: api.Login.Load.URL}
	}
	r.state = StateLoginPageLoaded

	query := api.Login.MakeQuery(r.credentials.Username, r.credentials.Password, doc)
	doc, err = r.fetch(ctx, "login submit", api.Login.Submit, query)
	if err != nil {
		return nil, err
	}
	r.state = StateCredentialsSubmitted
	if !api.Login.ValidateAfterLogin(doc) {
		return nil, &ValidationError{Page: "post-login", URL: api.Login.Submit.URL}
	}
	r.touch(doc)

	if !api.SelectStudent.IsRequired(doc) {
		r.state = StateAuthenticated
		return NoDisambiguationNeeded{}, nil
	}

	if api.SelectStudent.PickerLoadsFromAjax {
		doc, err = r.fetch(ctx, "student picker", api.SelectStudent.Load, api.SelectStudent.MakeLoadQuery(doc))
		if err != nil {
			return nil, err
		}
		if !api.SelectStudent.Validate(doc) {
			return nil, &ValidationError{Page: "student picker", URL: api.SelectStudent.Load.URL}
		}
		r.touch(doc)
	}
	r.state = StateDisambiguationRequired

	choices := api.SelectStudent.GetChoices(doc)
	if len(choices) == 0 {
		r.tel.ReportWarning(report_retriever_login, "student picker has no choices")
	}
	if r.studentID == "" {
		return Choices{Students: choices}, nil
	}

	found := slices.ContainsFunc(choices, func(c model.StudentChoice) bool {
		return c.StudentID == r.studentID
	})
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrStudentNotFound, r.studentID)
	}
	err = r.submitStudent(ctx, r.studentID)
	if err != nil {
		return nil, err
	}
	return NoDisambiguationNeeded{}, nil
}

func (r *Retriever) submitStudent(ctx context.Context, studentID string) error {
	api := r.district.API
	query := api.SelectStudent.MakeSubmitQuery(studentID, r.lastResponse)
	doc, err := r.fetch(ctx, "student select", api.SelectStudent.Submit, query)
	if err != nil {
		return err
	}
	r.state = StateStudentSelected
	if !api.Login.ValidateAfterLogin(doc) {
		r.tel.ReportWarning(report_retriever_select_student, "selected student page did not validate")
		return &ValidationError{Page: "post-select", URL: api.SelectStudent.Submit.URL}
	}
	r.touch(doc)
	r.state = StateAuthenticated
	return nil
}

// SelectStudent binds the session to one of the account's students.
func (r *Retriever) SelectStudent(ctx context.Context, studentID string) error {
	r.studentID = studentID
	if r.state == StateDisambiguationRequired && r.fresh(r.lastResponseTime) {
		return r.submitStudent(ctx, studentID)
	}
	if r.IsLoggedIn() {
		// switching students inside a live session posts the picker again
		return r.submitStudent(ctx, studentID)
	}
	_, err := r.Login(ctx)
	return err
}

// IsLoggedIn reports whether the session is still considered alive, which
// is only ever a timestamp check.
func (r *Retriever) IsLoggedIn() bool {
	if r.state != StateAuthenticated {
		return false
	}
	return r.fresh(r.lastResponseTime) ||
		(!r.district.API.Cycle.RequiresYearLoaded && r.IsYearLoaded())
}

// IsYearLoaded reports whether the year page was loaded within the session
// window.
func (r *Retriever) IsYearLoaded() bool {
	return r.state == StateAuthenticated && r.fresh(r.lastGradesResponse)
}

// AssureLoggedIn logs in again if the session went stale.
func (r *Retriever) AssureLoggedIn(ctx context.Context) error {
	if r.IsLoggedIn() {
		return nil
	}
	result, err := r.Login(ctx)
	if err != nil {
		return err
	}
	if _, ok := result.(Choices); ok {
		return ErrNoStudent
	}
	return nil
}

// GetYear loads and parses the year summary page.
func (r *Retriever) GetYear(ctx context.Context) (YearResult, error) {
	api := r.district.API
	err := r.AssureLoggedIn(ctx)
	if err != nil {
		return YearResult{}, err
	}

	doc, err := r.fetch(ctx, "year", api.Year.Load, api.Year.MakeQuery(r.lastResponse))
	if err != nil {
		return YearResult{}, err
	}
	if !api.Year.Validate(doc) {
		return YearResult{}, &ValidationError{Page: "year", URL: api.Year.Load.URL}
	}

	if api.Cycle.RequiresYearLoaded {
		r.touch(nil)
	} else {
		r.touch(doc)
	}
	r.lastGradesResponse = r.clock.Now()

	grades, err := r.parser.ParseYear(doc)
	if err != nil {
		r.tel.ReportBroken(report_retriever_get_year, err)
		return YearResult{}, err
	}
	return YearResult{
		Grades:  grades,
		Student: r.parser.ParseStudentInfo(doc),
	}, nil
}

// GetCycle loads and parses the detail page of the cycle with the given url
// hash, loading the year page first where the district requires it.
func (r *Retriever) GetCycle(ctx context.Context, urlHash string) (CycleResult, error) {
	api := r.district.API
	err := r.AssureLoggedIn(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	if api.Cycle.RequiresYearLoaded && !r.IsYearLoaded() {
		_, err = r.GetYear(ctx)
		if err != nil {
			return CycleResult{}, err
		}
	}

	doc, err := r.fetch(ctx, "cycle", api.Cycle.Load, api.Cycle.MakeQuery(urlHash, r.lastResponse))
	if err != nil {
		return CycleResult{}, err
	}
	if !api.Cycle.Validate(doc) {
		return CycleResult{}, &ValidationError{Page: "cycle", URL: api.Cycle.Load.URL}
	}

	if api.Cycle.RequiresYearLoaded {
		r.touch(nil)
	} else {
		r.touch(doc)
	}
	r.lastGradesResponse = r.clock.Now()

	cycle, err := r.parser.ParseCycle(doc, urlHash)
	if err != nil {
		r.tel.ReportBroken(report_retriever_get_cycle, err, urlHash)
		return CycleResult{}, err
	}
	result := CycleResult{Cycle: cycle}
	if parser.HasYearTable(doc) {
		grades, err := r.parser.ParseYear(doc)
		if err != nil {
			return CycleResult{}, err
		}
		result.Grades = &grades
	}
	return result, nil
}

// GetAttendance loads the attendance page, events come back sorted by date
// and block.
func (r *Retriever) GetAttendance(ctx context.Context) ([]model.AttendanceEvent, error) {
	api := r.district.API
	err := r.AssureLoggedIn(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := r.fetch(ctx, "attendance", api.Attendance.Load, api.Attendance.MakeQuery(r.lastResponse))
	if err != nil {
		return nil, err
	}
	if !api.Attendance.Validate(doc) {
		return nil, &ValidationError{Page: "attendance", URL: api.Attendance.Load.URL}
	}
	r.touch(nil)

	events, err := api.Attendance.GetEvents(doc)
	if err != nil {
		r.tel.ReportBroken(report_retriever_get_attendance, err)
		return nil, err
	}
	model.SortAttendanceEvents(events)
	return events, nil
}
