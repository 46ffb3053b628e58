// Package gradeservice ties the retriever, the augment engine and the store
// together. Logging in yields a Handle bound to one account and student,
// every load through a Handle diffs the fresh scrape against what was stored
// and persists the merged result.
package gradeservice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gradespeed-backend/internal/augment"
	"gradespeed-backend/internal/components/assert"
	"gradespeed-backend/internal/components/chrono"
	"gradespeed-backend/internal/components/telemetry"
	"gradespeed-backend/internal/district"
	"gradespeed-backend/internal/model"
	"gradespeed-backend/internal/retriever"
	"gradespeed-backend/internal/store"
	"gradespeed-backend/internal/transport"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
)

var tracer = otel.Tracer("gradespeed-backend/internal/gradeservice")

const (
	report_service_init        = "service.init"
	report_service_login       = "service.attempt-login"
	report_handle_load_year    = "handle.load-grades-year"
	report_handle_load_cycle   = "handle.load-grades-cycle"
	report_handle_load_attend  = "handle.load-attendance"
	report_handle_grade_change = "handle.grade-changes"
)

var (
	ErrUnknownAccount = errors.New("unknown account")
	ErrUnknownStudent = errors.New("unknown student")
	ErrUnknownCycle   = errors.New("unknown cycle")
	ErrWrongPassword  = errors.New("wrong app password")
)

// TransportFactory creates a fresh transport, each login gets its own so
// sessions do not share cookies.
type TransportFactory func() (transport.Transport, error)

type Options struct {
	Store        store.Store
	NewTransport TransportFactory
	Clock        chrono.API
	Tel          telemetry.API
}

type Service struct {
	store        store.Store
	newTransport TransportFactory
	clock        chrono.API
	tel          telemetry.API
	augmenter    augment.Augmenter

	mutex    sync.Mutex
	accounts map[string]*model.Account
	handles  map[string]*Handle
}

// NewService initializes the store if needed and loads every account into
// the cache.
func NewService(ctx context.Context, opts Options) (*Service, error) {
	assert.NotNil(opts.NewTransport)
	assert.NotNil(opts.Clock)
	assert.NotNil(opts.Tel)

	s := &Service{
		store:        opts.Store,
		newTransport: opts.NewTransport,
		clock:        opts.Clock,
		tel:          telemetry.NewScopedAPI("gradeservice", opts.Tel),
		augmenter:    augment.NewAugmenter(opts.Clock, opts.Tel),
		accounts:     map[string]*model.Account{},
		handles:      map[string]*Handle{},
	}

	version, err := s.store.Init(ctx)
	if err != nil {
		s.tel.ReportBroken(report_service_init, err)
		return nil, err
	}
	if version == 0 {
		s.tel.ReportDebug("initialized a new store", store.SchemaVersion)
	}

	accounts, err := s.store.Accounts(ctx)
	if err != nil {
		s.tel.ReportBroken(report_service_init, fmt.Errorf("load accounts: %w", err))
		return nil, err
	}
	for i := range accounts {
		s.accounts[accounts[i].ID] = &accounts[i]
	}
	s.tel.ReportCount("accounts", int64(len(accounts)))

	return s, nil
}

// Accounts returns a copy of every cached account.
func (s *Service) Accounts() []model.Account {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]model.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, account.Clone())
	}
	return out
}

func (s *Service) Preferences(ctx context.Context) (model.Preferences, error) {
	return s.store.Preferences(ctx)
}

func (s *Service) SetPreferences(ctx context.Context, prefs model.Preferences) error {
	return s.store.SetPreferences(ctx, prefs)
}

// SetAppPassword locks the app behind a password, an empty password removes
// the lock.
func (s *Service) SetAppPassword(ctx context.Context, password string) error {
	prefs, err := s.store.Preferences(ctx)
	if err != nil {
		return err
	}
	if password == "" {
		prefs.PasswordOn = false
		prefs.PasswordHash = ""
		return s.store.SetPreferences(ctx, prefs)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	prefs.PasswordOn = true
	prefs.PasswordHash = string(hash)
	return s.store.SetPreferences(ctx, prefs)
}

// CheckAppPassword returns ErrWrongPassword unless the password unlocks the
// app, any password does when no lock is set.
func (s *Service) CheckAppPassword(ctx context.Context, password string) error {
	prefs, err := s.store.Preferences(ctx)
	if err != nil {
		return err
	}
	if !prefs.PasswordOn {
		return nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(prefs.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrWrongPassword
	}
	return err
}

// ActiveIdentity returns a handle to the student that was last logged in or
// selected, found is false when there is none.
func (s *Service) ActiveIdentity(ctx context.Context) (handle *Handle, found bool, err error) {
	student, found, err := s.store.ActiveStudent(ctx)
	if err != nil || !found {
		return nil, false, err
	}

	s.mutex.Lock()
	accountID := ""
	for _, account := range s.accounts {
		if account.FindStudent(student.ID) != nil {
			accountID = account.ID
			break
		}
	}
	s.mutex.Unlock()
	if accountID == "" {
		return nil, false, nil
	}

	handle, err = s.Identity(accountID, student.ID)
	if err != nil {
		return nil, false, err
	}
	return handle, true, nil
}

// Identity returns the handle for a stored account and student. Handles are
// shared, so two callers asking for the same student serialize their loads.
func (s *Service) Identity(accountID, studentID string) (*Handle, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if handle, ok := s.handles[studentID]; ok && handle.accountID == accountID {
		return handle, nil
	}

	account, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	student := account.FindStudent(studentID)
	if student == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
	}
	d, err := district.Get(account.Credentials.District)
	if err != nil {
		return nil, err
	}
	t, err := s.newTransport()
	if err != nil {
		return nil, err
	}

	sessionTel := s.sessionTelemetry()
	r := retriever.NewRetriever(d, account.Credentials, student.StudentID, t, s.clock, sessionTel)
	return s.newHandleLocked(d, accountID, studentID, r, sessionTel), nil
}

// SetActiveIdentity switches the active student.
func (s *Service) SetActiveIdentity(ctx context.Context, accountID, studentID string) (*Handle, error) {
	handle, err := s.Identity(accountID, studentID)
	if err != nil {
		return nil, err
	}
	err = s.store.SetActiveStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (s *Service) sessionTelemetry() telemetry.API {
	return telemetry.NewScopedAPI(uuid.NewString(), s.tel)
}

func (s *Service) newHandleLocked(d district.District, accountID, studentID string, r *retriever.Retriever, tel telemetry.API) *Handle {
	handle := &Handle{
		service:   s,
		district:  d,
		accountID: accountID,
		studentID: studentID,
		retriever: r,
		tel:       tel,
	}
	s.handles[studentID] = handle
	return handle
}

// LoginAttempt is a login that went through. Either Handle is set, or the
// account has several students and one of Choices must be picked with
// SelectStudent.
type LoginAttempt struct {
	Choices []model.StudentChoice
	Handle  *Handle

	service     *Service
	district    district.District
	credentials model.Credentials
	retriever   *retriever.Retriever
	tel         telemetry.API
}

// AttemptLogin logs into a district with the given credentials.
func (s *Service) AttemptLogin(ctx context.Context, districtID, username, password string) (attempt *LoginAttempt, err error) {
	ctx, span := tracer.Start(ctx, "AttemptLogin")
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	d, err := district.Get(districtID)
	if err != nil {
		return nil, err
	}
	t, err := s.newTransport()
	if err != nil {
		return nil, err
	}

	credentials := model.Credentials{District: d.ID, Username: username, Password: password}
	sessionTel := s.sessionTelemetry()
	r := retriever.NewRetriever(d, credentials, "", t, s.clock, sessionTel)

	result, err := r.Login(ctx)
	if err != nil {
		s.tel.ReportWarning(report_service_login, err, d.ID)
		return nil, err
	}

	attempt = &LoginAttempt{
		service:     s,
		district:    d,
		credentials: credentials,
		retriever:   r,
		tel:         sessionTel,
	}
	switch result := result.(type) {
	case retriever.Choices:
		attempt.Choices = result.Students
		return attempt, nil
	case retriever.NoDisambiguationNeeded:
		accountID := model.AccountID(credentials)
		attempt.Handle, err = s.register(ctx, attempt, model.Student{
			ID:          model.SingleStudentID(accountID),
			Preferences: model.DefaultStudentPrefs(),
		})
		if err != nil {
			return nil, err
		}
		return attempt, nil
	}
	return nil, fmt.Errorf("unexpected login result %T", result)
}

// SelectStudent picks one of the account's students and finishes the login.
func (a *LoginAttempt) SelectStudent(ctx context.Context, studentID string) (*Handle, error) {
	if a.Handle != nil {
		return a.Handle, nil
	}

	var choice *model.StudentChoice
	for i := range a.Choices {
		if a.Choices[i].StudentID == studentID {
			choice = &a.Choices[i]
			break
		}
	}
	if choice == nil {
		return nil, fmt.Errorf("%w: %s", retriever.ErrStudentNotFound, studentID)
	}

	err := a.retriever.SelectStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	accountID := model.AccountID(a.credentials)
	handle, err := a.service.register(ctx, a, model.Student{
		ID:          model.SelectedStudentID(accountID, studentID),
		Name:        choice.Name,
		StudentID:   studentID,
		Preferences: model.DefaultStudentPrefs(),
	})
	if err != nil {
		return nil, err
	}
	a.Handle = handle
	return handle, nil
}

// register adds the logged in account and student to the store unless they
// are already known, and makes the student the active one. A student that
// already has a handle keeps it, with the new session swapped in.
func (s *Service) register(ctx context.Context, attempt *LoginAttempt, student model.Student) (*Handle, error) {
	attempt.retriever.SetStudent(student.StudentID)

	handle, existing, err := s.registerLocked(ctx, attempt, student)
	if err != nil {
		return nil, err
	}
	if existing {
		handle.swapSession(attempt.retriever, attempt.tel)
	}
	return handle, nil
}

func (s *Service) registerLocked(ctx context.Context, attempt *LoginAttempt, student model.Student) (*Handle, bool, error) {
	accountID := model.AccountID(attempt.credentials)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	account, known := s.accounts[accountID]
	switch {
	case !known:
		account = &model.Account{
			ID:          accountID,
			Credentials: attempt.credentials,
			Students:    []model.Student{student},
		}
		err := s.store.AddAccount(ctx, *account)
		if err != nil {
			return nil, false, err
		}
		s.accounts[accountID] = account
	case account.FindStudent(student.ID) == nil:
		err := s.store.AddStudent(ctx, accountID, student)
		if err != nil {
			return nil, false, err
		}
		account.Students = append(account.Students, student)
	}

	err := s.store.SetActiveStudent(ctx, student.ID)
	if err != nil {
		return nil, false, err
	}

	if handle, ok := s.handles[student.ID]; ok && handle.accountID == accountID {
		return handle, true, nil
	}
	return s.newHandleLocked(attempt.district, accountID, student.ID, attempt.retriever, attempt.tel), false, nil
}

// student returns a copy of the cached student.
func (s *Service) student(accountID, studentID string) (model.Student, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return model.Student{}, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	student := account.FindStudent(studentID)
	if student == nil {
		return model.Student{}, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
	}
	return student.Clone(), nil
}

func (s *Service) account(accountID string) (model.Account, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	return account.Clone(), nil
}

// saveStudent persists a student and swaps it into the cache.
func (s *Service) saveStudent(ctx context.Context, accountID string, student model.Student) error {
	err := s.store.UpdateStudent(ctx, student)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	cached := account.FindStudent(student.ID)
	if cached == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStudent, student.ID)
	}
	*cached = student
	return nil
}

// RemoveAccount forgets an account and all of its students.
func (s *Service) RemoveAccount(ctx context.Context, accountID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	err := s.store.RemoveAccount(ctx, accountID)
	if err != nil {
		return err
	}
	for _, student := range account.Students {
		delete(s.handles, student.ID)
	}
	delete(s.accounts, accountID)
	return nil
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
