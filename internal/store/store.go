package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"slices"

	"gradespeed-backend/internal/components/assert"
	"gradespeed-backend/internal/model"
)

// SchemaVersion is written under the version key once the store has been
// initialized.
const SchemaVersion = 1

const (
	keyVersion     = "version"
	keyState       = "state"
	keyPreferences = "preferences"
	keyAccounts    = "accounts"
)

func accountKey(id string) string {
	return "account-" + id
}

func studentKey(id string) string {
	return "student-" + id
}

var (
	ErrAccountExists = errors.New("account with that id already exists")
	ErrStudentExists = errors.New("student with that id already exists")
)

// state is app-wide state that is not a preference.
type state struct {
	ActiveStudent string
}

// accountRecord is an account with its students stored under their own keys.
type accountRecord struct {
	ID          string
	Credentials model.Credentials
	StudentIDs  []string
}

// Store is the typed view over a KV. Values are gob encoded since grades
// carry NaN.
type Store struct {
	kv KV
}

func NewStore(kv KV) Store {
	assert.NotNil(kv)
	return Store{kv: kv}
}

func (s Store) Close() error {
	return s.kv.Close()
}

func get[T any](ctx context.Context, kv KV, key string) (T, error) {
	var out T
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return out, err
	}
	err = gob.NewDecoder(bytes.NewReader(raw)).Decode(&out)
	if err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

func set[T any](ctx context.Context, kv KV, key string, value T) error {
	var buff bytes.Buffer
	err := gob.NewEncoder(&buff).Encode(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, buff.Bytes())
}

func exists(ctx context.Context, kv KV, key string) (bool, error) {
	_, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Init writes the default state and preferences the first time a store is
// opened. It returns the schema version found before initialization, 0 for
// a fresh store.
func (s Store) Init(ctx context.Context) (int, error) {
	version, err := get[int](ctx, s.kv, keyVersion)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	err = set(ctx, s.kv, keyState, state{})
	if err != nil {
		return 0, err
	}
	err = set(ctx, s.kv, keyPreferences, model.DefaultPreferences())
	if err != nil {
		return 0, err
	}
	err = set(ctx, s.kv, keyAccounts, []string{})
	if err != nil {
		return 0, err
	}
	return 0, set(ctx, s.kv, keyVersion, SchemaVersion)
}

func (s Store) accountIDs(ctx context.Context) ([]string, error) {
	ids, err := get[[]string](ctx, s.kv, keyAccounts)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return ids, err
}

// Accounts returns every stored account with its students.
func (s Store) Accounts(ctx context.Context) ([]model.Account, error) {
	ids, err := s.accountIDs(ctx)
	if err != nil {
		return nil, err
	}
	accounts := make([]model.Account, 0, len(ids))
	for _, id := range ids {
		account, err := s.Account(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", id, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Account returns the account with the given id and its students.
func (s Store) Account(ctx context.Context, id string) (model.Account, error) {
	record, err := get[accountRecord](ctx, s.kv, accountKey(id))
	if err != nil {
		return model.Account{}, err
	}
	account := model.Account{
		ID:          record.ID,
		Credentials: record.Credentials,
		Students:    make([]model.Student, 0, len(record.StudentIDs)),
	}
	for _, studentID := range record.StudentIDs {
		student, err := s.Student(ctx, studentID)
		if err != nil {
			return model.Account{}, fmt.Errorf("student %s: %w", studentID, err)
		}
		account.Students = append(account.Students, student)
	}
	return account, nil
}

func recordOf(account model.Account) accountRecord {
	record := accountRecord{
		ID:          account.ID,
		Credentials: account.Credentials,
		StudentIDs:  make([]string, len(account.Students)),
	}
	for i, student := range account.Students {
		record.StudentIDs[i] = student.ID
	}
	return record
}

// AddAccount stores a new account together with its students.
func (s Store) AddAccount(ctx context.Context, account model.Account) error {
	found, err := exists(ctx, s.kv, accountKey(account.ID))
	if err != nil {
		return err
	}
	if found {
		return ErrAccountExists
	}

	for _, student := range account.Students {
		err = set(ctx, s.kv, studentKey(student.ID), student)
		if err != nil {
			return err
		}
	}
	err = set(ctx, s.kv, accountKey(account.ID), recordOf(account))
	if err != nil {
		return err
	}

	ids, err := s.accountIDs(ctx)
	if err != nil {
		return err
	}
	return set(ctx, s.kv, keyAccounts, append(ids, account.ID))
}

// RemoveAccount removes an account and its students.
func (s Store) RemoveAccount(ctx context.Context, id string) error {
	record, err := get[accountRecord](ctx, s.kv, accountKey(id))
	if err != nil {
		return err
	}
	for _, studentID := range record.StudentIDs {
		err = s.kv.Remove(ctx, studentKey(studentID))
		if err != nil {
			return err
		}
	}
	err = s.kv.Remove(ctx, accountKey(id))
	if err != nil {
		return err
	}

	ids, err := s.accountIDs(ctx)
	if err != nil {
		return err
	}
	ids = slices.DeleteFunc(ids, func(other string) bool { return other == id })
	err = set(ctx, s.kv, keyAccounts, ids)
	if err != nil {
		return err
	}

	st, err := get[state](ctx, s.kv, keyState)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if slices.Contains(record.StudentIDs, st.ActiveStudent) {
		return set(ctx, s.kv, keyState, state{})
	}
	return nil
}

func (s Store) Student(ctx context.Context, id string) (model.Student, error) {
	return get[model.Student](ctx, s.kv, studentKey(id))
}

// AddStudent stores a new student and links it to its account.
func (s Store) AddStudent(ctx context.Context, accountID string, student model.Student) error {
	found, err := exists(ctx, s.kv, studentKey(student.ID))
	if err != nil {
		return err
	}
	if found {
		return ErrStudentExists
	}
	record, err := get[accountRecord](ctx, s.kv, accountKey(accountID))
	if err != nil {
		return fmt.Errorf("account %s: %w", accountID, err)
	}

	err = set(ctx, s.kv, studentKey(student.ID), student)
	if err != nil {
		return err
	}
	record.StudentIDs = append(record.StudentIDs, student.ID)
	return set(ctx, s.kv, accountKey(accountID), record)
}

// UpdateStudent overwrites an existing student.
func (s Store) UpdateStudent(ctx context.Context, student model.Student) error {
	found, err := exists(ctx, s.kv, studentKey(student.ID))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("student %s: %w", student.ID, ErrNotFound)
	}
	return set(ctx, s.kv, studentKey(student.ID), student)
}

// ActiveStudent returns the student that was last set active, found is
// false when there is none.
func (s Store) ActiveStudent(ctx context.Context) (student model.Student, found bool, err error) {
	st, err := get[state](ctx, s.kv, keyState)
	if errors.Is(err, ErrNotFound) {
		return model.Student{}, false, nil
	}
	if err != nil {
		return model.Student{}, false, err
	}
	if st.ActiveStudent == "" {
		return model.Student{}, false, nil
	}
	student, err = s.Student(ctx, st.ActiveStudent)
	if err != nil {
		return model.Student{}, false, err
	}
	return student, true, nil
}

func (s Store) SetActiveStudent(ctx context.Context, id string) error {
	return set(ctx, s.kv, keyState, state{ActiveStudent: id})
}

func (s Store) Preferences(ctx context.Context) (model.Preferences, error) {
	prefs, err := get[model.Preferences](ctx, s.kv, keyPreferences)
	if errors.Is(err, ErrNotFound) {
		return model.DefaultPreferences(), nil
	}
	return prefs, err
}

func (s Store) SetPreferences(ctx context.Context, prefs model.Preferences) error {
	return set(ctx, s.kv, keyPreferences, prefs)
}
