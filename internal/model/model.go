// Package model is the data model shared by every gradebook component.
//
// Numeric grades are float64 where NaN means "no grade". Ids are sha1 digests
// of the fields that identify a record, see HashID.
package model

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// SHA1 returns the 40 character lowercase hex digest of s.
func SHA1(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashID joins parts with "|" and hashes the result.
func HashID(parts ...string) string {
	return SHA1(strings.Join(parts, "|"))
}

type Credentials struct {
	// District is the id of the district, see district.Get.
	District string
	Username string
	Password string
}

type Account struct {
	ID          string
	Credentials Credentials
	Students    []Student
}

// AccountID returns the content-addressed id of an account.
func AccountID(c Credentials) string {
	return HashID(c.District, c.Username, c.Password)
}

// SingleStudentID is the id of the only student of an account that does not
// require disambiguation.
func SingleStudentID(accountID string) string {
	return HashID(accountID, "0")
}

// SelectedStudentID is the id of a student picked through disambiguation.
func SelectedStudentID(accountID, studentID string) string {
	return HashID(accountID, studentID)
}

// FindStudent returns the student with the given id, or nil.
func (a *Account) FindStudent(id string) *Student {
	for i := range a.Students {
		if a.Students[i].ID == id {
			return &a.Students[i]
		}
	}
	return nil
}

type NotificationLevel int

const (
	NotifyNone NotificationLevel = iota
	NotifyCycleDrop
	NotifyCycleChange
	NotifyAssignment
)

type StudentPrefs struct {
	NotifLevel      NotificationLevel
	GPAWeightedOn   bool
	GPAUnweightedOn bool
}

func DefaultStudentPrefs() StudentPrefs {
	return StudentPrefs{
		NotifLevel:      NotifyAssignment,
		GPAWeightedOn:   true,
		GPAUnweightedOn: true,
	}
}

type GPAData struct {
	PrevGPA          float64
	NumPrevSemesters float64
	// WeightedCourses holds course ids (or titles) that count as honors.
	WeightedCourses []string
	ElectiveCourses []string
}

type Student struct {
	ID          string
	Name        string
	School      string
	StudentID   string
	GPAData     GPAData
	Grades      Grades
	Attendance  Attendance
	Preferences StudentPrefs
}

// StudentChoice is one entry of a district's student picker.
type StudentChoice struct {
	ID        string
	Name      string
	StudentID string
}

// StudentInfo is what the grade page says about the student it belongs to.
type StudentInfo struct {
	Name   string
	School string
}

type Grades struct {
	LastUpdated         time.Time
	ChangedGrades       []GradeChange
	UsesLetterGrades    bool
	HasExams            bool
	HasSemesterAverages bool
	Courses             []Course
}

type Course struct {
	// ID is empty when the course has no grade links to derive it from.
	ID           string
	Title        string
	TeacherName  string
	TeacherEmail string
	Period       int
	Semesters    []Semester
}

type Semester struct {
	Average      float64
	ExamGrade    float64
	ExamIsExempt bool
	Cycles       []Cycle
}

type Cycle struct {
	// URLHash is empty for cycles without a grade yet.
	URLHash          string
	LastUpdated      time.Time
	ChangedGrades    []GradeChange
	UsesLetterGrades bool
	Average          float64
	Title            string
	// Categories is nil until the cycle's detail page has been loaded.
	Categories []Category
}

type Category struct {
	ID          string
	Title       string
	Weight      float64
	Average     float64
	Bonus       float64
	Assignments []Assignment
}

type Assignment struct {
	ID           string
	Title        string
	DateDue      time.Time
	DateAssigned time.Time
	PtsEarned    float64
	PtsPossible  float64
	Weight       float64
	Note         string
	ExtraCredit  bool
}

type GradeChangeType int

const (
	ChangeNew GradeChangeType = iota
	ChangeUp
	ChangeDown
)

func (t GradeChangeType) String() string {
	switch t {
	case ChangeNew:
		return "NEW"
	case ChangeUp:
		return "UP"
	case ChangeDown:
		return "DOWN"
	}
	return "UNKNOWN"
}

type GradeChange struct {
	// ID is the id of the course or assignment that changed.
	ID        string
	Timestamp time.Time
	Type      GradeChangeType
	NewGrade  string
	Read      bool
}

type Attendance struct {
	LastUpdated time.Time
	Events      []AttendanceEvent
}

type AttendanceEvent struct {
	ID          string
	Date        time.Time
	Block       int
	Explanation string
	Read        bool
}

// AttendanceEventID identifies an event by the day and block it happened in.
func AttendanceEventID(date time.Time, block int) string {
	return HashID(date.Format(time.DateOnly), itoa(block))
}

// Preferences are app-wide settings.
type Preferences struct {
	ColorIntensity    int
	Hue               int
	UpdateOn          bool
	UpdateInterval    time.Duration
	NotifsConsolidate bool
	BadgeOn           bool
	PasswordOn        bool
	PasswordHash      string
	GPAPrecision      int
}

func DefaultPreferences() Preferences {
	return Preferences{
		ColorIntensity:    4,
		Hue:               0,
		UpdateOn:          true,
		UpdateInterval:    60 * time.Minute,
		NotifsConsolidate: false,
		BadgeOn:           true,
		PasswordOn:        false,
		PasswordHash:      "",
		GPAPrecision:      4,
	}
}
