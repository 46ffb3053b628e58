// Package district holds the configuration of every supported GradeSpeed
// district: where its pages live, how its forms are filled in and how its
// pages are recognized. Everything here is plain data and pure functions.
package district

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"gradespeed-backend/internal/dom"
	"gradespeed-backend/internal/model"
)

type Endpoint struct {
	URL    string
	Method string
}

// Validator reports whether a page is the one that was expected.
type Validator func(doc dom.Node) bool

type ColumnOffsets struct {
	// Title is the column of the course title.
	Title int
	// Period is the column of the course period.
	Period int
	// Grades is the column of the first grade cell.
	Grades int
}

type LoginAPI struct {
	Load               Endpoint
	Submit             Endpoint
	ValidateLoginPage  Validator
	ValidateAfterLogin Validator
	MakeQuery          func(username, password string, doc dom.Node) url.Values
}

type SelectStudentAPI struct {
	Load   Endpoint
	Submit Endpoint
	// Validate checks the picker page, it is only used when the picker loads
	// from ajax.
	Validate            Validator
	PickerLoadsFromAjax bool
	IsRequired          Validator
	MakeLoadQuery       func(doc dom.Node) url.Values
	MakeSubmitQuery     func(studentID string, doc dom.Node) url.Values
	GetChoices          func(doc dom.Node) []model.StudentChoice
}

type YearAPI struct {
	Load             Endpoint
	Validate         Validator
	MakeQuery        func(doc dom.Node) url.Values
	ParseStudentInfo func(doc dom.Node) model.StudentInfo
}

type CycleAPI struct {
	Load     Endpoint
	Validate Validator
	// RequiresYearLoaded means the cycle page only works right after the
	// year page has been requested in the same session.
	RequiresYearLoaded bool
	MakeQuery          func(urlHash string, doc dom.Node) url.Values
}

type AttendanceAPI struct {
	Load      Endpoint
	Validate  Validator
	MakeQuery func(doc dom.Node) url.Values
	GetEvents func(doc dom.Node) ([]model.AttendanceEvent, error)
}

type API struct {
	Login             LoginAPI
	SelectStudent     SelectStudentAPI
	Year              YearAPI
	Cycle             CycleAPI
	Attendance        AttendanceAPI
	RegisterURL       string
	ForgotPasswordURL string
}

type District struct {
	ID                string
	Name              string
	ExamWeight        float64
	WeightedGPAOffset float64
	ColumnOffsets     ColumnOffsets
	API               API
}

var registry = map[string]District{
	Austin.ID:    Austin,
	RoundRock.ID: RoundRock,
}

// Get returns the district with the given id.
func Get(id string) (District, error) {
	d, ok := registry[id]
	if !ok {
		return District{}, fmt.Errorf("unknown district '%s'", id)
	}
	return d, nil
}

// All returns every supported district ordered by id.
func All() []District {
	out := make([]District, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b District) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func hasTag(tag string) Validator {
	return func(doc dom.Node) bool {
		return len(doc.FindTag(tag)) > 0
	}
}

func hasSelector(selector string) Validator {
	return func(doc dom.Node) bool {
		return dom.Exists(doc, selector)
	}
}

func dataTables(min int) Validator {
	return func(doc dom.Node) bool {
		return len(doc.FindClass("DataTable")) >= min
	}
}

func noQuery(dom.Node) url.Values {
	return nil
}

func urlHashQuery(urlHash string, _ dom.Node) url.Values {
	return url.Values{"data": {urlHash}}
}

func choiceID(name, studentID string) string {
	return model.HashID(name, studentID)
}
