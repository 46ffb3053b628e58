// Package transporttest provides an in-memory Austin GradeSpeed portal for
// tests of the components that sit on top of a transport.
package transporttest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"gradespeed-backend/internal/district"
	"gradespeed-backend/internal/dom"
	"gradespeed-backend/internal/model"
	"gradespeed-backend/internal/transport"

	_ "embed"
)

//go:embed pages/austin_year.html
var YearPage string

//go:embed pages/austin_cycle.html
var CyclePage string

//go:embed pages/austin_attendance.html
var AttendancePage string

// the url hashes of the two graded cycles on YearPage
const (
	EnglishCycle1 = "MjI3OTAxfDAxMjM0NXwyMDE0fDEyMzR8RTE="
	EnglishCycle2 = "MjI3OTAxfDAxMjM0NXwyMDE0fDEyMzR8RTI="
)

const (
	loginPage = `<html><body><form>
		<input type="hidden" name="__VIEWSTATE" value="login-state"/>
		<input name="txtUserName"/><input name="txtPassword"/>
	</form></body></html>`
	failedLoginPage = `<html><body><p class="Error">Invalid user name or password.</p></body></html>`
	homePage        = `<html><body><form>
		<input type="hidden" name="__VIEWSTATE" value="home-state"/>
		<input type="hidden" name="__EVENTVALIDATION" value="home-validation"/>
		%s
	</form></body></html>`
)

// Portal imitates the Austin portal. Pages can be swapped between requests
// to simulate grades changing.
type Portal struct {
	mutex sync.Mutex

	Username string
	Password string
	// Students are the choices of a multi-student account, an account with
	// none does not need disambiguation.
	Students []model.StudentChoice

	Year       string
	Cycles     map[string]string
	Attendance string

	// Fail, when set, is returned by every request.
	Fail error

	Requests []transport.Request
	Selected string
}

func NewPortal(username, password string) *Portal {
	return &Portal{
		Username:   username,
		Password:   password,
		Year:       YearPage,
		Cycles:     map[string]string{EnglishCycle1: CyclePage},
		Attendance: AttendancePage,
	}
}

// Choice builds a student choice the way the portal's picker would show it.
func Choice(name, studentID string) model.StudentChoice {
	return model.StudentChoice{
		ID:        model.HashID(name, studentID),
		Name:      name,
		StudentID: studentID,
	}
}

// Update runs fn while holding the portal's lock.
func (p *Portal) Update(fn func(p *Portal)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	fn(p)
}

// Count returns how many requests were sent to the given endpoint.
func (p *Portal) Count(endpoint district.Endpoint) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	n := 0
	for _, r := range p.Requests {
		if r.Method == endpoint.Method && r.URL == endpoint.URL {
			n++
		}
	}
	return n
}

func (p *Portal) picker() string {
	if len(p.Students) == 0 {
		return ""
	}
	var options strings.Builder
	options.WriteString(`<select id="_ctl0_ddlStudents">`)
	for _, s := range p.Students {
		fmt.Fprintf(&options, `<option value="%s">%s</option>`, s.StudentID, s.Name)
	}
	options.WriteString(`</select>`)
	return options.String()
}

func (p *Portal) page(req transport.Request) (string, int) {
	api := district.Austin.API
	is := func(e district.Endpoint) bool {
		return req.Method == e.Method && req.URL == e.URL
	}

	switch {
	case is(api.Login.Load):
		return loginPage, http.StatusOK
	case is(api.Login.Submit):
		if req.Query.Get("txtUserName") != p.Username || req.Query.Get("txtPassword") != p.Password {
			return failedLoginPage, http.StatusOK
		}
		p.Selected = ""
		return fmt.Sprintf(homePage, p.picker()), http.StatusOK
	case is(api.SelectStudent.Submit):
		p.Selected = req.Query.Get("_ctl0:ddlStudents")
		return fmt.Sprintf(homePage, p.picker()), http.StatusOK
	case is(api.Cycle.Load) && req.Query.Has("data"):
		page, ok := p.Cycles[req.Query.Get("data")]
		if !ok {
			return "", http.StatusNotFound
		}
		return page, http.StatusOK
	case is(api.Year.Load):
		return p.Year, http.StatusOK
	case is(api.Attendance.Load):
		return p.Attendance, http.StatusOK
	}
	return "", http.StatusNotFound
}

func (p *Portal) Do(ctx context.Context, req transport.Request) (transport.Response, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.Requests = append(p.Requests, req)
	if err := ctx.Err(); err != nil {
		return transport.Response{}, &transport.TransportError{Method: req.Method, URL: req.URL, Err: err}
	}
	if p.Fail != nil {
		return transport.Response{}, &transport.TransportError{Method: req.Method, URL: req.URL, Err: p.Fail}
	}

	body, status := p.page(req)
	if status != http.StatusOK {
		return transport.Response{}, &transport.TransportError{
			Method: req.Method,
			URL:    req.URL,
			Status: status,
			Err:    fmt.Errorf("unexpected status %d", status),
		}
	}
	doc, err := dom.ParseString(body)
	if err != nil {
		return transport.Response{}, err
	}
	return transport.Response{Status: status, Body: body, Document: doc}, nil
}
