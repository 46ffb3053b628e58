package district

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"gradespeed-backend/internal/dom"
	"gradespeed-backend/internal/model"
)

const austinBase = "https://gradespeed.austinisd.org/pc"

// Austin is Austin ISD, which serves GradeSpeed directly and logs in through
// ASP.NET postbacks.
var Austin = District{
	ID:                "austin",
	Name:              "Austin ISD",
	ExamWeight:        25,
	WeightedGPAOffset: 0,
	ColumnOffsets: ColumnOffsets{
		Title:  1,
		Period: 2,
		Grades: 3,
	},
	API: API{
		Login: LoginAPI{
			Load:               Endpoint{URL: austinBase + "/default.aspx?DistrictID=227901", Method: "GET"},
			Submit:             Endpoint{URL: austinBase + "/default.aspx?DistrictID=227901", Method: "POST"},
			ValidateLoginPage:  hasTag("form"),
			ValidateAfterLogin: hasSelector("input[name=__VIEWSTATE]"),
			MakeQuery:          austinLoginQuery,
		},
		SelectStudent: SelectStudentAPI{
			Submit:              Endpoint{URL: austinBase + "/ParentMain.aspx", Method: "POST"},
			Validate:            func(dom.Node) bool { return true },
			PickerLoadsFromAjax: false,
			IsRequired:          hasSelector("#_ctl0_ddlStudents"),
			MakeLoadQuery:       noQuery,
			MakeSubmitQuery:     austinSelectStudentQuery,
			GetChoices:          austinStudentChoices,
		},
		Year: YearAPI{
			Load:             Endpoint{URL: austinBase + "/ParentStudentGrades.aspx", Method: "GET"},
			Validate:         dataTables(1),
			MakeQuery:        func(dom.Node) url.Values { return url.Values{} },
			ParseStudentInfo: gradeSpeedStudentInfo,
		},
		Cycle: CycleAPI{
			Load:               Endpoint{URL: austinBase + "/ParentStudentGrades.aspx", Method: "GET"},
			Validate:           dataTables(2),
			RequiresYearLoaded: false,
			MakeQuery:          urlHashQuery,
		},
		Attendance: AttendanceAPI{
			Load:      Endpoint{URL: austinBase + "/ParentStudentAttend.aspx", Method: "GET"},
			Validate:  dataTables(1),
			MakeQuery: func(dom.Node) url.Values { return url.Values{} },
			GetEvents: austinAttendanceEvents,
		},
		RegisterURL:       austinBase + "/ParentSignup.aspx?DistrictID=227901",
		ForgotPasswordURL: austinBase + "/ForgotPW.aspx?DistrictID=227901",
	},
}

func austinLoginQuery(username, password string, doc dom.Node) url.Values {
	state := ParseInputs(doc)
	return url.Values{
		"__EVENTTARGET":   {""},
		"__EVENTARGUMENT": {""},
		"__LASTFOCUS":     {""},
		"__VIEWSTATE":     {state["__VIEWSTATE"]},
		"__scrollLeft":    {"0"},
		"__scrollTop":     {"0"},
		"ddlDistricts":    {""},
		"txtUserName":     {username},
		"txtPassword":     {password},
		"ddlLanguage":     {"en"},
		"btnLogOn":        {"Log On"},
	}
}

func austinSelectStudentQuery(studentID string, doc dom.Node) url.Values {
	state := ParseInputs(doc)
	return url.Values{
		"__EVENTTARGET":       {"_ctl0$ddlStudents"},
		"__EVENTARGUMENT":     {""},
		"__LASTFOCUS":         {""},
		"__VIEWSTATE":         {state["__VIEWSTATE"]},
		"__scrollLeft":        {"0"},
		"__scrollTop":         {"0"},
		"__EVENTVALIDATION":   {state["__EVENTVALIDATION"]},
		"__RUNEVENTTARGET":    {""},
		"__RUNEVENTARGUMENT":  {""},
		"__RUNEVENTARGUMENT2": {""},
		"_ctl0:ddlStudents":   {studentID},
	}
}

func austinStudentChoices(doc dom.Node) []model.StudentChoice {
	var choices []model.StudentChoice
	for _, option := range doc.Find("#_ctl0_ddlStudents option") {
		name := option.Text()
		studentID := dom.AttrOr(option, "value", "")
		choices = append(choices, model.StudentChoice{
			ID:        choiceID(name, studentID),
			Name:      name,
			StudentID: studentID,
		})
	}
	return choices
}

// the date is only written on the first row of each day
func austinAttendanceEvents(doc dom.Node) ([]model.AttendanceEvent, error) {
	tables := doc.FindClass("DataTable")
	if len(tables) == 0 {
		return nil, nil
	}

	var events []model.AttendanceEvent
	var currentDate time.Time
	for _, row := range tables[0].FindTag("tr") {
		if !dom.HasClass(row, "DataRow") && !dom.HasClass(row, "DataRowAlt") {
			continue
		}
		cells := row.FindTag("td")
		if len(cells) < 3 {
			continue
		}
		if text := cells[0].Text(); text != "" {
			first, _, _ := strings.Cut(text, " ")
			date, err := ParseMDYDate(first)
			if err != nil {
				return nil, err
			}
			currentDate = date
		}
		if currentDate.IsZero() {
			continue
		}
		block, err := strconv.Atoi(cells[1].Text())
		if err != nil {
			continue
		}
		events = append(events, model.AttendanceEvent{
			ID:          model.AttendanceEventID(currentDate, block),
			Date:        currentDate,
			Block:       block,
			Explanation: cells[2].Text(),
		})
	}
	return events, nil
}
