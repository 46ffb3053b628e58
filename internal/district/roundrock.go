package district

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"gradespeed-backend/internal/dom"
	"gradespeed-backend/internal/model"
)

const (
	roundRockAccessCenter = "https://accesscenter.roundrockisd.org/HomeAccess"
	roundRockGradebook    = "https://gradebook.roundrockisd.org/pc"
)

// RoundRock is Round Rock ISD, which logs in through Home Access Center and
// proxies GradeSpeed behind it.
var RoundRock = District{
	ID:                "roundrock",
	Name:              "Round Rock ISD",
	ExamWeight:        15,
	WeightedGPAOffset: 1,
	ColumnOffsets: ColumnOffsets{
		Title:  0,
		Period: 1,
		Grades: 2,
	},
	API: API{
		Login: LoginAPI{
			Load:               Endpoint{URL: roundRockAccessCenter + "/Account/LogOn?ReturnUrl=%2fhomeaccess%2f", Method: "GET"},
			Submit:             Endpoint{URL: roundRockAccessCenter + "/Account/LogOn?ReturnUrl=%2fhomeaccess%2f", Method: "POST"},
			ValidateLoginPage:  hasTag("form"),
			ValidateAfterLogin: hasSelector("#MainContent"),
			MakeQuery:          roundRockLoginQuery,
		},
		SelectStudent: SelectStudentAPI{
			Load:                Endpoint{URL: roundRockAccessCenter + "/Frame/StudentPicker", Method: "GET"},
			Submit:              Endpoint{URL: roundRockAccessCenter + "/Frame/StudentPicker", Method: "POST"},
			Validate:            hasSelector("form#StudentPicker"),
			PickerLoadsFromAjax: true,
			IsRequired:          roundRockPickerRequired,
			MakeLoadQuery:       noQuery,
			MakeSubmitQuery:     roundRockSelectStudentQuery,
			GetChoices:          roundRockStudentChoices,
		},
		Year: YearAPI{
			Load:             Endpoint{URL: roundRockAccessCenter + "/content/student/gradespeed.aspx?target=https://gradebook.roundrockisd.org/pc/displaygrades.aspx", Method: "GET"},
			Validate:         dataTables(1),
			MakeQuery:        noQuery,
			ParseStudentInfo: gradeSpeedStudentInfo,
		},
		Cycle: CycleAPI{
			Load:               Endpoint{URL: roundRockGradebook + "/displaygrades.aspx", Method: "GET"},
			Validate:           dataTables(2),
			RequiresYearLoaded: true,
			MakeQuery:          urlHashQuery,
		},
		Attendance: AttendanceAPI{
			Load:      Endpoint{URL: roundRockAccessCenter + "/Content/Attendance/MonthlyView.aspx", Method: "GET"},
			Validate:  hasSelector("table#plnMain_cldAttendance"),
			MakeQuery: noQuery,
			GetEvents: roundRockAttendanceEvents,
		},
		RegisterURL:       roundRockAccessCenter + "/Content/Register/Default2.aspx",
		ForgotPasswordURL: roundRockAccessCenter + "/Content/Register/ForgotCredentials.aspx",
	},
}

func roundRockLoginQuery(username, password string, _ dom.Node) url.Values {
	return url.Values{
		"Database":              {"10"},
		"LogOnDetails.UserName": {username},
		"LogOnDetails.Password": {password},
	}
}

func roundRockPickerRequired(doc dom.Node) bool {
	for _, button := range doc.FindClass("sg-button") {
		if strings.Contains(button.Text(), "Change Student") {
			return true
		}
	}
	return false
}

func roundRockSelectStudentQuery(studentID string, _ dom.Node) url.Values {
	return url.Values{
		"studentId": {studentID},
		"url":       {"/HomeAccess/Home/WeekView"},
	}
}

func roundRockStudentChoices(doc dom.Node) []model.StudentChoice {
	var choices []model.StudentChoice
	for _, row := range doc.FindClass("sg-student-picker-row") {
		nameNode := dom.First(row, ".sg-picker-student-name")
		idNode := dom.First(row, "input[name=studentId]")
		if nameNode == nil || idNode == nil {
			continue
		}
		name := nameNode.Text()
		studentID := dom.AttrOr(idNode, "value", "")
		choices = append(choices, model.StudentChoice{
			ID:        choiceID(name, studentID),
			Name:      name,
			StudentID: studentID,
		})
	}
	return choices
}

var calendarDay = regexp.MustCompile(`^\d+$`)

// the calendar marks each day with a title of alternating block and
// explanation lines
func roundRockAttendanceEvents(doc dom.Node) ([]model.AttendanceEvent, error) {
	calendar := dom.First(doc, "table#plnMain_cldAttendance")
	if calendar == nil {
		return nil, fmt.Errorf("attendance calendar not found")
	}
	header := calendar.Find("table.sg-asp-calendar-header td")
	if len(header) < 2 {
		return nil, fmt.Errorf("attendance calendar header not found")
	}
	month := header[1].Text()

	var events []model.AttendanceEvent
	for _, cell := range calendar.FindTag("td") {
		day := cell.Text()
		if !calendarDay.MatchString(day) {
			continue
		}
		title, ok := cell.Attr("title")
		if !ok {
			continue
		}
		date, err := ParseSmallEndianDate(day + " " + month)
		if err != nil {
			return nil, err
		}

		lines := strings.Split(strings.ReplaceAll(title, "\r", ""), "\n")
		for i := 0; i < len(lines); i += 2 {
			block, err := strconv.Atoi(strings.TrimSpace(lines[i]))
			if err != nil {
				continue
			}
			explanation := ""
			if i+1 < len(lines) {
				explanation = strings.TrimSpace(lines[i+1])
			}
			events = append(events, model.AttendanceEvent{
				ID:          model.AttendanceEventID(date, block),
				Date:        date,
				Block:       block,
				Explanation: explanation,
			})
		}
	}
	return events, nil
}
