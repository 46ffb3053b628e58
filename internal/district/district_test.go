package district

import (
	"testing"
	"time"

	"gradespeed-backend/internal/dom"
	"gradespeed-backend/internal/model"

	"github.com/stretchr/testify/require"
)

func parse(t testing.TB, src string) dom.Node {
	t.Helper()
	doc, err := dom.ParseString(src)
	require.NoError(t, err)
	return doc
}

func TestRegistry(t *testing.T) {
	austin, err := Get("austin")
	require.NoError(t, err)
	require.Equal(t, 25.0, austin.ExamWeight)
	require.Equal(t, 3, austin.ColumnOffsets.Grades)

	roundrock, err := Get("roundrock")
	require.NoError(t, err)
	require.Equal(t, 15.0, roundrock.ExamWeight)
	require.Equal(t, 1.0, roundrock.WeightedGPAOffset)
	require.True(t, roundrock.API.Cycle.RequiresYearLoaded)

	_, err = Get("dallas")
	require.Error(t, err)

	all := All()
	require.Len(t, all, 2)
	require.Equal(t, "austin", all[0].ID)
	require.Equal(t, "roundrock", all[1].ID)
}

func TestParseInputs(t *testing.T) {
	doc := parse(t, `<form>
		<input type="hidden" name="__VIEWSTATE" value="dDwtMTA"/>
		<input type="hidden" name="__EVENTVALIDATION" value="ev"/>
		<input type="text" name="txtUserName"/>
		<input type="submit" value="no name"/>
	</form>`)

	require.Equal(t, map[string]string{
		"__VIEWSTATE":       "dDwtMTA",
		"__EVENTVALIDATION": "ev",
		"txtUserName":       "",
	}, ParseInputs(doc))
}

func TestGradeSpeedDate(t *testing.T) {
	testCases := []struct {
		input    string
		now      time.Time
		expected time.Time
	}{
		{
			input:    "Jan-01",
			now:      time.Date(2014, time.October, 10, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			input:    "Sep-15",
			now:      time.Date(2014, time.October, 10, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2014, time.September, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			input:    "Sep-15",
			now:      time.Date(2015, time.March, 2, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2014, time.September, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			input:    "May-20",
			now:      time.Date(2015, time.March, 2, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2015, time.May, 20, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, test := range testCases {
		date, err := ParseGradeSpeedDate(test.input, test.now)
		require.NoError(t, err)
		require.Equal(t, test.expected, date, test.input)
	}

	for _, invalid := range []string{"", "Foo-01", "Jan-xx", "Jan 01"} {
		_, err := ParseGradeSpeedDate(invalid, time.Now())
		require.Error(t, err, invalid)
	}
}

func TestOtherDates(t *testing.T) {
	date, err := ParseSmallEndianDate("3 September 2014")
	require.NoError(t, err)
	require.Equal(t, time.Date(2014, time.September, 3, 0, 0, 0, 0, time.UTC), date)

	date, err = ParseMDYDate("9/3/2014")
	require.NoError(t, err)
	require.Equal(t, time.Date(2014, time.September, 3, 0, 0, 0, 0, time.UTC), date)
}

func TestAustinLogin(t *testing.T) {
	page := parse(t, `<form><input name="__VIEWSTATE" value="vs"/></form>`)
	require.True(t, Austin.API.Login.ValidateLoginPage(page))
	require.True(t, Austin.API.Login.ValidateAfterLogin(page))

	query := Austin.API.Login.MakeQuery("jdoe", "pw", page)
	require.Equal(t, "vs", query.Get("__VIEWSTATE"))
	require.Equal(t, "jdoe", query.Get("txtUserName"))
	require.Equal(t, "pw", query.Get("txtPassword"))
	require.Equal(t, "Log On", query.Get("btnLogOn"))
	require.Equal(t, "en", query.Get("ddlLanguage"))
}

func TestAustinStudentPicker(t *testing.T) {
	page := parse(t, `<form>
		<input name="__VIEWSTATE" value="vs"/>
		<input name="__EVENTVALIDATION" value="ev"/>
		<select id="_ctl0_ddlStudents">
			<option value="111">Doe, Jane</option>
			<option value="222">Doe, John</option>
		</select>
	</form>`)
	api := Austin.API.SelectStudent
	require.True(t, api.IsRequired(page))
	require.False(t, api.IsRequired(parse(t, `<div></div>`)))

	choices := api.GetChoices(page)
	require.Equal(t, []model.StudentChoice{
		{ID: model.SHA1("Doe, Jane|111"), Name: "Doe, Jane", StudentID: "111"},
		{ID: model.SHA1("Doe, John|222"), Name: "Doe, John", StudentID: "222"},
	}, choices)

	query := api.MakeSubmitQuery("222", page)
	require.Equal(t, "_ctl0$ddlStudents", query.Get("__EVENTTARGET"))
	require.Equal(t, "ev", query.Get("__EVENTVALIDATION"))
	require.Equal(t, "222", query.Get("_ctl0:ddlStudents"))
}

func TestRoundRockStudentPicker(t *testing.T) {
	main := parse(t, `<div id="MainContent"><a class="sg-button">Change Student</a></div>`)
	api := RoundRock.API.SelectStudent
	require.True(t, RoundRock.API.Login.ValidateAfterLogin(main))
	require.True(t, api.IsRequired(main))
	require.False(t, api.IsRequired(parse(t, `<a class="sg-button">Log Off</a>`)))

	picker := parse(t, `<form id="StudentPicker">
		<div class="sg-student-picker-row">
			<span class="sg-picker-student-name">Jane Doe</span>
			<input name="studentId" value="111"/>
		</div>
		<div class="sg-student-picker-row">
			<span class="sg-picker-student-name">John Doe</span>
			<input name="studentId" value="222"/>
		</div>
	</form>`)
	require.True(t, api.Validate(picker))
	choices := api.GetChoices(picker)
	require.Len(t, choices, 2)
	require.Equal(t, "John Doe", choices[1].Name)
	require.Equal(t, "222", choices[1].StudentID)

	query := api.MakeSubmitQuery("111", picker)
	require.Equal(t, "111", query.Get("studentId"))
	require.Equal(t, "/HomeAccess/Home/WeekView", query.Get("url"))
}

func TestAustinAttendance(t *testing.T) {
	page := parse(t, `<table class="DataTable">
		<tr class="TableHeader"><th>Date</th><th>Period</th><th>Reason</th></tr>
		<tr class="DataRow"><td>9/3/2014 Wed</td><td>2</td><td>Absent</td></tr>
		<tr class="DataRowAlt"><td></td><td>3</td><td>Tardy</td></tr>
		<tr class="DataRow"><td>9/4/2014 Thu</td><td>1</td><td>Absent</td></tr>
	</table>`)
	require.True(t, Austin.API.Attendance.Validate(page))

	events, err := Austin.API.Attendance.GetEvents(page)
	require.NoError(t, err)
	require.Len(t, events, 3)

	sep3 := time.Date(2014, time.September, 3, 0, 0, 0, 0, time.UTC)
	require.Equal(t, sep3, events[0].Date)
	require.Equal(t, 2, events[0].Block)
	require.Equal(t, sep3, events[1].Date)
	require.Equal(t, 3, events[1].Block)
	require.Equal(t, "Tardy", events[1].Explanation)
	require.Equal(t, model.AttendanceEventID(sep3, 3), events[1].ID)
	require.Equal(t, 4, events[2].Date.Day())
}

func TestRoundRockAttendance(t *testing.T) {
	page := parse(t, `<table id="plnMain_cldAttendance">
		<tr><td colspan="7"><table class="sg-asp-calendar-header"><tr>
			<td>&lt;</td><td>September 2014</td><td>&gt;</td>
		</tr></table></td></tr>
		<tr>
			<td>1</td>
			<td title="2
Absent
5
Tardy">2</td>
			<td title="">3</td>
		</tr>
	</table>`)
	require.True(t, RoundRock.API.Attendance.Validate(page))

	events, err := RoundRock.API.Attendance.GetEvents(page)
	require.NoError(t, err)
	require.Len(t, events, 2)

	sep2 := time.Date(2014, time.September, 2, 0, 0, 0, 0, time.UTC)
	require.Equal(t, model.AttendanceEvent{
		ID:          model.AttendanceEventID(sep2, 2),
		Date:        sep2,
		Block:       2,
		Explanation: "Absent",
	}, events[0])
	require.Equal(t, 5, events[1].Block)
	require.Equal(t, "Tardy", events[1].Explanation)

	_, err = RoundRock.API.Attendance.GetEvents(parse(t, `<div></div>`))
	require.Error(t, err)
}

func TestStudentInfo(t *testing.T) {
	page := parse(t, `<div class="StudentHeader">
		<span class="StudentName">Jane Doe</span>
		<div class="DistrictName"><span>018 - LASA High School</span></div>
	</div>`)
	require.Equal(t, model.StudentInfo{Name: "Jane Doe", School: "LASA High School"}, Austin.API.Year.ParseStudentInfo(page))
	require.Equal(t, model.StudentInfo{}, RoundRock.API.Year.ParseStudentInfo(parse(t, `<p></p>`)))
}
