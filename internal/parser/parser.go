// Package parser turns GradeSpeed pages into the grade tree of the model
// package. Garbled cells degrade to NaN rather than failing the page, only a
// page that is missing its tables entirely is an error.
package parser

import (
	"encoding/base64"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"gradespeed-backend/internal/calc"
	"gradespeed-backend/internal/components/assert"
	"gradespeed-backend/internal/components/chrono"
	"gradespeed-backend/internal/components/telemetry"
	"gradespeed-backend/internal/district"
	"gradespeed-backend/internal/dom"
	"gradespeed-backend/internal/gradevalue"
	"gradespeed-backend/internal/model"
)

const (
	report_parser_parse_year       = "parser.parse-year"
	report_parser_parse_cycle      = "parser.parse-cycle"
	report_parser_parse_category   = "parser.parse-category"
	report_parser_parse_assignment = "parser.parse-assignment"
	report_parser_find_course_num  = "parser.find-course-num"
)

var (
	extraCreditRegex     = regexp.MustCompile(`(?i)^extra credit$|^ec$`)
	extraCreditNoteRegex = regexp.MustCompile(`(?i)extra credit`)
	gradeCellURLRegex    = regexp.MustCompile(`\?data=([\w\d%]*)`)

	cycleHeaderRegex    = regexp.MustCompile(`(?i)^cycle (\d+)$`)
	examHeaderRegex     = regexp.MustCompile(`(?i)^exam (\d+)$`)
	semesterHeaderRegex = regexp.MustCompile(`(?i)^semester (\d+)$`)

	cumulativeGPARegex = regexp.MustCompile(`(?i)cumulative gpa`)
	digitsRegex        = regexp.MustCompile(`\d+`)

	classNameRegex       = regexp.MustCompile(`(.*) \(Period (\d+)\)`)
	categoryNameRegex    = regexp.MustCompile(`^(.*) - (\d+)%$`)
	altCategoryNameRegex = regexp.MustCompile(`^(.*) - Each assignment counts (\d+)`)
)

type Parser struct {
	district district.District
	clock    chrono.API
	tel      telemetry.API
}

func NewParser(d district.District, clock chrono.API, tel telemetry.API) Parser {
	assert.NotEmptyStr(d.ID)
	assert.NotNil(clock)
	assert.NotNil(tel)
	return Parser{
		district: d,
		clock:    clock,
		tel:      telemetry.NewScopedAPI("parser", tel),
	}
}

// SemesterParams describes the layout of the year table, it is derived from
// the header row because schools configure GradeSpeed differently.
type SemesterParams struct {
	Semesters           int
	CyclesPerSemester   int
	HasExams            bool
	HasSemesterAverages bool
}

// cellsPerSemester is the number of columns a single semester occupies.
func (p SemesterParams) cellsPerSemester() int {
	n := p.CyclesPerSemester
	if p.HasExams {
		n++
	}
	if p.HasSemesterAverages {
		n++
	}
	return n
}

// ParseSemesterParams reads "Cycle N", "Exam N" and "Semester N" header
// cells. Cycles are numbered across the whole year so the highest cycle
// number is divided among the semesters, which are counted from either the
// exam or the semester average columns.
func ParseSemesterParams(headerCells []dom.Node) SemesterParams {
	var params SemesterParams
	totalCycles := 0
	for _, cell := range headerCells {
		text := cell.Text()
		if m := cycleHeaderRegex.FindStringSubmatch(text); m != nil {
			totalCycles = max(totalCycles, atoi(m[1]))
			continue
		}
		if m := examHeaderRegex.FindStringSubmatch(text); m != nil {
			params.HasExams = true
			params.Semesters = max(params.Semesters, atoi(m[1]))
			continue
		}
		if m := semesterHeaderRegex.FindStringSubmatch(text); m != nil {
			params.HasSemesterAverages = true
			params.Semesters = max(params.Semesters, atoi(m[1]))
		}
	}
	params.Semesters = max(params.Semesters, 1)
	params.CyclesPerSemester = totalCycles / params.Semesters
	return params
}

// CheckForLetterGrades scans grade cells in order and reports whether a
// letter grade shows up before a numeric one.
func (p Parser) CheckForLetterGrades(rows []dom.Node) bool {
	for _, row := range rows {
		cells := row.FindTag("td")
		for i := p.district.ColumnOffsets.Grades; i < len(cells); i++ {
			text := cells[i].Text()
			if gradevalue.IsLetter(text) {
				return true
			}
			if digitsRegex.MatchString(text) {
				return false
			}
		}
	}
	return false
}

// FindCourseNum decodes the data token of the first grade link in a course
// row. The token is a url-encoded base64 string of "|" separated fields, the
// fourth of which is the course number. It returns "" when the course has
// never been graded.
func (p Parser) FindCourseNum(cells []dom.Node) string {
	for i := p.district.ColumnOffsets.Grades; i < len(cells); i++ {
		link := dom.First(cells[i], "a")
		if link == nil {
			continue
		}
		href := dom.AttrOr(link, "href", "")
		token, err := linkToken(href)
		if err != nil {
			p.tel.ReportWarning(report_parser_find_course_num, err, href)
			return ""
		}
		courseNum, err := decodeCourseNum(token)
		if err != nil {
			p.tel.ReportWarning(report_parser_find_course_num, err, href)
			return ""
		}
		return courseNum
	}
	return ""
}

// linkToken returns the unescaped data token of a grade link.
func linkToken(href string) (string, error) {
	m := gradeCellURLRegex.FindStringSubmatch(href)
	if m == nil {
		return "", fmt.Errorf("link without data token")
	}
	token, err := url.PathUnescape(m[1])
	if err != nil {
		return "", fmt.Errorf("unescape data token: %w", err)
	}
	return token, nil
}

func decodeCourseNum(token string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(token, "="))
		if err != nil {
			return "", fmt.Errorf("decode data token: %w", err)
		}
	}
	fields := strings.Split(string(decoded), "|")
	if len(fields) < 4 {
		return "", fmt.Errorf("data token has %d fields", len(fields))
	}
	return fields[3], nil
}

// ParseStudentInfo reads the student's name and school off the year page.
func (p Parser) ParseStudentInfo(doc dom.Node) model.StudentInfo {
	if p.district.API.Year.ParseStudentInfo == nil {
		return model.StudentInfo{}
	}
	return p.district.API.Year.ParseStudentInfo(doc)
}

// HasYearTable reports whether the page carries the year summary table,
// cycle pages only do on some districts.
func HasYearTable(doc dom.Node) bool {
	tables := doc.FindClass("DataTable")
	if len(tables) == 0 {
		return false
	}
	for _, cell := range tables[0].Find("tr.TableHeader th, tr.TableHeader td") {
		if cycleHeaderRegex.MatchString(cell.Text()) {
			return true
		}
	}
	return false
}

// ParseYear parses the summary table of every course.
func (p Parser) ParseYear(doc dom.Node) (model.Grades, error) {
	tables := doc.FindClass("DataTable")
	if len(tables) == 0 {
		err := fmt.Errorf("grade table not found")
		p.tel.ReportBroken(report_parser_parse_year, err)
		return model.Grades{}, err
	}
	table := tables[0]

	var headerCells []dom.Node
	var rows []dom.Node
	for _, row := range table.FindTag("tr") {
		if dom.HasClass(row, "TableHeader") {
			if headerCells == nil {
				headerCells = row.FindTag("th")
				if len(headerCells) == 0 {
					headerCells = row.FindTag("td")
				}
			}
			continue
		}
		if !dom.HasClass(row, "DataRow") && !dom.HasClass(row, "DataRowAlt") {
			continue
		}
		cells := row.FindTag("td")
		if len(cells) > 0 && cumulativeGPARegex.MatchString(cells[0].Text()) {
			continue
		}
		rows = append(rows, row)
	}
	if headerCells == nil {
		err := fmt.Errorf("grade table header not found")
		p.tel.ReportBroken(report_parser_parse_year, err)
		return model.Grades{}, err
	}

	params := ParseSemesterParams(headerCells)
	usesLetterGrades := p.CheckForLetterGrades(rows)

	courses := make([]model.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, p.parseCourse(row, params, usesLetterGrades))
	}

	return model.Grades{
		LastUpdated:         p.clock.Now(),
		UsesLetterGrades:    usesLetterGrades,
		HasExams:            params.HasExams,
		HasSemesterAverages: params.HasSemesterAverages,
		Courses:             courses,
	}, nil
}

func cellAt(cells []dom.Node, i int) dom.Node {
	if i < 0 || i >= len(cells) {
		return nil
	}
	return cells[i]
}

func textAt(cells []dom.Node, i int) string {
	cell := cellAt(cells, i)
	if cell == nil {
		return ""
	}
	return cell.Text()
}

func (p Parser) parseCourse(row dom.Node, params SemesterParams, usesLetterGrades bool) model.Course {
	offsets := p.district.ColumnOffsets
	cells := row.FindTag("td")

	course := model.Course{
		Title:  textAt(cells, offsets.Title),
		Period: int(gradevalue.ParseInt(textAt(cells, offsets.Period))),
	}
	if courseNum := p.FindCourseNum(cells); courseNum != "" {
		course.ID = model.SHA1(courseNum)
	}
	if teacher := dom.First(row, ".EmailLink"); teacher != nil {
		course.TeacherName = teacher.Text()
		course.TeacherEmail = strings.TrimPrefix(dom.AttrOr(teacher, "href", ""), "mailto:")
	}

	perSemester := params.cellsPerSemester()
	course.Semesters = make([]model.Semester, params.Semesters)
	for i := 0; i < params.Semesters; i++ {
		offset := offsets.Grades + i*perSemester

		cycleCells := make([]dom.Node, params.CyclesPerSemester)
		for j := range cycleCells {
			cycleCells[j] = cellAt(cells, offset+j)
		}

		var examCell, averageCell dom.Node
		next := offset + params.CyclesPerSemester
		if params.HasExams {
			examCell = cellAt(cells, next)
			next++
		}
		if params.HasSemesterAverages {
			averageCell = cellAt(cells, next)
		}

		course.Semesters[i] = p.parseSemester(cycleCells, examCell, averageCell, usesLetterGrades)
	}

	return course
}

func (p Parser) parseSemester(cycleCells []dom.Node, examCell, averageCell dom.Node, usesLetterGrades bool) model.Semester {
	semester := model.Semester{
		ExamGrade: math.NaN(),
		Average:   math.NaN(),
		Cycles:    make([]model.Cycle, len(cycleCells)),
	}
	for i, cell := range cycleCells {
		semester.Cycles[i] = p.parseCycleInYear(cell)
	}

	if examCell != nil {
		switch text := examCell.Text(); text {
		case "":
		case "EX", "Exc":
			semester.ExamIsExempt = true
		default:
			semester.ExamGrade = gradevalue.ParseInt(text)
		}
	}

	parsedAverage := math.NaN()
	if averageCell != nil {
		parsedAverage = gradevalue.ParseInt(averageCell.Text())
	}
	// gradespeed's own semester average is sometimes wrong so it is only
	// trusted for letter grades or when there is nothing to compute from
	semester.Average = parsedAverage
	if !usesLetterGrades {
		if computed := calc.SemesterAverage(semester, p.district.ExamWeight); !math.IsNaN(computed) {
			semester.Average = computed
		}
	}

	return semester
}

func (p Parser) parseCycleInYear(cell dom.Node) model.Cycle {
	cycle := model.Cycle{Average: math.NaN()}
	if cell == nil {
		return cycle
	}
	link := dom.First(cell, "a")
	if link == nil {
		return cycle
	}

	cycle.Average = gradevalue.ParseInt(link.Text())
	urlHash, err := linkToken(dom.AttrOr(link, "href", ""))
	if err != nil {
		p.tel.ReportWarning(report_parser_parse_year, err)
		return cycle
	}
	cycle.URLHash = urlHash
	return cycle
}

// ParseCycle parses a cycle's detail page.
func (p Parser) ParseCycle(doc dom.Node, urlHash string) (model.Cycle, error) {
	classNameNode := dom.First(doc, "h3.ClassName")
	if classNameNode == nil {
		err := fmt.Errorf("class name not found")
		p.tel.ReportBroken(report_parser_parse_cycle, err, urlHash)
		return model.Cycle{}, err
	}
	title := classNameNode.Text()
	if m := classNameRegex.FindStringSubmatch(title); m != nil {
		title = m[1]
	}

	average := math.NaN()
	if averageNode := dom.First(doc, ".CurrentAverage"); averageNode != nil {
		if digits := digitsRegex.FindString(averageNode.Text()); digits != "" {
			average = gradevalue.ParseInt(digits)
		}
	}

	names := doc.Find("span.CategoryName")
	tables := doc.FindClass("DataTable")
	if len(tables) > 0 {
		tables = tables[1:]
	}
	if len(names) != len(tables) {
		p.tel.ReportWarning(
			report_parser_parse_cycle,
			fmt.Sprintf("%d category names but %d category tables", len(names), len(tables)),
			urlHash,
		)
	}

	categories := []model.Category{}
	for i := 0; i < min(len(names), len(tables)); i++ {
		categories = append(categories, p.ParseCategory(names[i], tables[i], urlHash))
	}

	return model.Cycle{
		URLHash:          urlHash,
		Title:            title,
		Average:          average,
		UsesLetterGrades: checkAssignmentLetterGrades(doc.FindClass("AssignmentGrade")),
		Categories:       categories,
	}, nil
}

func checkAssignmentLetterGrades(grades []dom.Node) bool {
	for _, g := range grades {
		text := g.Text()
		if gradevalue.IsLetter(text) {
			return true
		}
		if digitsRegex.MatchString(text) {
			return false
		}
	}
	return false
}

// ParseCategory parses one category table of a cycle page, name is the
// header holding "<title> - <weight>%" or "<title> - Each assignment counts <weight>".
func (p Parser) ParseCategory(name dom.Node, table dom.Node, urlHash string) model.Category {
	text := name.Text()
	title := text
	weight := 1.0
	m := categoryNameRegex.FindStringSubmatch(text)
	if m == nil {
		m = altCategoryNameRegex.FindStringSubmatch(text)
	}
	if m != nil {
		title = m[1]
		weight = gradevalue.ParseInt(m[2])
	} else {
		p.tel.ReportWarning(report_parser_parse_category, "unknown category header format", text)
	}

	id := model.HashID(urlHash, title)
	is100Pt := !dom.Exists(table, "td.AssignmentPointsPossible")

	var assignments []model.Assignment
	rows := table.FindTag("tr")
	for _, row := range rows {
		if !dom.HasClass(row, "DataRow") && !dom.HasClass(row, "DataRowAlt") {
			continue
		}
		assignments = append(assignments, p.ParseAssignment(row, is100Pt, id))
	}

	average := math.NaN()
	if len(rows) > 0 {
		cells := rows[len(rows)-1].FindTag("td")
		for i, cell := range cells {
			if strings.Contains(cell.Text(), "Average") {
				average = gradevalue.ParseFloat(textAt(cells, i+1))
				break
			}
		}
	}
	if math.IsNaN(average) {
		average = calc.CategoryAverage(assignments)
	}

	return model.Category{
		ID:          id,
		Title:       title,
		Weight:      weight,
		Average:     average,
		Bonus:       calc.CategoryBonuses(assignments),
		Assignments: assignments,
	}
}

// ParseAssignment parses an assignment row, every field is found by its
// class name. Grades written as "<earned>x<weight>" carry their own weight
// within the category.
func (p Parser) ParseAssignment(row dom.Node, is100Pt bool, categoryID string) model.Assignment {
	field := func(class string) string {
		node := dom.First(row, "."+class)
		if node == nil {
			return ""
		}
		return node.Text()
	}

	title := field("AssignmentName")
	note := field("AssignmentNote")

	ptsPossible := 100.0
	if !is100Pt {
		ptsPossible = gradevalue.ParseInt(field("AssignmentPointsPossible"))
	}
	ptsEarned, weight := parseEarned(field("AssignmentGrade"))

	return model.Assignment{
		ID:           model.HashID(categoryID, title),
		Title:        title,
		DateDue:      p.parseDate(field("DateDue")),
		DateAssigned: p.parseDate(field("DateAssigned")),
		PtsEarned:    ptsEarned,
		PtsPossible:  ptsPossible,
		Weight:       weight,
		Note:         note,
		ExtraCredit:  extraCreditRegex.MatchString(title) || extraCreditNoteRegex.MatchString(note),
	}
}

func parseEarned(text string) (earned, weight float64) {
	if text == "Exc" {
		return math.NaN(), 1
	}
	earnedText, weightText, found := strings.Cut(text, "x")
	if !found {
		return gradevalue.ParseFloat(text), 1
	}
	earned = gradevalue.ParseFloat(earnedText)
	weight = gradevalue.ParseFloat(weightText)
	if math.IsNaN(earned) && math.IsNaN(weight) {
		return math.NaN(), 1
	}
	if math.IsNaN(weight) {
		weight = 1
	}
	return earned, weight
}

func (p Parser) parseDate(text string) (out time.Time) {
	if text == "" {
		return out
	}
	date, err := district.ParseGradeSpeedDate(text, p.clock.Now())
	if err != nil {
		p.tel.ReportWarning(report_parser_parse_assignment, err)
		return out
	}
	return date
}
