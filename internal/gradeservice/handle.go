package gradeservice

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"gradespeed-backend/internal/calc"
	"gradespeed-backend/internal/components/telemetry"
	"gradespeed-backend/internal/district"
	"gradespeed-backend/internal/model"
	"gradespeed-backend/internal/retriever"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handle is one logged in account and student. Loads through the same handle
// are serialized, reads return copies of the cache.
type Handle struct {
	service   *Service
	district  district.District
	accountID string
	studentID string
	retriever *retriever.Retriever
	tel       telemetry.API

	mutex sync.Mutex
}

// swapSession replaces the retriever once loads in flight have finished.
func (h *Handle) swapSession(r *retriever.Retriever, tel telemetry.API) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.retriever = r
	h.tel = tel
}

func (h *Handle) AccountID() string {
	return h.accountID
}

func (h *Handle) StudentID() string {
	return h.studentID
}

func (h *Handle) District() district.District {
	return h.district
}

func (h *Handle) Account() (model.Account, error) {
	return h.service.account(h.accountID)
}

func (h *Handle) Student() (model.Student, error) {
	return h.service.student(h.accountID, h.studentID)
}

// GradesYear returns the stored grades.
func (h *Handle) GradesYear() (model.Grades, error) {
	student, err := h.Student()
	if err != nil {
		return model.Grades{}, err
	}
	return student.Grades, nil
}

// GradesCycle returns the stored cycle with the given url hash.
func (h *Handle) GradesCycle(urlHash string) (model.Cycle, error) {
	student, err := h.Student()
	if err != nil {
		return model.Cycle{}, err
	}
	cycle := student.Grades.FindCycle(urlHash)
	if cycle == nil {
		return model.Cycle{}, fmt.Errorf("%w: %s", ErrUnknownCycle, urlHash)
	}
	return *cycle, nil
}

func (h *Handle) Attendance() (model.Attendance, error) {
	student, err := h.Student()
	if err != nil {
		return model.Attendance{}, err
	}
	return student.Attendance, nil
}

func (h *Handle) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("district", h.district.ID),
		attribute.String("student", h.studentID),
	))
}

// mergeYear diffs fresh year grades against the student's and merges them
// in, returning what changed.
func (h *Handle) mergeYear(student *model.Student, fresh model.Grades) ([]model.GradeChange, error) {
	old := student.Grades
	changes := h.service.augmenter.DiffYear(old.Courses, fresh.Courses)
	courses, err := h.service.augmenter.AugmentYear(old.Courses, fresh.Courses)
	if err != nil {
		return nil, err
	}

	fresh.Courses = courses
	fresh.LastUpdated = h.service.clock.Now()
	fresh.ChangedGrades = append(slices.Clone(old.ChangedGrades), changes...)
	student.Grades = fresh

	h.tel.ReportCount(report_handle_grade_change, int64(len(changes)))
	return changes, nil
}

type YearUpdate struct {
	Grades  model.Grades
	Changes []model.GradeChange
}

// LoadGradesYear scrapes the year page and stores the merged grades.
func (h *Handle) LoadGradesYear(ctx context.Context) (update YearUpdate, err error) {
	ctx, span := h.startSpan(ctx, "LoadGradesYear")
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	h.mutex.Lock()
	defer h.mutex.Unlock()

	result, err := h.retriever.GetYear(ctx)
	if err != nil {
		h.tel.ReportWarning(report_handle_load_year, err)
		return YearUpdate{}, err
	}

	student, err := h.Student()
	if err != nil {
		return YearUpdate{}, err
	}
	changes, err := h.mergeYear(&student, result.Grades)
	if err != nil {
		h.tel.ReportBroken(report_handle_load_year, err)
		return YearUpdate{}, err
	}
	if result.Student.Name != "" {
		student.Name = result.Student.Name
	}
	if result.Student.School != "" {
		student.School = result.Student.School
	}

	err = h.service.saveStudent(ctx, h.accountID, student)
	if err != nil {
		h.tel.ReportBroken(report_handle_load_year, err)
		return YearUpdate{}, err
	}
	return YearUpdate{Grades: student.Grades, Changes: changes}, nil
}

type CycleUpdate struct {
	Cycle   model.Cycle
	Changes []model.GradeChange
	// Grades and YearChanges are only set when the cycle page also carried
	// the year table.
	Grades      *model.Grades
	YearChanges []model.GradeChange
}

// LoadGradesCycle scrapes a cycle's detail page and stores it in place of
// the summary cycle.
func (h *Handle) LoadGradesCycle(ctx context.Context, urlHash string) (update CycleUpdate, err error) {
	ctx, span := h.startSpan(ctx, "LoadGradesCycle")
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	h.mutex.Lock()
	defer h.mutex.Unlock()

	result, err := h.retriever.GetCycle(ctx, urlHash)
	if err != nil {
		h.tel.ReportWarning(report_handle_load_cycle, err, urlHash)
		return CycleUpdate{}, err
	}

	student, err := h.Student()
	if err != nil {
		return CycleUpdate{}, err
	}

	if result.Grades != nil {
		update.YearChanges, err = h.mergeYear(&student, *result.Grades)
		if err != nil {
			h.tel.ReportBroken(report_handle_load_cycle, err)
			return CycleUpdate{}, err
		}
		update.Grades = &student.Grades
	}

	stored := student.Grades.FindCycle(urlHash)
	if stored == nil {
		return CycleUpdate{}, fmt.Errorf("%w: %s", ErrUnknownCycle, urlHash)
	}

	fresh := result.Cycle
	// the first detail load is the baseline, not a batch of new grades
	if stored.Categories != nil {
		update.Changes = h.service.augmenter.DiffCycle(*stored, fresh)
	}
	fresh.LastUpdated = h.service.clock.Now()
	fresh.ChangedGrades = append(slices.Clone(stored.ChangedGrades), update.Changes...)
	*stored = fresh

	err = h.service.saveStudent(ctx, h.accountID, student)
	if err != nil {
		h.tel.ReportBroken(report_handle_load_cycle, err)
		return CycleUpdate{}, err
	}
	update.Cycle = fresh
	return update, nil
}

// LoadAttendance scrapes the attendance page, carrying over the read flag of
// events that were already known.
func (h *Handle) LoadAttendance(ctx context.Context) (events []model.AttendanceEvent, err error) {
	ctx, span := h.startSpan(ctx, "LoadAttendance")
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	h.mutex.Lock()
	defer h.mutex.Unlock()

	fresh, err := h.retriever.GetAttendance(ctx)
	if err != nil {
		h.tel.ReportWarning(report_handle_load_attend, err)
		return nil, err
	}

	student, err := h.Student()
	if err != nil {
		return nil, err
	}
	model.SortAttendanceEvents(student.Attendance.Events)
	student.Attendance.Events = h.service.augmenter.AugmentAttendanceEvents(student.Attendance.Events, fresh)
	student.Attendance.LastUpdated = h.service.clock.Now()

	err = h.service.saveStudent(ctx, h.accountID, student)
	if err != nil {
		h.tel.ReportBroken(report_handle_load_attend, err)
		return nil, err
	}
	return slices.Clone(student.Attendance.Events), nil
}

// update applies fn to a copy of the student and stores the result.
func (h *Handle) update(ctx context.Context, fn func(student *model.Student)) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	student, err := h.Student()
	if err != nil {
		return err
	}
	fn(&student)
	return h.service.saveStudent(ctx, h.accountID, student)
}

// MarkRead acknowledges grade changes and attendance events by id, it
// returns how many were marked.
func (h *Handle) MarkRead(ctx context.Context, ids ...string) (int, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	marked := 0
	markChanges := func(changes []model.GradeChange) {
		for i := range changes {
			if wanted[changes[i].ID] && !changes[i].Read {
				changes[i].Read = true
				marked++
			}
		}
	}

	err := h.update(ctx, func(student *model.Student) {
		markChanges(student.Grades.ChangedGrades)
		for ci := range student.Grades.Courses {
			course := &student.Grades.Courses[ci]
			for si := range course.Semesters {
				for yi := range course.Semesters[si].Cycles {
					markChanges(course.Semesters[si].Cycles[yi].ChangedGrades)
				}
			}
		}
		for i := range student.Attendance.Events {
			event := &student.Attendance.Events[i]
			if wanted[event.ID] && !event.Read {
				event.Read = true
				marked++
			}
		}
	})
	return marked, err
}

// Unread returns every grade change that has not been marked read yet.
func (h *Handle) Unread() ([]model.GradeChange, error) {
	student, err := h.Student()
	if err != nil {
		return nil, err
	}
	var out []model.GradeChange
	collect := func(changes []model.GradeChange) {
		for _, c := range changes {
			if !c.Read {
				out = append(out, c)
			}
		}
	}
	collect(student.Grades.ChangedGrades)
	for _, course := range student.Grades.Courses {
		for _, cycle := range course.AllCycles() {
			collect(cycle.ChangedGrades)
		}
	}
	return out, nil
}

func (h *Handle) SetStudentPrefs(ctx context.Context, prefs model.StudentPrefs) error {
	return h.update(ctx, func(student *model.Student) {
		student.Preferences = prefs
	})
}

func (h *Handle) SetGPAData(ctx context.Context, data model.GPAData) error {
	return h.update(ctx, func(student *model.Student) {
		student.GPAData = data
	})
}

type GPA struct {
	Weighted   float64
	Unweighted float64
}

// GPA computes the student's gpa from the stored grades. Elective courses do
// not count and earlier semesters are folded in from the gpa data.
func (h *Handle) GPA() (GPA, error) {
	student, err := h.Student()
	if err != nil {
		return GPA{}, err
	}
	data := student.GPAData

	courses := slices.DeleteFunc(slices.Clone(student.Grades.Courses), func(c model.Course) bool {
		return calc.InList(c, data.ElectiveCourses)
	})
	semesters := calc.GradedSemesters(courses)

	unweighted := calc.UnweightedGPA(courses)
	weighted := calc.WeightedGPA(courses, data.WeightedCourses, h.district.WeightedGPAOffset+1)

	return GPA{
		Weighted:   calc.CumulativeGPA(data.PrevGPA, data.NumPrevSemesters, weighted, semesters),
		Unweighted: calc.CumulativeGPA(data.PrevGPA, data.NumPrevSemesters, unweighted, semesters),
	}, nil
}
