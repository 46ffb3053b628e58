package model

import "slices"

func (c Category) Clone() Category {
	c.Assignments = slices.Clone(c.Assignments)
	return c
}

func (c Cycle) Clone() Cycle {
	c.ChangedGrades = slices.Clone(c.ChangedGrades)
	if c.Categories != nil {
		categories := make([]Category, len(c.Categories))
		for i, cat := range c.Categories {
			categories[i] = cat.Clone()
		}
		c.Categories = categories
	}
	return c
}

func (s Semester) Clone() Semester {
	if s.Cycles != nil {
		cycles := make([]Cycle, len(s.Cycles))
		for i, c := range s.Cycles {
			cycles[i] = c.Clone()
		}
		s.Cycles = cycles
	}
	return s
}

func (c Course) Clone() Course {
	if c.Semesters != nil {
		semesters := make([]Semester, len(c.Semesters))
		for i, s := range c.Semesters {
			semesters[i] = s.Clone()
		}
		c.Semesters = semesters
	}
	return c
}

func (g Grades) Clone() Grades {
	g.ChangedGrades = slices.Clone(g.ChangedGrades)
	if g.Courses != nil {
		courses := make([]Course, len(g.Courses))
		for i, c := range g.Courses {
			courses[i] = c.Clone()
		}
		g.Courses = courses
	}
	return g
}

func (s Student) Clone() Student {
	s.Grades = s.Grades.Clone()
	s.Attendance.Events = slices.Clone(s.Attendance.Events)
	s.GPAData.WeightedCourses = slices.Clone(s.GPAData.WeightedCourses)
	s.GPAData.ElectiveCourses = slices.Clone(s.GPAData.ElectiveCourses)
	return s
}

func (a Account) Clone() Account {
	if a.Students != nil {
		students := make([]Student, len(a.Students))
		for i, s := range a.Students {
			students[i] = s.Clone()
		}
		a.Students = students
	}
	return a
}
