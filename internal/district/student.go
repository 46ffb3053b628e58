package district

import (
	"strings"

	"gradespeed-backend/internal/dom"
	"gradespeed-backend/internal/model"
)

// gradeSpeedStudentInfo reads the banner at the top of a GradeSpeed grade
// page, the school is shown as "<campus number> - <school name>".
func gradeSpeedStudentInfo(doc dom.Node) model.StudentInfo {
	var info model.StudentInfo
	if name := dom.First(doc, ".StudentName"); name != nil {
		info.Name = name.Text()
	}
	if school := dom.First(doc, ".DistrictName span"); school != nil {
		text := school.Text()
		if _, after, found := strings.Cut(text, "-"); found {
			text = after
		}
		info.School = strings.TrimSpace(text)
	}
	return info
}
