package models

import "regexp"

// StudentCodePattern is the format of student enrolment codes, e.g. ABC-12-345.
var StudentCodePattern = regexp.MustCompile(`^[A-Z]{3}-\d{2}-\d{3}$`)

// Student represents a learner registered in a course and section.
type Student struct {
	ID       string `db:"id" bson:"-" json:"id"`
	Name     string `db:"name" bson:"name" json:"name"`
	Course   int    `db:"course" bson:"course" json:"course"`
	Section  string `db:"section" bson:"section" json:"section"`
	Code     string `db:"code" bson:"code" json:"code"`
	CodeUsed bool   `db:"code_used" bson:"codeUsed" json:"codeUsed"`
}

// Ref returns the projection joined onto attendance reads.
func (s Student) Ref() StudentRef {
	return StudentRef{Name: s.Name, Course: s.Course, Section: s.Section, Code: s.Code}
}

// StudentFilter restricts directory listings. Zero values mean "no constraint".
type StudentFilter struct {
	Course  *int
	Section string
}
