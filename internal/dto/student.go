package dto

// StudentListQuery captures the raw query string of GET /students.
type StudentListQuery struct {
	Course  string `form:"course"`
	Section string `form:"section"`
}
