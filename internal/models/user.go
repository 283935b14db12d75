package models

// UserRole represents the roles recognised by the RBAC layer.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleFamily  UserRole = "family"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleFamily:
		return true
	default:
		return false
	}
}

// User is the read-only identity behind a bearer token.
type User struct {
	ID    string   `db:"id" bson:"-" json:"id"`
	Name  string   `db:"name" bson:"name" json:"name"`
	Email string   `db:"email" bson:"email" json:"email"`
	Role  UserRole `db:"role" bson:"role" json:"role"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}
