package models

// UserRole represents the available roles for the RBAC system. Tokens are
// issued by the platform's auth service; this API only consumes them.
type UserRole string

const (
	RoleAdmin          UserRole = "ADMIN"
	RoleCounselor      UserRole = "BK"
	RoleStudentAffairs UserRole = "KESISWAAN"
	RoleTeacher        UserRole = "TEACHER"
	RoleStudent        UserRole = "STUDENT"
)

// Counselor is the BK staff member owning bookable slots.
type Counselor struct {
	ID        string  `db:"id" json:"id"`
	FullName  string  `db:"full_name" json:"full_name"`
	Specialty *string `db:"specialty" json:"specialty,omitempty"`
	Active    bool    `db:"active" json:"active"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
