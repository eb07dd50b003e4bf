package models

import "time"

// ViolationCategory groups catalog entries by the school rulebook chapters.
type ViolationCategory string

const (
	CategoryAttendance      ViolationCategory = "ATTENDANCE"
	CategoryUniform         ViolationCategory = "UNIFORM"
	CategoryPersonalConduct ViolationCategory = "PERSONAL_CONDUCT"
	CategoryOrder           ViolationCategory = "ORDER"
	CategoryHealth          ViolationCategory = "HEALTH"
)

// ValidViolationCategory reports whether the value is a known category.
func ValidViolationCategory(c ViolationCategory) bool {
	switch c {
	case CategoryAttendance, CategoryUniform, CategoryPersonalConduct, CategoryOrder, CategoryHealth:
		return true
	default:
		return false
	}
}

// ViolationDefinition is a weighted entry in the school violation catalog.
// Entries referenced by historical cases are never hard-deleted; the catalog
// is refreshed through bulk import from the document-extraction collaborator.
type ViolationDefinition struct {
	ID          string            `db:"id" json:"id"`
	Name        string            `db:"name" json:"name"`
	Category    ViolationCategory `db:"category" json:"category"`
	Weight      int               `db:"weight" json:"weight"`
	Description *string           `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// ViolationFilter constrains catalog listing queries.
type ViolationFilter struct {
	Category ViolationCategory
	Search   string
	Page     int
	PageSize int
}

// ImportSummary reports the outcome of a bulk catalog import.
type ImportSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}
