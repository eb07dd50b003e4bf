package models

import "time"

// MatchType records which matcher rule classified a case description.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchKeyword  MatchType = "keyword"
	MatchCategory MatchType = "category"
	MatchManual   MatchType = "manual"
	MatchNone     MatchType = "none"
)

// CaseStatus tracks a disciplinary case through the escalation workflow.
type CaseStatus string

const (
	CaseStatusPending    CaseStatus = "pending"
	CaseStatusInProgress CaseStatus = "in_progress"
	CaseStatusCompleted  CaseStatus = "completed"
	CaseStatusArchived   CaseStatus = "archived"
)

// Terminal reports whether no further transitions are allowed.
func (s CaseStatus) Terminal() bool {
	return s == CaseStatusCompleted || s == CaseStatusArchived
}

// EscalationTier distinguishes light counseling from administrative review.
type EscalationTier string

const (
	TierLight  EscalationTier = "light"
	TierSevere EscalationTier = "severe"
)

// caseTransitions is the closed transition table for case statuses.
// Archival from any non-terminal state is handled separately.
var caseTransitions = map[CaseStatus][]CaseStatus{
	CaseStatusPending:    {CaseStatusInProgress, CaseStatusArchived},
	CaseStatusInProgress: {CaseStatusCompleted, CaseStatusArchived},
}

// CanTransitionCase reports whether from → to is a legal case status move.
func CanTransitionCase(from, to CaseStatus) bool {
	for _, allowed := range caseTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DisciplinaryCase is a reported incident ("pembinaan") flowing through the
// escalation workflow. Matching runs synchronously at creation; status and
// tier are mutated only by workflow transitions.
type DisciplinaryCase struct {
	ID                 string          `db:"id" json:"id"`
	ReporterRole       UserRole        `db:"reporter_role" json:"reporter_role"`
	ReporterID         string          `db:"reporter_id" json:"reporter_id"`
	StudentID          string          `db:"student_id" json:"student_id"`
	ClassID            string          `db:"class_id" json:"class_id"`
	RawDescription     string          `db:"raw_description" json:"raw_description"`
	MatchedViolationID *string         `db:"matched_violation_id" json:"matched_violation_id,omitempty"`
	MatchType          MatchType       `db:"match_type" json:"match_type"`
	MatchConfidence    int             `db:"match_confidence" json:"match_confidence"`
	MatchExplanation   string          `db:"match_explanation" json:"match_explanation"`
	Status             CaseStatus      `db:"status" json:"status"`
	EscalationTier     *EscalationTier `db:"escalation_tier" json:"escalation_tier,omitempty"`
	ReservationID      *string         `db:"reservation_id" json:"reservation_id,omitempty"`
	Recommendation     *string         `db:"recommendation" json:"recommendation,omitempty"`
	MeetingDate        *string         `db:"meeting_date" json:"meeting_date,omitempty"`
	MeetingTime        *string         `db:"meeting_time" json:"meeting_time,omitempty"`
	Resolution         *string         `db:"resolution" json:"resolution,omitempty"`
	ArchiveReason      *string         `db:"archive_reason" json:"archive_reason,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// CaseFilter constrains case listing queries.
type CaseFilter struct {
	StudentID string
	ClassID   string
	Status    []CaseStatus
	Tier      *EscalationTier
	Page      int
	PageSize  int
}
