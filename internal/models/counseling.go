package models

import "time"

// SessionType distinguishes chat counseling from in-person ("tatap muka").
type SessionType string

const (
	SessionChat     SessionType = "chat"
	SessionInPerson SessionType = "in-person"
)

// ValidSessionType reports whether the value is a known session type.
func ValidSessionType(t SessionType) bool {
	return t == SessionChat || t == SessionInPerson
}

// CounselingType labels why a session exists. Escalation bookings are
// "khusus"; student-initiated requests default to "reguler".
type CounselingType string

const (
	CounselingRegular CounselingType = "reguler"
	CounselingSpecial CounselingType = "khusus"
)

// CounselorSlot is one bookable (counselor, date, time, session-type) unit.
// At most one active reservation may claim a slot.
type CounselorSlot struct {
	ID          string      `db:"id" json:"id"`
	CounselorID string      `db:"counselor_id" json:"counselor_id"`
	Date        string      `db:"slot_date" json:"date"`
	Time        string      `db:"slot_time" json:"time"`
	SessionType SessionType `db:"session_type" json:"session_type"`
	Booked      bool        `db:"booked" json:"booked"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// AvailableSlot annotates a free slot with counselor identity for display.
type AvailableSlot struct {
	CounselorID        string      `db:"counselor_id" json:"counselor_id"`
	CounselorName      string      `db:"counselor_name" json:"counselor_name"`
	CounselorSpecialty *string     `db:"counselor_specialty" json:"counselor_specialty,omitempty"`
	Date               string      `db:"slot_date" json:"date"`
	Time               string      `db:"slot_time" json:"time"`
	SessionType        SessionType `db:"session_type" json:"session_type"`
}

// ReservationStatus tracks a counseling reservation through its lifecycle.
type ReservationStatus string

const (
	ReservationPending      ReservationStatus = "pending"
	ReservationApproved     ReservationStatus = "approved"
	ReservationRejected     ReservationStatus = "rejected"
	ReservationInCounseling ReservationStatus = "in_counseling"
	ReservationCompleted    ReservationStatus = "completed"
	ReservationCancelled    ReservationStatus = "cancelled"
)

// Active reports whether the reservation still occupies workflow capacity.
func (s ReservationStatus) Active() bool {
	switch s {
	case ReservationPending, ReservationApproved, ReservationInCounseling:
		return true
	default:
		return false
	}
}

// reservationTransitions encodes the status lattice enforced by the ledger.
var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:      {ReservationApproved, ReservationRejected},
	ReservationApproved:     {ReservationInCounseling, ReservationCompleted, ReservationCancelled},
	ReservationInCounseling: {ReservationCompleted, ReservationCancelled},
}

// CanTransitionReservation reports whether from → to is a legal move.
func CanTransitionReservation(from, to ReservationStatus) bool {
	for _, allowed := range reservationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Reservation is a booked counseling session, individual or group. Group
// reservations carry the creator in StudentID plus a member roster.
type Reservation struct {
	ID                  string            `db:"id" json:"id"`
	StudentID           string            `db:"student_id" json:"student_id"`
	CounselorID         string            `db:"counselor_id" json:"counselor_id"`
	Date                string            `db:"session_date" json:"date"`
	Time                string            `db:"session_time" json:"time"`
	SessionType         SessionType       `db:"session_type" json:"session_type"`
	CounselingType      CounselingType    `db:"counseling_type" json:"counseling_type"`
	IsGroup             bool              `db:"is_group" json:"is_group"`
	TopicID             *string           `db:"topic_id" json:"topic_id,omitempty"`
	Notes               *string           `db:"notes" json:"notes,omitempty"`
	Status              ReservationStatus `db:"status" json:"status"`
	RejectionReason     *string           `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Room                *string           `db:"room" json:"room,omitempty"`
	QRToken             *string           `db:"qr_token" json:"qr_token,omitempty"`
	AttendanceConfirmed bool              `db:"attendance_confirmed" json:"attendance_confirmed"`
	CaseID              *string           `db:"case_id" json:"case_id,omitempty"`
	CompletedAt         *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updated_at"`

	// Members holds the roster for group reservations. Populated on read.
	Members []string `db:"-" json:"members,omitempty"`
}

// ReservationFilter constrains ledger listing queries.
type ReservationFilter struct {
	StudentID   string
	CounselorID string
	CaseID      string
	Status      []ReservationStatus
	DateFrom    string
	DateTo      string
	Page        int
	PageSize    int
}
