package model

import (
	"time"

	"github.com/google/uuid"
)

// ClaimStatus enumerates claim lifecycle states.
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"
	ClaimVerified  ClaimStatus = "verified"
	ClaimRejected  ClaimStatus = "rejected"
	ClaimReturned  ClaimStatus = "returned"
	ClaimDisputed  ClaimStatus = "disputed"
	ClaimCancelled ClaimStatus = "cancelled"
	ClaimExpired   ClaimStatus = "expired"
)

// ClaimOpenStatuses are the states that count against the one-claim-
// per-(lost, found, claimant) uniqueness rule. Rejected claims are
// closed for uniqueness purposes but remain disputable.
var ClaimOpenStatuses = []ClaimStatus{ClaimPending, ClaimVerified, ClaimDisputed}

// Open reports whether the status counts as a live claim for the
// uniqueness rule.
func (s ClaimStatus) Open() bool {
	for _, open := range ClaimOpenStatuses {
		if s == open {
			return true
		}
	}
	return false
}

// Disputable reports whether a dispute may be opened from this status.
func (s ClaimStatus) Disputable() bool {
	switch s {
	case ClaimPending, ClaimVerified, ClaimRejected:
		return true
	}
	return false
}

// claimTransitions is the admissible state transition table. Guards
// (ownership, cooldowns, caps) are enforced by the claims service; this
// table only rules on state pairs.
var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimPending:  {ClaimVerified, ClaimCancelled, ClaimExpired, ClaimDisputed},
	ClaimVerified: {ClaimReturned, ClaimCancelled, ClaimDisputed},
	ClaimRejected: {ClaimDisputed},
	ClaimDisputed: {ClaimVerified, ClaimRejected, ClaimPending},
}

// ValidClaimTransition reports whether from → to is admissible.
func ValidClaimTransition(from, to ClaimStatus) bool {
	for _, next := range claimTransitions[from] {
		if to == next {
			return true
		}
	}
	return false
}

// Claim is a claimant's assertion that a found item matches their lost
// item. Rows are mutated only by the claims state machine.
type Claim struct {
	ID                  uuid.UUID    `json:"id"`
	LostItemID          uuid.UUID    `json:"lost_item_id"`
	FoundItemID         uuid.UUID    `json:"found_item_id"`
	ClaimantID          uuid.UUID    `json:"claimant_id"`
	Status              ClaimStatus  `json:"status"`
	VerificationScore   float64      `json:"verification_score"`
	AttemptsMade        int          `json:"attempts_made"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	NextAttemptAt       *time.Time   `json:"next_attempt_at,omitempty"`
	StatusBeforeDispute *ClaimStatus `json:"-"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// AttemptStatus enumerates verification attempt outcomes.
type AttemptStatus string

const (
	AttemptPassed AttemptStatus = "passed"
	AttemptFailed AttemptStatus = "failed"
)

// VerificationAttempt is one append-only verification attempt record.
// This is the single attempts log; no parallel table exists.
type VerificationAttempt struct {
	ID             uuid.UUID     `json:"id"`
	ClaimID        uuid.UUID     `json:"claim_id"`
	UserID         uuid.UUID     `json:"user_id"`
	CorrectAnswers int           `json:"correct_answers"`
	Status         AttemptStatus `json:"status"`
	IP             string        `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
}

// HandoverConfirmation is the single-use OTP gate bound to a verified
// claim. OTPSalt and OTPHash never leave the storage boundary; the
// plaintext code is returned exactly once at mint time.
type HandoverConfirmation struct {
	ID          uuid.UUID  `json:"id"`
	ClaimID     uuid.UUID  `json:"claim_id"`
	OTPSalt     []byte     `json:"-"`
	OTPHash     []byte     `json:"-"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Verified    bool       `json:"verified"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	RedeemedBy  *uuid.UUID `json:"redeemed_by,omitempty"`
	RedeemedAt  *time.Time `json:"redeemed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AttemptsRemaining reports how many redemption attempts are left.
func (h HandoverConfirmation) AttemptsRemaining() int {
	remaining := h.MaxAttempts - h.Attempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DisputeStatus enumerates dispute lifecycle states.
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

// DisputeResolution enumerates operator rulings on a dispute.
type DisputeResolution string

const (
	ResolvedOwner  DisputeResolution = "resolved_owner"
	ResolvedFinder DisputeResolution = "resolved_finder"
	Dismissed      DisputeResolution = "dismissed"
)

// ValidDisputeResolution reports whether r is a member of the closed set.
func ValidDisputeResolution(r DisputeResolution) bool {
	switch r {
	case ResolvedOwner, ResolvedFinder, Dismissed:
		return true
	}
	return false
}

// Dispute forks a claim out of its normal lifecycle until an operator
// rules on it. At most one open dispute exists per claim.
type Dispute struct {
	ID         uuid.UUID          `json:"id"`
	ClaimID    uuid.UUID          `json:"claim_id"`
	OpenedBy   uuid.UUID          `json:"opened_by"`
	Reason     string             `json:"reason"`
	Status     DisputeStatus      `json:"status"`
	Resolution *DisputeResolution `json:"resolution,omitempty"`
	ResolvedBy *uuid.UUID         `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// ScamReportStatus enumerates scam report lifecycle states.
type ScamReportStatus string

const (
	ScamReportOpen      ScamReportStatus = "open"
	ScamReportConfirmed ScamReportStatus = "confirmed"
	ScamReportDismissed ScamReportStatus = "dismissed"
)

// ScamReport is a user-filed accusation reviewed by an operator.
type ScamReport struct {
	ID             uuid.UUID        `json:"id"`
	ReporterID     uuid.UUID        `json:"reporter_id"`
	ReportedUserID uuid.UUID        `json:"reported_user_id"`
	ClaimID        *uuid.UUID       `json:"claim_id,omitempty"`
	Reason         string           `json:"reason"`
	Status         ScamReportStatus `json:"status"`
	ResolvedBy     *uuid.UUID       `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ClaimMessage is a message between claim participants. Flagging is
// applied once at ingest when the body pairs a payment term with a
// conditional term; flagged messages are still delivered.
type ClaimMessage struct {
	ID        uuid.UUID `json:"id"`
	ClaimID   uuid.UUID `json:"claim_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	Flagged   bool      `json:"flagged"`
	FlagTerms []string  `json:"flag_terms,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEvent is a best-effort operational audit record.
type AuditEvent struct {
	ID         uuid.UUID      `json:"id"`
	ActorID    *uuid.UUID     `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   *uuid.UUID     `json:"entity_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IP         string         `json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
}
