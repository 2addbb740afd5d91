package model

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the access role assigned to a user account.
type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleCoopStaff Role = "coop_staff"
	RoleAdmin     Role = "admin"
)

// ValidRole reports whether r is a member of the closed role set.
func ValidRole(r Role) bool {
	switch r {
	case RoleCitizen, RoleCoopStaff, RoleAdmin:
		return true
	}
	return false
}

// TrustScoreMin and TrustScoreMax bound the materialized trust score.
const (
	TrustScoreMin = -100
	TrustScoreMax = 100
)

// BanFloor is the trust score at or below which a user is banned
// automatically on the next ledger write.
const BanFloor = -10

// BanReasonLowTrust is the ban reason recorded by the automatic ban.
const BanReasonLowTrust = "low trust"

// ClampTrust clamps a raw delta sum into the valid trust score range.
// The materialized score is always the clamp of the unclamped sum, so
// a deeply negative user recovers from the raw sum, not from -100.
func ClampTrust(sum int) int {
	if sum < TrustScoreMin {
		return TrustScoreMin
	}
	if sum > TrustScoreMax {
		return TrustScoreMax
	}
	return sum
}

// CrossedBanFloor reports whether a ledger write moved the clamped
// score from above the ban floor to at or below it.
func CrossedBanFloor(pre, post int) bool {
	return pre > BanFloor && post <= BanFloor
}

// User is a registered account. PasswordHash is the argon2id verifier
// and never leaves the storage/auth boundary.
type User struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	Phone         *string    `json:"phone,omitempty"`
	PasswordHash  string     `json:"-"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	TrustScore    int        `json:"trust_score"`
	EmailVerified bool       `json:"email_verified"`
	PhoneVerified bool       `json:"phone_verified"`
	IsBanned      bool       `json:"is_banned"`
	BanReason     *string    `json:"ban_reason,omitempty"`
	CooperativeID *uuid.UUID `json:"cooperative_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Cooperative is a registered transport cooperative whose staff can
// receive found items on behalf of passengers.
type Cooperative struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// TrustEvent is one append-only entry in a user's trust ledger.
// NewScore is the clamped materialized score after the delta applied.
type TrustEvent struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	NewScore  int       `json:"new_score"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAction is a lightweight activity record powering velocity checks
// and tier caps. Action values are free-form verb strings owned by the
// writers ("claim_created", "lost_item_created", ...).
type UserAction struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Action    string    `json:"action"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Action verbs recorded in user_actions.
const (
	ActionClaimCreated     = "claim_created"
	ActionClaimVerify      = "claim_verify"
	ActionLostItemCreated  = "lost_item_created"
	ActionFoundItemCreated = "found_item_created"
	ActionScamReportFiled  = "scam_report_filed"
	ActionHandoverRedeem   = "handover_redeem"
)

// ValidateEmail checks the address shape and length. The stored form
// is always lowercased by the caller.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 255 {
		return fmt.Errorf("email must be at most 255 characters")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("email is not a valid address")
	}
	return nil
}

// NormalizePhone canonicalizes a Rwandan mobile number to +2507XXXXXXXX.
// Accepts local (07XXXXXXXX) and international (2507...; +2507...) forms.
func NormalizePhone(phone string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' || r == ' ' || r == '-':
			// separators and the leading plus are dropped
		default:
			return "", fmt.Errorf("phone contains invalid character %q", r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10 && strings.HasPrefix(d, "07"):
		d = "250" + d[1:]
	case len(d) == 12 && strings.HasPrefix(d, "2507"):
		// already international
	default:
		return "", fmt.Errorf("phone must be a Rwandan mobile number (07XXXXXXXX)")
	}
	return "+" + d, nil
}

// ValidateName checks the display name bounds.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	if len(trimmed) > 100 {
		return fmt.Errorf("name must be at most 100 characters")
	}
	return nil
}

// ValidatePassword enforces the password policy. The upper bound keeps
// the adaptive hash cost bounded against oversized inputs.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return fmt.Errorf("password must be at most 128 characters")
	}
	return nil
}
