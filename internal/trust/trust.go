// Package trust owns the append-only trust ledger semantics: the
// authoritative delta constants, the derived permission tiers, and the
// recompute check that proves the materialized score against the log.
package trust

// Authoritative trust score deltas. Every ledger write uses one of
// these paired with its Reason constant; free-form deltas are reserved
// for operator tooling.
const (
	DeltaSuccessfulReturnFinder = 3
	DeltaSuccessfulReturnOwner  = 2
	DeltaEmailVerified          = 1
	DeltaPhoneVerified          = 2
	DeltaFailedVerification     = -2
	DeltaRepeatedFailedClaims   = -5
	DeltaScamReported           = -5
	DeltaScamConfirmed          = -20
	DeltaFalseScamReport        = -3
	DeltaAccurateReport         = 1
)

// Human-readable ledger reasons, paired with the deltas above.
const (
	ReasonSuccessfulReturnFinder = "successful return (finder)"
	ReasonSuccessfulReturnOwner  = "successful return (owner)"
	ReasonEmailVerified          = "email verified"
	ReasonPhoneVerified          = "phone verified"
	ReasonFailedVerification     = "failed verification attempt"
	ReasonRepeatedFailedClaims   = "pattern of multiple failed claims"
	ReasonScamReported           = "scam reported"
	ReasonScamConfirmed          = "scam confirmed"
	ReasonFalseScamReport        = "false scam report"
	ReasonAccurateReport         = "accurate report confirmed"
)

// Tier is the derived permission band. Tiers are computed from the
// current score on demand and never stored.
type Tier string

const (
	TierSuspended   Tier = "suspended"
	TierRestricted  Tier = "restricted"
	TierNew         Tier = "new"
	TierEstablished Tier = "established"
	TierTrusted     Tier = "trusted"
)

// TierFor maps a trust score to its permission tier.
func TierFor(score int) Tier {
	switch {
	case score < -10:
		return TierSuspended
	case score < 0:
		return TierRestricted
	case score < 5:
		return TierNew
	case score < 15:
		return TierEstablished
	default:
		return TierTrusted
	}
}

// ClaimCap returns the rolling 24h limit on claim creations for the tier.
func (t Tier) ClaimCap() int {
	switch t {
	case TierSuspended:
		return 0
	case TierRestricted:
		return 1
	case TierNew:
		return 3
	case TierEstablished:
		return 5
	case TierTrusted:
		return 7
	default:
		return 0
	}
}

// ReportCap returns the rolling 24h limit on item publications and scam
// reports for the tier.
func (t Tier) ReportCap() int {
	switch t {
	case TierSuspended:
		return 0
	case TierRestricted:
		return 1
	case TierNew:
		return 3
	case TierEstablished:
		return 5
	case TierTrusted:
		return 10
	default:
		return 0
	}
}
