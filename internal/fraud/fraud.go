// Package fraud computes a per-action risk score from account age,
// verification status, failure history, IP anomalies, velocity, and
// trust. Scoring is a pure function over a caller-assembled Context;
// the package never touches storage.
package fraud

import (
	"fmt"
	"time"
)

// Factor point values. The total is capped at 100.
const (
	pointsAccountUnder24h   = 20
	pointsAccountUnder7d    = 10
	pointsNeitherVerified   = 15
	pointsPhoneUnverified   = 5
	pointsPerFailedAttempt  = 10
	pointsFailedAttemptsCap = 30
	pointsFailedAcrossItems = 25
	pointsIPSharedMany      = 15
	pointsIPSharedSome      = 5
	pointsIPFirstSeen       = 5
	pointsClaimBurst        = 25
	pointsReportBurst       = 20
	pointsActionBurst       = 15
	pointsTrustSuspended    = 20
	pointsTrustNegativeCap  = 15
)

// Factor trigger thresholds.
const (
	failedItemsThreshold  = 5
	ipSharedManyThreshold = 3
	claimBurstThreshold   = 5
	reportBurstThreshold  = 10
	actionBurstThreshold  = 30
)

// BlockThreshold and FlagThreshold gate the enclosing operation.
const (
	BlockThreshold = 70
	FlagThreshold  = 40
)

// Level classifies a risk score for callers and logs.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Context carries the per-user activity counts the scorer consumes.
// Counts are assembled by the caller from storage before scoring.
type Context struct {
	AccountAge    time.Duration
	EmailVerified bool
	PhoneVerified bool
	TrustScore    int

	// Failure history.
	FailedAttempts24h  int // failed verification attempts in the last 24h
	FailedClaimItems7d int // distinct items with failed attempts in the last 7d

	// IP anomalies.
	IPSharedUsers24h int  // other accounts seen on this IP in the last 24h
	IPKnownForUser   bool // user has acted from this IP before

	// Velocity.
	ClaimsLastHour  int
	ReportsLast24h  int
	ActionsLastHour int
}

// Assessment is the scorer verdict. Factors list every contributing
// signal with its points for logs and admin review; they are never
// returned to non-admin callers.
type Assessment struct {
	Score       int      `json:"score"`
	Level       Level    `json:"level"`
	ShouldBlock bool     `json:"should_block"`
	ShouldFlag  bool     `json:"should_flag"`
	Factors     []string `json:"factors"`
}

// Score computes the risk assessment for one action.
func Score(c Context) Assessment {
	var (
		total   int
		factors []string
	)
	add := func(points int, format string, args ...any) {
		total += points
		factors = append(factors, fmt.Sprintf("%s (+%d)", fmt.Sprintf(format, args...), points))
	}

	// Account age.
	switch {
	case c.AccountAge < 24*time.Hour:
		add(pointsAccountUnder24h, "account younger than 24 hours")
	case c.AccountAge < 7*24*time.Hour:
		add(pointsAccountUnder7d, "account younger than 7 days")
	}

	// Verification status.
	switch {
	case !c.EmailVerified && !c.PhoneVerified:
		add(pointsNeitherVerified, "neither email nor phone verified")
	case !c.PhoneVerified:
		add(pointsPhoneUnverified, "phone not verified")
	}

	// Failure history.
	if c.FailedAttempts24h > 0 {
		points := c.FailedAttempts24h * pointsPerFailedAttempt
		if points > pointsFailedAttemptsCap {
			points = pointsFailedAttemptsCap
		}
		add(points, "%d failed verification attempts in 24 hours", c.FailedAttempts24h)
	}
	if c.FailedClaimItems7d >= failedItemsThreshold {
		add(pointsFailedAcrossItems, "failed attempts across %d distinct items in 7 days", c.FailedClaimItems7d)
	}

	// IP anomalies.
	switch {
	case c.IPSharedUsers24h >= ipSharedManyThreshold:
		add(pointsIPSharedMany, "IP shared with %d other accounts in 24 hours", c.IPSharedUsers24h)
	case c.IPSharedUsers24h >= 1:
		add(pointsIPSharedSome, "IP shared with %d other account(s) in 24 hours", c.IPSharedUsers24h)
	}
	if !c.IPKnownForUser {
		add(pointsIPFirstSeen, "first action from this IP")
	}

	// Velocity.
	if c.ClaimsLastHour >= claimBurstThreshold {
		add(pointsClaimBurst, "%d claims created in the last hour", c.ClaimsLastHour)
	}
	if c.ReportsLast24h >= reportBurstThreshold {
		add(pointsReportBurst, "%d reports in 24 hours", c.ReportsLast24h)
	}
	if c.ActionsLastHour >= actionBurstThreshold {
		add(pointsActionBurst, "%d actions in the last hour", c.ActionsLastHour)
	}

	// Trust.
	switch {
	case c.TrustScore < -10:
		add(pointsTrustSuspended, "trust score below suspension floor")
	case c.TrustScore < 0:
		points := -2 * c.TrustScore
		if points > pointsTrustNegativeCap {
			points = pointsTrustNegativeCap
		}
		add(points, "negative trust score %d", c.TrustScore)
	}

	if total > 100 {
		total = 100
	}

	a := Assessment{Score: total, Factors: factors}
	switch {
	case total >= BlockThreshold:
		a.Level = LevelHigh
		a.ShouldBlock = true
		a.ShouldFlag = true
	case total >= FlagThreshold:
		a.Level = LevelMedium
		a.ShouldFlag = true
	default:
		a.Level = LevelLow
	}
	return a
}
