package fraud_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byaboneka/byaboneka/internal/fraud"
)

// established is a baseline context that scores zero: old account,
// both channels verified, known IP, no history.
func established() fraud.Context {
	return fraud.Context{
		AccountAge:     90 * 24 * time.Hour,
		EmailVerified:  true,
		PhoneVerified:  true,
		TrustScore:     10,
		IPKnownForUser: true,
	}
}

// ---- Individual factors ----------------------------------------------------

func TestScoreBaselineIsZero(t *testing.T) {
	a := fraud.Score(established())
	assert.Equal(t, 0, a.Score)
	assert.Equal(t, fraud.LevelLow, a.Level)
	assert.False(t, a.ShouldBlock)
	assert.False(t, a.ShouldFlag)
	assert.Empty(t, a.Factors)
}

func TestScoreNewAccount(t *testing.T) {
	c := established()
	c.AccountAge = 2 * time.Hour
	a := fraud.Score(c)
	assert.Equal(t, 20, a.Score)

	c.AccountAge = 3 * 24 * time.Hour
	a = fraud.Score(c)
	assert.Equal(t, 10, a.Score)
}

func TestScoreVerificationStatus(t *testing.T) {
	c := established()
	c.EmailVerified = false
	c.PhoneVerified = false
	assert.Equal(t, 15, fraud.Score(c).Score)

	c.EmailVerified = true
	assert.Equal(t, 5, fraud.Score(c).Score)
}

func TestScoreFailedAttemptsCapped(t *testing.T) {
	c := established()
	c.FailedAttempts24h = 2
	assert.Equal(t, 20, fraud.Score(c).Score)

	// 6 failures would be 60 points uncapped; the factor caps at 30.
	c.FailedAttempts24h = 6
	assert.Equal(t, 30, fraud.Score(c).Score)
}

func TestScoreFailedAcrossManyItems(t *testing.T) {
	c := established()
	c.FailedClaimItems7d = 5
	assert.Equal(t, 25, fraud.Score(c).Score)

	c.FailedClaimItems7d = 4
	assert.Equal(t, 0, fraud.Score(c).Score)
}

func TestScoreIPAnomalies(t *testing.T) {
	c := established()
	c.IPSharedUsers24h = 3
	assert.Equal(t, 15, fraud.Score(c).Score)

	c.IPSharedUsers24h = 1
	assert.Equal(t, 5, fraud.Score(c).Score)

	c.IPSharedUsers24h = 0
	c.IPKnownForUser = false
	assert.Equal(t, 5, fraud.Score(c).Score)
}

func TestScoreVelocity(t *testing.T) {
	c := established()
	c.ClaimsLastHour = 5
	assert.Equal(t, 25, fraud.Score(c).Score)

	c = established()
	c.ReportsLast24h = 10
	assert.Equal(t, 20, fraud.Score(c).Score)

	c = established()
	c.ActionsLastHour = 30
	assert.Equal(t, 15, fraud.Score(c).Score)
}

func TestScoreTrustFactors(t *testing.T) {
	c := established()
	c.TrustScore = -12
	assert.Equal(t, 20, fraud.Score(c).Score)

	c.TrustScore = -3
	assert.Equal(t, 6, fraud.Score(c).Score)

	// 2·|score| capped at 15.
	c.TrustScore = -9
	assert.Equal(t, 15, fraud.Score(c).Score)
}

// ---- Thresholds ------------------------------------------------------------

func TestScoreFlagThreshold(t *testing.T) {
	c := established()
	c.AccountAge = 1 * time.Hour // +20
	c.EmailVerified = false
	c.PhoneVerified = false  // +15
	c.IPKnownForUser = false // +5
	a := fraud.Score(c)
	require.Equal(t, 40, a.Score)
	assert.Equal(t, fraud.LevelMedium, a.Level)
	assert.True(t, a.ShouldFlag)
	assert.False(t, a.ShouldBlock)
}

func TestScoreBlockThreshold(t *testing.T) {
	c := established()
	c.AccountAge = 1 * time.Hour // +20
	c.EmailVerified = false
	c.PhoneVerified = false  // +15
	c.IPKnownForUser = false // +5
	c.FailedAttempts24h = 3  // +30
	a := fraud.Score(c)
	require.Equal(t, 70, a.Score)
	assert.Equal(t, fraud.LevelHigh, a.Level)
	assert.True(t, a.ShouldBlock)
	assert.True(t, a.ShouldFlag)
}

func TestScoreCappedAt100(t *testing.T) {
	c := fraud.Context{
		AccountAge:         time.Minute,
		TrustScore:         -50,
		FailedAttempts24h:  10,
		FailedClaimItems7d: 8,
		IPSharedUsers24h:   5,
		ClaimsLastHour:     9,
		ReportsLast24h:     20,
		ActionsLastHour:    50,
	}
	a := fraud.Score(c)
	assert.Equal(t, 100, a.Score)
	assert.True(t, a.ShouldBlock)
}

func TestScoreFactorsCarryPoints(t *testing.T) {
	c := established()
	c.FailedAttempts24h = 2
	a := fraud.Score(c)
	require.Len(t, a.Factors, 1)
	assert.Contains(t, a.Factors[0], "failed verification attempts")
	assert.Contains(t, a.Factors[0], "(+20)")
}

// ---- Message flagging ------------------------------------------------------

func TestFlagMessageRequiresBothTermKinds(t *testing.T) {
	flagged, terms := fraud.FlagMessage("Send the money first and I will tell you where it is")
	require.True(t, flagged)
	assert.Contains(t, terms, "money")
	assert.Contains(t, terms, "first")
}

func TestFlagMessagePaymentOnlyNotFlagged(t *testing.T) {
	flagged, terms := fraud.FlagMessage("I found your wallet with some money inside")
	assert.False(t, flagged)
	assert.Nil(t, terms)
}

func TestFlagMessageConditionalOnlyNotFlagged(t *testing.T) {
	flagged, _ := fraud.FlagMessage("Meet me first at the Kimironko taxi park")
	assert.False(t, flagged)
}

func TestFlagMessageKinyarwandaTerms(t *testing.T) {
	flagged, terms := fraud.FlagMessage("Nzaguha telefone niba ushaka kumpa amafaranga")
	require.True(t, flagged)
	assert.Contains(t, terms, "amafaranga")
	assert.Contains(t, terms, "niba ushaka")
}

func TestFlagMessageWordBoundaries(t *testing.T) {
	// "repay" must not match "pay"; "firstly" must not match "first".
	flagged, _ := fraud.FlagMessage("I will repay you firstly with gratitude")
	assert.False(t, flagged)
}

func TestFlagMessageCaseInsensitive(t *testing.T) {
	flagged, _ := fraud.FlagMessage("PAY me FIRST")
	assert.True(t, flagged)
}
