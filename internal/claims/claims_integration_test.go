package claims_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byaboneka/byaboneka/internal/claims"
	"github.com/byaboneka/byaboneka/internal/fraud"
	"github.com/byaboneka/byaboneka/internal/handover"
	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/secrets"
	"github.com/byaboneka/byaboneka/internal/storage"
	"github.com/byaboneka/byaboneka/internal/testutil"
	"github.com/byaboneka/byaboneka/internal/trust"
)

var testDB *storage.DB

const testIP = "203.0.113.7"

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "claims_test: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func newService(t *testing.T) *claims.Service {
	t.Helper()
	logger := testutil.TestLogger()
	return claims.New(testDB, secrets.NewStore(testDB), fraud.NewGate(testDB, logger), logger)
}

func newHandover(t *testing.T) *handover.Service {
	t.Helper()
	logger := testutil.TestLogger()
	return handover.New(testDB, fraud.NewGate(testDB, logger), logger)
}

var userSeq int

func createUser(t *testing.T, role model.Role) model.User {
	t.Helper()
	userSeq++
	u, err := testDB.CreateUser(context.Background(), model.User{
		Email:         fmt.Sprintf("user%d@example.rw", userSeq),
		PasswordHash:  "x",
		Name:          fmt.Sprintf("User %d", userSeq),
		Role:          role,
		EmailVerified: true,
		PhoneVerified: true,
	})
	require.NoError(t, err)
	return u
}

func answers() []string {
	return []string{"blue cover", "mtn momo sticker", "cracked corner"}
}

func createPair(t *testing.T, owner, finder model.User) (model.LostItem, model.FoundItem) {
	t.Helper()
	ctx := context.Background()

	set, err := secrets.BuildSet([]model.QAPair{
		{Question: "What color is the cover?", Answer: "Blue cover"},
		{Question: "What sticker is on the back?", Answer: "MTN MoMo sticker"},
		{Question: "What damage does it have?", Answer: "Cracked corner"},
	})
	require.NoError(t, err)

	lost, err := testDB.CreateLostItem(ctx, model.LostItem{
		UserID:       owner.ID,
		Category:     model.CategoryPhone,
		Title:        "Black Samsung A14",
		Description:  "Lost on bus from Remera",
		LocationArea: "remera",
		LostDate:     time.Now().UTC().Add(-6 * time.Hour),
		Keywords:     []string{"black", "samsung", "a14"},
	}, set)
	require.NoError(t, err)

	found, err := testDB.CreateFoundItem(ctx, model.FoundItem{
		UserID:       finder.ID,
		Category:     model.CategoryPhone,
		Title:        "Samsung phone",
		Description:  "Found under a seat",
		LocationArea: "remera",
		FoundDate:    time.Now().UTC().Add(-2 * time.Hour),
		Keywords:     []string{"samsung", "phone"},
	})
	require.NoError(t, err)
	return lost, found
}

func openClaim(t *testing.T, svc *claims.Service, owner model.User, lost model.LostItem, found model.FoundItem) model.Claim {
	t.Helper()
	claim, err := svc.Open(context.Background(), owner, model.OpenClaimRequest{
		LostItemID:  lost.ID,
		FoundItemID: found.ID,
	}, testIP)
	require.NoError(t, err)
	return claim
}

func TestOpenClaimGuards(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	owner := createUser(t, model.RoleCitizen)
	finder := createUser(t, model.RoleCitizen)
	lost, found := createPair(t, owner, finder)

	// The finder cannot claim against someone else's lost item.
	_, err := svc.Open(ctx, finder, model.OpenClaimRequest{LostItemID: lost.ID, FoundItemID: found.ID}, testIP)
	assert.Equal(t, model.KindForbidden, model.KindOf(err))

	claim := openClaim(t, svc, owner, lost, found)
	assert.Equal(t, model.ClaimPending, claim.Status)

	// Second live claim on the same pair is a conflict.
	_, err = svc.Open(ctx, owner, model.OpenClaimRequest{LostItemID: lost.ID, FoundItemID: found.ID}, testIP)
	assert.Equal(t, model.KindConflict, model.KindOf(err))
}

func TestQuestionsOnlyForClaimant(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	owner := createUser(t, model.RoleCitizen)
	finder := createUser(t, model.RoleCitizen)
	lost, found := createPair(t, owner, finder)
	claim := openClaim(t, svc, owner, lost, found)

	qs, err := svc.Questions(ctx, owner, claim.ID)
	require.NoError(t, err)
	assert.Len(t, qs.Questions, 3)
	assert.Equal(t, "What color is the cover?", qs.Questions[0])

	_, err = svc.Questions(ctx, finder, claim.ID)
	assert.Equal(t, model.KindForbidden, model.KindOf(err))
}

func TestQuestionsBlockedAtDailyAttemptCap(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	owner := createUser(t, model.RoleCitizen)
	finder := createUser(t, model.RoleCitizen)
	lost, found := createPair(t, owner, finder)
	claim := openClaim(t, svc, owner, lost, found)

	// Burn the whole daily budget.
	err := testDB.WithClaimTx(ctx, claim.ID, func(ct *storage.ClaimTx) error {
		for i := 0; i < claims.DailyAttemptCap; i++ {
			if _, err := ct.AppendAttempt(ctx, model.VerificationAttempt{
				UserID:         owner.ID,
				CorrectAnswers: 1,
				Status:         model.AttemptFailed,
				IP:             testIP,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	_, err = svc.Questions(ctx, owner, claim.ID)
	assert.Equal(t, model.KindRateLimited, model.KindOf(err))
}

func TestHighRiskAccountsCannotVerifyOrRedeem(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	ho := newHandover(t)

	// Unverified fresh accounts; this test keeps its IPs to itself so
	// the risk score is fully determined by what it seeds.
	newRisky := func(label string) model.User {
		u, err := testDB.CreateUser(ctx, model.User{
			Email:        fmt.Sprintf("risky-%s@example.rw", label),
			PasswordHash: "x",
			Name:         "Risky " + label,
			Role:         model.RoleCitizen,
		})
		require.NoError(t, err)
		return u
	}
	owner := newRisky("owner")
	finder := newRisky("finder")
	lost, found := createPair(t, owner, finder)

	claim, err := svc.Open(ctx, owner, model.OpenClaimRequest{
		LostItemID:  lost.ID,
		FoundItemID: found.ID,
	}, "192.0.2.61")
	require.NoError(t, err)

	// A failure streak plus a scam penalty pushes both accounts past
	// the block threshold.
	err = testDB.WithClaimTx(ctx, claim.ID, func(ct *storage.ClaimTx) error {
		for _, uid := range []uuid.UUID{owner.ID, finder.ID} {
			for i := 0; i < 3; i++ {
				if _, err := ct.AppendAttempt(ctx, model.VerificationAttempt{
					UserID:         uid,
					CorrectAnswers: 0,
					Status:         model.AttemptFailed,
					IP:             "192.0.2.61",
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	require.NoError(t, err)
	_, err = testDB.ApplyTrustDelta(ctx, owner.ID, trust.DeltaScamConfirmed, trust.ReasonScamConfirmed)
	require.NoError(t, err)
	_, err = testDB.ApplyTrustDelta(ctx, finder.ID, trust.DeltaScamConfirmed, trust.ReasonScamConfirmed)
	require.NoError(t, err)
	owner, err = testDB.GetUser(ctx, owner.ID)
	require.NoError(t, err)
	finder, err = testDB.GetUser(ctx, finder.ID)
	require.NoError(t, err)

	// Verification is refused before any answer is graded.
	_, err = svc.Verify(ctx, owner, claim.ID, model.VerifyClaimRequest{Answers: answers()}, "192.0.2.62")
	assert.Equal(t, model.KindBlocked, model.KindOf(err))

	// Redemption is refused before the claim state is even consulted.
	_, err = ho.Redeem(ctx, finder, claim.ID, "000000", "192.0.2.62")
	assert.Equal(t, model.KindBlocked, model.KindOf(err))

	got, err := testDB.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimPending, got.Status)
}

func TestVerifyPassMovesClaimAndItems(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	owner := createUser(t, model.RoleCitizen)
	finder := createUser(t, model.RoleCitizen)
	lost, found := createPair(t, owner, finder)
	claim := openClaim(t, svc, owner, lost, found)

	// Two of three correct passes; casing and punctuation are forgiven.
	resp, err := svc.Verify(ctx, owner, claim.ID, model.VerifyClaimRequest{
		Answers: []string{"BLUE cover!", "mtn momo sticker", "wrong"},
	}, testIP)
	require.NoError(t, err)
	assert.True(t, resp.Passed)
	assert.Equal(t, 2, resp.Score)
	assert.Equal(t, model.ClaimVerified, resp.Status)

	gotLost, err := testDB.GetLostItem(ctx, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LostClaimed, gotLost.Status)
	gotFound, err := testDB.GetFoundItem(ctx, found.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FoundMatched, gotFound.Status)
}

func TestVerifyFailureCooldownAndTrustPenalty(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	owner := createUser(t, model.RoleCitizen)
	finder := createUser(t, model.RoleCitizen)
	lost, found := createPair(t, owner, finder)
	claim := openClaim(t, svc, owner, lost, found)

	resp, err := svc.Verify(ctx, owner, claim.ID, model.VerifyClaimRequest{
		Answers: []string{"wrong", "also wrong", "blue cover"},
	}, testIP)
	require.NoError(t, err)
	assert.False(t, resp.Passed)
	assert.Equal(t, 1, resp.Score)
	require.NotNil(t, resp.NextAttemptAt)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), *resp.NextAttemptAt, time.Minute)

	// The failed attempt costs trust.
	gotOwner, err := testDB.GetUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, -2, gotOwner.TrustScore)

	// A retry inside the cooldown is rejected before grading.
	_, err = svc.Verify(ctx, owner, claim.ID, model.VerifyClaimRequest{Answers: answers()}, testIP)
	assert.Equal(t, model.KindCooldown, model.KindOf(err))
	appErr, ok := model.AsError(err)
	require.True(t, ok)
	assert.False(t, appErr.RetryAt.IsZero())
}

func TestCancelVerifiedClaimReleasesItems(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	owner := createUser(t, model.RoleCitizen)
	finder := createUser(t, model.RoleCitizen)
	lost, found := createPair(t, owner, finder)
	claim := openClaim(t, svc, owner, lost, found)

	_, err := svc.Verify(ctx, owner, claim.ID, model.VerifyClaimRequest{Answers: answers()}, testIP)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, owner, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimCancelled, cancelled.Status)

	gotLost, err := testDB.GetLostItem(ctx, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LostActive, gotLost.Status)
	gotFound, err := testDB.GetFoundItem(ctx, found.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FoundUnclaimed, gotFound.Status)
}

func TestDisputeLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	owner := createUser(t, model.RoleCitizen)
	finder := createUser(t, model.RoleCitizen)
	admin := createUser(t, model.RoleAdmin)
	lost, found := createPair(t, owner, finder)
	claim := openClaim(t, svc, owner, lost, found)

	dispute, err := svc.OpenDispute(ctx, finder, claim.ID, "Claimant described a different phone in chat")
	require.NoError(t, err)

	got, err := testDB.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimDisputed, got.Status)

	resolved, err := svc.ResolveDispute(ctx, admin, dispute.ID, model.ResolvedFinder)
	require.NoError(t, err)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, model.ResolvedFinder, *resolved.Resolution)

	got, err = testDB.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimRejected, got.Status)

	gotOwner, err := testDB.GetUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, -5, gotOwner.TrustScore)

	gotLost, err := testDB.GetLostItem(ctx, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LostActive, gotLost.Status)
}

func TestMessagesFlaggedAtIngest(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	owner := createUser(t, model.RoleCitizen)
	finder := createUser(t, model.RoleCitizen)
	lost, found := createPair(t, owner, finder)
	claim := openClaim(t, svc, owner, lost, found)

	msg, err := svc.PostMessage(ctx, finder, claim.ID, "Pay me 5000 RWF first before I give you the phone")
	require.NoError(t, err)
	assert.True(t, msg.Flagged)
	assert.NotEmpty(t, msg.FlagTerms)

	clean, err := svc.PostMessage(ctx, owner, claim.ID, "Thank you! Can we meet at the Remera taxi park?")
	require.NoError(t, err)
	assert.False(t, clean.Flagged)

	// Outsiders can neither post nor read.
	outsider := createUser(t, model.RoleCitizen)
	_, err = svc.PostMessage(ctx, outsider, claim.ID, "hello")
	assert.Equal(t, model.KindForbidden, model.KindOf(err))
	_, err = svc.ListMessages(ctx, outsider, claim.ID, 10, 0)
	assert.Equal(t, model.KindForbidden, model.KindOf(err))

	msgs, err := svc.ListMessages(ctx, owner, claim.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestHandoverExchange(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	ho := newHandover(t)
	owner := createUser(t, model.RoleCitizen)
	finder := createUser(t, model.RoleCitizen)
	lost, found := createPair(t, owner, finder)
	claim := openClaim(t, svc, owner, lost, found)

	// No code before verification.
	_, err := ho.Mint(ctx, owner, claim.ID)
	assert.Equal(t, model.KindConflict, model.KindOf(err))

	_, err = svc.Verify(ctx, owner, claim.ID, model.VerifyClaimRequest{Answers: answers()}, testIP)
	require.NoError(t, err)

	minted, err := ho.Mint(ctx, owner, claim.ID)
	require.NoError(t, err)
	assert.Len(t, minted.OTP, 6)

	// The claimant cannot redeem their own code.
	_, err = ho.Redeem(ctx, owner, claim.ID, minted.OTP, testIP)
	assert.Equal(t, model.KindForbidden, model.KindOf(err))

	// A wrong code burns an attempt but the exchange survives.
	_, err = ho.Redeem(ctx, finder, claim.ID, "000000", testIP)
	assert.Equal(t, model.KindInvalidInput, model.KindOf(err))
	status, err := ho.Status(ctx, finder, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, handover.MaxAttempts-1, status.AttemptsRemaining)

	redeemed, err := ho.Redeem(ctx, finder, claim.ID, minted.OTP, testIP)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimReturned, redeemed.ClaimStatus)
	assert.Equal(t, model.LostReturned, redeemed.LostItemStatus)
	assert.Equal(t, model.FoundReturned, redeemed.FoundItemStatus)

	// Both parties earn trust: +3 finder, +2 owner on top of the owner's
	// starting score.
	gotFinder, err := testDB.GetUser(ctx, finder.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, gotFinder.TrustScore)
	gotOwner, err := testDB.GetUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, gotOwner.TrustScore)

	// Redeeming twice is a conflict.
	_, err = ho.Redeem(ctx, finder, claim.ID, minted.OTP, testIP)
	assert.Equal(t, model.KindConflict, model.KindOf(err))
}
