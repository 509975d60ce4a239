package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	apperr "github.com/phillip/hela-fund-go/apperr"
	models "github.com/phillip/hela-fund-go/models"
	store "github.com/phillip/hela-fund-go/store"
)

func TestContribute_GoalScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, models.RoleRequester, "amani")
	a := f.user(t, models.RoleSupporter, "a")
	b := f.user(t, models.RoleSupporter, "b")
	c := f.user(t, models.RoleSupporter, "c")
	r := f.fundingRequest(t, owner.ID, 1000)

	_, after, err := f.svc.Contribute(ctx, contribution(a.ID, r.ID, 600))
	require.NoError(t, err)
	assert.True(t, after.CurrentAmount.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, models.StatusActive, after.Status)

	_, after, err = f.svc.Contribute(ctx, contribution(b.ID, r.ID, 500))
	require.NoError(t, err)
	assert.True(t, after.CurrentAmount.Equal(decimal.NewFromInt(1100)))
	assert.Equal(t, models.StatusCompleted, after.Status)

	_, _, err = f.svc.Contribute(ctx, contribution(c.ID, r.ID, 100))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	stored, err := f.st.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentAmount.Equal(decimal.NewFromInt(1100)), "rejected contribution leaves the request unchanged")
	assert.Equal(t, 2, stored.ContributionsCount)
	assert.ElementsMatch(t, []primitive.ObjectID{a.ID, b.ID}, stored.SupporterIDs)

	require.Len(t, f.mailer.sent, 1, "goal reached is announced once")
	assert.Equal(t, owner.Email, f.mailer.sent[0].to)
	assert.Contains(t, f.mailer.sent[0].body, "1100.00")

	supporter, err := f.st.GetUser(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, supporter.TotalContributions)
}

func TestContribute_PersistsContribution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithTransactionIDs(func() string { return "TXN-fixed" }))
	owner := f.user(t, models.RoleRequester, "amani")
	sup := f.user(t, models.RoleSupporter, "kasun")
	r := f.fundingRequest(t, owner.ID, 1000)

	in := contribution(sup.ID, r.ID, 250)
	in.Message = "  good luck  "
	in.IsAnonymous = true
	c, _, err := f.svc.Contribute(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, "TXN-fixed", c.TransactionID)
	assert.Equal(t, models.PaymentCompleted, c.PaymentStatus)
	assert.Equal(t, "LKR", c.Currency)
	assert.Equal(t, "good luck", c.Message)
	assert.Equal(t, testNow, c.CreatedAt)

	got, err := f.st.GetContribution(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.TransactionID, got.TransactionID)
	assert.True(t, got.IsAnonymous)
}

func TestContribute_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, models.RoleRequester, "amani")
	sup := f.user(t, models.RoleSupporter, "kasun")
	r := f.fundingRequest(t, owner.ID, 1000)

	_, _, err := f.svc.Contribute(ctx, contribution(sup.ID, primitive.NewObjectID(), 10))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	for name, mutate := range map[string]func(in *ContributeInput){
		"zero amount":     func(in *ContributeInput) { in.Amount = decimal.Zero },
		"negative amount": func(in *ContributeInput) { in.Amount = decimal.NewFromInt(-5) },
		"long message":    func(in *ContributeInput) { in.Message = strings.Repeat("x", models.MaxContributionMessageLen+1) },
		"unknown method":  func(in *ContributeInput) { in.PaymentMethod = "cash" },
		"wrong currency":  func(in *ContributeInput) { in.Currency = "usd" },
	} {
		in := contribution(sup.ID, r.ID, 10)
		mutate(&in)
		_, _, err := f.svc.Contribute(ctx, in)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), name)
	}

	stored, err := f.st.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentAmount.IsZero())
	assert.Zero(t, stored.ContributionsCount)
}

func TestContribute_StateCheckedBeforeAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, models.RoleRequester, "amani")
	sup := f.user(t, models.RoleSupporter, "kasun")
	r := f.fundingRequest(t, owner.ID, 1000)
	_, _, err := f.svc.RemoveRequest(ctx, r.ID, owner.ID)
	require.NoError(t, err)

	// Deleted outright, so not found wins.
	_, _, err = f.svc.Contribute(ctx, contribution(sup.ID, r.ID, 0))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	r = f.fundingRequest(t, owner.ID, 1000)
	_, _, err = f.svc.Contribute(ctx, contribution(sup.ID, r.ID, 10))
	require.NoError(t, err)
	outcome, _, err := f.svc.RemoveRequest(ctx, r.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, RequestCancelled, outcome)

	_, _, err = f.svc.Contribute(ctx, contribution(sup.ID, r.ID, 0))
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestContribute_RejectsExpiredRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, models.RoleRequester, "amani")
	sup := f.user(t, models.RoleSupporter, "kasun")

	deadline := testNow.Add(24 * time.Hour)
	r, err := f.svc.CreateRequest(ctx, owner.ID, CreateRequestInput{
		Title:        "Hostel fee",
		Description:  "Due Friday",
		Category:     models.CategoryMicroFunding,
		TargetAmount: decimal.NewFromInt(500),
		Deadline:     &deadline,
	})
	require.NoError(t, err)

	*f.clock = deadline.Add(time.Second)
	_, _, err = f.svc.Contribute(ctx, contribution(sup.ID, r.ID, 50))
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "expired")
}

func TestContribute_NonFundableRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, models.RoleRequester, "amani")
	sup := f.user(t, models.RoleSupporter, "kasun")
	r, err := f.svc.CreateRequest(ctx, owner.ID, CreateRequestInput{
		Title:            "Lost calculator",
		Description:      "Casio fx-991",
		Category:         models.CategoryLostItem,
		ItemLostLocation: "Lecture hall B",
	})
	require.NoError(t, err)

	_, _, err = f.svc.Contribute(ctx, contribution(sup.ID, r.ID, 50))
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestContribute_IdempotentSupporterSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, models.RoleRequester, "amani")
	sup := f.user(t, models.RoleSupporter, "kasun")
	r := f.fundingRequest(t, owner.ID, 10000)

	for i := 0; i < 5; i++ {
		_, _, err := f.svc.Contribute(ctx, contribution(sup.ID, r.ID, 10))
		require.NoError(t, err)
	}

	stored, err := f.st.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{sup.ID}, stored.SupporterIDs)
	assert.Equal(t, 5, stored.ContributionsCount)
	assert.True(t, stored.CurrentAmount.Equal(decimal.NewFromInt(50)))
}

func TestContribute_ConcurrentPairDoesNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, models.RoleRequester, "amani")
	a := f.user(t, models.RoleSupporter, "a")
	b := f.user(t, models.RoleSupporter, "b")
	r := f.fundingRequest(t, owner.ID, 1000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, in := range []ContributeInput{contribution(a.ID, r.ID, 300), contribution(b.ID, r.ID, 400)} {
		wg.Add(1)
		go func(i int, in ContributeInput) {
			defer wg.Done()
			_, _, errs[i] = f.svc.Contribute(ctx, in)
		}(i, in)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	stored, err := f.st.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentAmount.Equal(decimal.NewFromInt(700)), "got %s", stored.CurrentAmount)
	assert.Equal(t, 2, stored.ContributionsCount)
	assert.EqualValues(t, 3, stored.Version)
}

func TestContribute_ConservationUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithMaxAttempts(50))
	owner := f.user(t, models.RoleRequester, "amani")
	r := f.fundingRequest(t, owner.ID, 1_000_000)

	const n = 20
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sum = decimal.Zero
		ok  int
	)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			_, _, err := f.svc.Contribute(ctx, contribution(primitive.NewObjectID(), r.ID, amount))
			if err != nil {
				assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
				return
			}
			mu.Lock()
			sum = sum.Add(decimal.NewFromInt(amount))
			ok++
			mu.Unlock()
		}(int64(i * 10))
	}
	wg.Wait()

	stored, err := f.st.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentAmount.Equal(sum), "current %s, successful sum %s", stored.CurrentAmount, sum)
	assert.Equal(t, ok, stored.ContributionsCount)
	assert.Len(t, stored.SupporterIDs, ok)

	list, err := f.st.ListContributionsByRequest(ctx, r.ID, models.PaymentCompleted)
	require.NoError(t, err)
	assert.Len(t, list, ok)
}

func TestContribute_RetriesLostRace(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	rs := &racingStore{MemoryStore: mem}
	svc := New(rs, WithClock(func() time.Time { return testNow }), WithBackoff(time.Millisecond, time.Millisecond))

	owner := primitive.NewObjectID()
	r, err := svc.CreateRequest(ctx, owner, CreateRequestInput{
		Title: "Books", Description: "Semester books", Category: models.CategoryMicroFunding, TargetAmount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	// Another writer bumps the request once between our read and our commit.
	raced := false
	rs.beforeCommit = func() {
		if raced {
			return
		}
		raced = true
		cur, err := mem.GetRequest(ctx, r.ID)
		require.NoError(t, err)
		next := TransitionOnContribution(cur, decimal.NewFromInt(100))
		next.ContributionsCount++
		next.Version = cur.Version + 1
		require.NoError(t, mem.CommitContribution(ctx, &models.Contribution{TransactionID: "TXN-other", RequestID: r.ID}, next, cur.Version))
	}

	_, after, err := svc.Contribute(ctx, contribution(primitive.NewObjectID(), r.ID, 300))
	require.NoError(t, err)
	assert.True(t, after.CurrentAmount.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, 2, after.ContributionsCount)
}

func TestContribute_ConflictAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	rs := &racingStore{MemoryStore: mem}
	svc := New(rs, WithClock(func() time.Time { return testNow }), WithBackoff(time.Millisecond, time.Millisecond), WithMaxAttempts(3))

	r, err := svc.CreateRequest(ctx, primitive.NewObjectID(), CreateRequestInput{
		Title: "Books", Description: "Semester books", Category: models.CategoryMicroFunding, TargetAmount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	attempts := 0
	rs.beforeCommit = func() {
		attempts++
		cur, err := mem.GetRequest(ctx, r.ID)
		require.NoError(t, err)
		next := cur.Clone()
		next.Version = cur.Version + 1
		require.NoError(t, mem.UpdateRequest(ctx, next, cur.Version))
	}

	_, _, err = svc.Contribute(ctx, contribution(primitive.NewObjectID(), r.ID, 300))
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.True(t, errors.Is(err, store.ErrVersionConflict))
	assert.Equal(t, 3, attempts)

	list, err := mem.ListContributionsByRequest(ctx, r.ID, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestContribute_CancelledContext(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, models.RoleRequester, "amani")
	r := f.fundingRequest(t, owner.ID, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := f.svc.Contribute(ctx, contribution(primitive.NewObjectID(), r.ID, 10))
	assert.ErrorIs(t, err, context.Canceled)

	stored, err := f.st.GetRequest(context.Background(), r.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentAmount.IsZero())
}

func TestContribute_MailFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")
	owner := f.user(t, models.RoleRequester, "amani")
	r := f.fundingRequest(t, owner.ID, 100)

	_, after, err := f.svc.Contribute(context.Background(), contribution(primitive.NewObjectID(), r.ID, 100))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, after.Status)
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, models.RoleRequester, "amani")
	a := f.user(t, models.RoleSupporter, "a")
	b := f.user(t, models.RoleSupporter, "b")
	r := f.fundingRequest(t, owner.ID, 1000)

	first, _, err := f.svc.Contribute(ctx, contribution(a.ID, r.ID, 600))
	require.NoError(t, err)
	_, _, err = f.svc.Contribute(ctx, contribution(a.ID, r.ID, 100))
	require.NoError(t, err)
	big, after, err := f.svc.Contribute(ctx, contribution(b.ID, r.ID, 400))
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, after.Status)

	_, _, err = f.svc.Refund(ctx, big.ID, primitive.NewObjectID())
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	refunded, after, err := f.svc.Refund(ctx, big.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.PaymentStatus)
	require.NotNil(t, refunded.RefundedAt)
	assert.Equal(t, models.StatusActive, after.Status, "completed reverts once below target")
	assert.True(t, after.CurrentAmount.Equal(decimal.NewFromInt(700)))
	assert.Equal(t, 2, after.ContributionsCount)
	assert.Equal(t, []primitive.ObjectID{a.ID}, after.SupporterIDs)

	_, _, err = f.svc.Refund(ctx, big.ID, b.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err), "refund twice")

	// a still has another completed contribution and stays in the set.
	_, after, err = f.svc.Refund(ctx, first.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{a.ID}, after.SupporterIDs)

	listed, _, err := f.svc.ListRequestContributions(ctx, r.ID, owner.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1, "only completed contributions are listed")

	sup, err := f.st.GetUser(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, sup.TotalContributions)
}

func TestListRequestContributionsMasksAnonymous(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, models.RoleRequester, "amani")
	sup := f.user(t, models.RoleSupporter, "kasun")
	r := f.fundingRequest(t, owner.ID, 1000)

	in := contribution(sup.ID, r.ID, 100)
	in.IsAnonymous = true
	_, _, err := f.svc.Contribute(ctx, in)
	require.NoError(t, err)

	public, _, err := f.svc.ListRequestContributions(ctx, r.ID, primitive.NilObjectID)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "Anonymous", public[0].Supporter.Name)
	assert.Nil(t, public[0].SupporterID)

	asOwner, _, err := f.svc.ListRequestContributions(ctx, r.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "kasun", asOwner[0].Supporter.Name)
}

func TestGetContributionAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, models.RoleRequester, "amani")
	sup := f.user(t, models.RoleSupporter, "kasun")
	r := f.fundingRequest(t, owner.ID, 1000)
	c, _, err := f.svc.Contribute(ctx, contribution(sup.ID, r.ID, 100))
	require.NoError(t, err)

	_, err = f.svc.GetContribution(ctx, c.ID, primitive.NewObjectID())
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	view, err := f.svc.GetContribution(ctx, c.ID, sup.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Title, view.Request.Title)

	mine, err := f.svc.ListSupporterContributions(ctx, sup.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, c.TransactionID, mine[0].TransactionID)
}
