package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/hela-fund-go/models"
	store "github.com/phillip/hela-fund-go/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendEmail(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to, subject, body})
	return f.err
}

type fixture struct {
	st     *store.MemoryStore
	svc    *Service
	mailer *fakeMailer
	clock  *time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{st: store.NewMemoryStore(), mailer: &fakeMailer{}}
	now := testNow
	f.clock = &now
	base := []Option{
		WithMailer(f.mailer),
		WithClock(func() time.Time { return *f.clock }),
		WithBackoff(time.Millisecond, 5*time.Millisecond),
	}
	f.svc = New(f.st, append(base, opts...)...)
	return f
}

func (f *fixture) user(t *testing.T, role models.Role, name string) *models.User {
	t.Helper()
	u := &models.User{
		ID:    primitive.NewObjectID(),
		Email: name + "@uni.example",
		Role:  role,
	}
	if role == models.RoleRequester {
		u.FullName = name
		u.University = "University of Colombo"
	} else {
		u.Name = name
	}
	require.NoError(t, f.st.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) fundingRequest(t *testing.T, owner primitive.ObjectID, target int64) *models.Request {
	t.Helper()
	r, err := f.svc.CreateRequest(context.Background(), owner, CreateRequestInput{
		Title:        "Laptop repair",
		Description:  "Screen cracked a week before finals",
		Category:     models.CategoryMicroFunding,
		TargetAmount: decimal.NewFromInt(target),
	})
	require.NoError(t, err)
	return r
}

func contribution(supporter, request primitive.ObjectID, amount int64) ContributeInput {
	return ContributeInput{
		SupporterID:   supporter,
		RequestID:     request,
		Amount:        decimal.NewFromInt(amount),
		PaymentMethod: models.PaymentCard,
	}
}

// racingStore lets a test run code right before a contribution commit, to
// simulate another writer landing first.
type racingStore struct {
	*store.MemoryStore
	beforeCommit func()
}

func (r *racingStore) CommitContribution(ctx context.Context, c *models.Contribution, req *models.Request, expectedVersion int64) error {
	if r.beforeCommit != nil {
		r.beforeCommit()
	}
	return r.MemoryStore.CommitContribution(ctx, c, req, expectedVersion)
}
