package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	apperr "github.com/phillip/hela-fund-go/apperr"
	models "github.com/phillip/hela-fund-go/models"
)

func TestNewRequestValidation(t *testing.T) {
	past := testNow.Add(-time.Hour)
	valid := CreateRequestInput{
		Title:        "Bus fare home",
		Description:  "Need to get home for the holidays",
		Category:     models.CategoryMicroFunding,
		TargetAmount: decimal.NewFromInt(2500),
	}

	tests := []struct {
		name   string
		mutate func(in *CreateRequestInput)
		msg    string
	}{
		{"missing title", func(in *CreateRequestInput) { in.Title = "  " }, "title is required"},
		{"missing description", func(in *CreateRequestInput) { in.Description = "" }, "description is required"},
		{"unknown category", func(in *CreateRequestInput) { in.Category = "medical" }, "category must be"},
		{"negative target", func(in *CreateRequestInput) { in.TargetAmount = decimal.NewFromInt(-1) }, "cannot be negative"},
		{"micro-funding without target", func(in *CreateRequestInput) { in.TargetAmount = decimal.Zero }, "target_amount is required"},
		{"lost item without location", func(in *CreateRequestInput) {
			in.Category = models.CategoryLostItem
			in.TargetAmount = decimal.Zero
		}, "item_lost_location is required"},
		{"past deadline", func(in *CreateRequestInput) { in.Deadline = &past }, "deadline must be in the future"},
		{"bad urgency", func(in *CreateRequestInput) { in.Urgency = "whenever" }, "urgency must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := NewRequest(primitive.NewObjectID(), in, testNow)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNewRequestDefaults(t *testing.T) {
	owner := primitive.NewObjectID()
	r, err := NewRequest(owner, CreateRequestInput{
		Title:            "Lost student card",
		Description:      "Blue lanyard",
		Category:         models.CategoryLostItem,
		ItemLostLocation: " Main library ",
		Currency:         "usd",
	}, testNow)
	require.NoError(t, err)

	assert.Equal(t, owner, r.RequesterID)
	assert.Equal(t, models.StatusActive, r.Status)
	assert.Equal(t, models.UrgencyMedium, r.Urgency)
	assert.Equal(t, "USD", r.Currency)
	assert.Equal(t, "Main library", r.ItemLostLocation)
	assert.True(t, r.CurrentAmount.IsZero())
	assert.False(t, r.IsFundable())
	assert.EqualValues(t, 1, r.Version)
}

func TestTransitionOnContribution(t *testing.T) {
	r := &models.Request{TargetAmount: decimal.NewFromInt(1000), Status: models.StatusActive}

	next := TransitionOnContribution(r, decimal.NewFromInt(600))
	assert.Equal(t, models.StatusActive, next.Status)
	assert.True(t, next.CurrentAmount.Equal(decimal.NewFromInt(600)))
	assert.True(t, r.CurrentAmount.IsZero(), "input snapshot is not modified")

	next = TransitionOnContribution(next, decimal.NewFromInt(500))
	assert.Equal(t, models.StatusCompleted, next.Status)
	assert.True(t, next.CurrentAmount.Equal(decimal.NewFromInt(1100)), "overshoot is kept")
}

func TestTransitionOnRefund(t *testing.T) {
	r := &models.Request{TargetAmount: decimal.NewFromInt(1000), CurrentAmount: decimal.NewFromInt(1100), Status: models.StatusCompleted}

	next := TransitionOnRefund(r, decimal.NewFromInt(100))
	assert.Equal(t, models.StatusCompleted, next.Status, "still at target")

	next = TransitionOnRefund(next, decimal.NewFromInt(1))
	assert.Equal(t, models.StatusActive, next.Status)
	assert.True(t, next.CurrentAmount.Equal(decimal.NewFromInt(999)))

	cancelled := &models.Request{TargetAmount: decimal.NewFromInt(10), CurrentAmount: decimal.NewFromInt(5), Status: models.StatusCancelled}
	next = TransitionOnRefund(cancelled, decimal.NewFromInt(9))
	assert.Equal(t, models.StatusCancelled, next.Status)
	assert.True(t, next.CurrentAmount.IsZero(), "floored at zero")
}

func TestCheckCancel(t *testing.T) {
	owner := primitive.NewObjectID()
	r := &models.Request{RequesterID: owner, Status: models.StatusActive}

	assert.True(t, apperr.Is(CheckCancel(r, primitive.NewObjectID()), apperr.KindAuthorization))
	assert.NoError(t, CheckCancel(r, owner))

	for _, st := range []models.RequestStatus{models.StatusCompleted, models.StatusCancelled} {
		r.Status = st
		assert.True(t, apperr.Is(CheckCancel(r, owner), apperr.KindInvalidState), st)
	}
}

func TestCheckContributable(t *testing.T) {
	past := testNow.Add(-time.Minute)
	fundable := decimal.NewFromInt(100)

	assert.NoError(t, CheckContributable(&models.Request{Status: models.StatusActive, TargetAmount: fundable}, testNow))

	for name, r := range map[string]*models.Request{
		"completed":    {Status: models.StatusCompleted, TargetAmount: fundable},
		"cancelled":    {Status: models.StatusCancelled, TargetAmount: fundable},
		"expired":      {Status: models.StatusActive, TargetAmount: fundable, Deadline: &past},
		"draft":        {Status: models.StatusDraft, TargetAmount: fundable},
		"non-fundable": {Status: models.StatusActive},
	} {
		assert.True(t, apperr.Is(CheckContributable(r, testNow), apperr.KindInvalidState), name)
	}
}

func TestCheckResolve(t *testing.T) {
	owner := primitive.NewObjectID()
	help := &models.Request{RequesterID: owner, Status: models.StatusActive}
	funded := &models.Request{RequesterID: owner, Status: models.StatusActive, TargetAmount: decimal.NewFromInt(5)}

	assert.NoError(t, CheckResolve(help, owner, testNow))
	assert.True(t, apperr.Is(CheckResolve(help, primitive.NewObjectID(), testNow), apperr.KindAuthorization))
	assert.True(t, apperr.Is(CheckResolve(funded, owner, testNow), apperr.KindInvalidState))
}
