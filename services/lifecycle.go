package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	apperr "github.com/phillip/hela-fund-go/apperr"
	models "github.com/phillip/hela-fund-go/models"
)

// The functions in this file are the request lifecycle rules. They are pure:
// they validate and compute snapshots, persistence happens in the callers.

type CreateRequestInput struct {
	Title            string
	Description      string
	Category         models.Category
	TargetAmount     decimal.Decimal
	Currency         string
	Deadline         *time.Time
	Urgency          models.Urgency
	ItemLostLocation string
	Anonymous        bool
}

// NewRequest validates in and returns an active request with nothing raised.
func NewRequest(requesterID primitive.ObjectID, in CreateRequestInput, now time.Time) (*models.Request, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)

	switch {
	case title == "":
		return nil, apperr.Validation("title is required")
	case description == "":
		return nil, apperr.Validation("description is required")
	case !in.Category.Valid():
		return nil, apperr.Validation("category must be one of lost-item, micro-funding, community-help")
	case in.TargetAmount.IsNegative():
		return nil, apperr.Validation("target_amount cannot be negative")
	case in.Category == models.CategoryLostItem && strings.TrimSpace(in.ItemLostLocation) == "":
		return nil, apperr.Validation("item_lost_location is required for lost-item requests")
	case in.Category == models.CategoryMicroFunding && !in.TargetAmount.IsPositive():
		return nil, apperr.Validation("target_amount is required for micro-funding requests")
	case in.Deadline != nil && !in.Deadline.After(now):
		return nil, apperr.Validation("deadline must be in the future")
	}

	urgency := in.Urgency
	if urgency == "" {
		urgency = models.UrgencyMedium
	}
	if !urgency.Valid() {
		return nil, apperr.Validation("urgency must be one of low, medium, high, critical")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	return &models.Request{
		ID:               primitive.NewObjectID(),
		RequesterID:      requesterID,
		Title:            title,
		Description:      description,
		Category:         in.Category,
		TargetAmount:     in.TargetAmount,
		CurrentAmount:    decimal.Zero,
		Currency:         currency,
		Deadline:         in.Deadline,
		Status:           models.StatusActive,
		Urgency:          urgency,
		ItemLostLocation: strings.TrimSpace(in.ItemLostLocation),
		SupporterIDs:     []primitive.ObjectID{},
		Anonymous:        in.Anonymous,
		Images:           []string{},
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// TransitionOnContribution adds amount and completes the request once the
// target is met. Overshoot is allowed; only the status is capped.
func TransitionOnContribution(r *models.Request, amount decimal.Decimal) *models.Request {
	next := r.Clone()
	next.CurrentAmount = r.CurrentAmount.Add(amount)
	if next.IsFundable() && next.CurrentAmount.GreaterThanOrEqual(next.TargetAmount) {
		next.Status = models.StatusCompleted
	}
	return next
}

// TransitionOnRefund removes amount and reopens a completed request that
// dropped below its target. Cancelled requests stay cancelled.
func TransitionOnRefund(r *models.Request, amount decimal.Decimal) *models.Request {
	next := r.Clone()
	next.CurrentAmount = r.CurrentAmount.Sub(amount)
	if next.CurrentAmount.IsNegative() {
		next.CurrentAmount = decimal.Zero
	}
	if next.Status == models.StatusCompleted && next.CurrentAmount.LessThan(next.TargetAmount) {
		next.Status = models.StatusActive
	}
	return next
}

func CheckContributable(r *models.Request, now time.Time) error {
	if st := r.EffectiveStatus(now); st != models.StatusActive {
		return apperr.InvalidState("request is %s and no longer accepts contributions", st)
	}
	if !r.IsFundable() {
		return apperr.InvalidState("request does not accept monetary contributions")
	}
	return nil
}

func CheckCancel(r *models.Request, userID primitive.ObjectID) error {
	if r.RequesterID != userID {
		return apperr.Authorization("only the requester can cancel this request")
	}
	if r.Status == models.StatusCompleted || r.Status == models.StatusCancelled {
		return apperr.InvalidState("request is already %s", r.Status)
	}
	return nil
}

func CheckEdit(r *models.Request, userID primitive.ObjectID, now time.Time) error {
	if r.RequesterID != userID {
		return apperr.Authorization("only the requester can modify this request")
	}
	if st := r.EffectiveStatus(now); st != models.StatusActive {
		return apperr.InvalidState("request is %s and can no longer be edited", st)
	}
	return nil
}

// CheckResolve guards closing a non-monetary request by hand. Fundable
// requests complete only by reaching their target.
func CheckResolve(r *models.Request, userID primitive.ObjectID, now time.Time) error {
	if err := CheckEdit(r, userID, now); err != nil {
		return err
	}
	if r.IsFundable() {
		return apperr.InvalidState("funded requests complete when their target is reached")
	}
	return nil
}
