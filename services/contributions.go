package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	apperr "github.com/phillip/hela-fund-go/apperr"
	models "github.com/phillip/hela-fund-go/models"
	store "github.com/phillip/hela-fund-go/store"
)

type ContributeInput struct {
	SupporterID   primitive.ObjectID
	RequestID     primitive.ObjectID
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod models.PaymentMethod
	IsAnonymous   bool
	Message       string
}

func validateContribution(in ContributeInput, r *models.Request) error {
	switch {
	case !in.Amount.IsPositive():
		return apperr.Validation("amount must be greater than zero")
	case utf8.RuneCountInString(in.Message) > models.MaxContributionMessageLen:
		return apperr.Validation("message cannot exceed %d characters", models.MaxContributionMessageLen)
	case !in.PaymentMethod.Valid():
		return apperr.Validation("payment_method must be one of card, mobile-money, bank-transfer, paypal")
	}
	if cur := strings.ToUpper(strings.TrimSpace(in.Currency)); cur != "" && cur != r.Currency {
		return apperr.Validation("request is raised in %s", r.Currency)
	}
	return nil
}

// Contribute applies a supporter's pledge to a request. The contribution and the
// updated request are committed as one unit guarded by the request version; a
// lost race reloads the request and tries again.
func (s *Service) Contribute(ctx context.Context, in ContributeInput) (*models.Contribution, *models.Request, error) {
	var (
		contribution *models.Contribution
		committed    *models.Request
		completed    bool
	)

	err := s.retryOnConflict(ctx, "contribute", func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.now()

		r, err := s.loadRequest(ctx, in.RequestID)
		if err != nil {
			return err
		}
		if err := CheckContributable(r, now); err != nil {
			return err
		}
		if err := validateContribution(in, r); err != nil {
			return err
		}

		next := TransitionOnContribution(r, in.Amount)
		if !next.HasSupporter(in.SupporterID) {
			next.SupporterIDs = append(next.SupporterIDs, in.SupporterID)
		}
		next.ContributionsCount++
		next.Version = r.Version + 1
		next.UpdatedAt = now

		c := &models.Contribution{
			ID:            primitive.NewObjectID(),
			TransactionID: s.newTxID(),
			RequestID:     r.ID,
			SupporterID:   in.SupporterID,
			Amount:        in.Amount,
			Currency:      r.Currency,
			Message:       strings.TrimSpace(in.Message),
			PaymentMethod: in.PaymentMethod,
			// Payment processing is not integrated; pledges settle immediately.
			PaymentStatus: models.PaymentCompleted,
			IsAnonymous:   in.IsAnonymous,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := s.store.CommitContribution(ctx, c, next, r.Version); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				// Colliding transaction id; treat like a lost race and regenerate.
				return fmt.Errorf("commit contribution: %w", store.ErrVersionConflict)
			}
			return fmt.Errorf("commit contribution: %w", err)
		}
		contribution, committed = c, next
		completed = r.Status != models.StatusCompleted && next.Status == models.StatusCompleted
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("contribution applied",
		zap.String("transaction_id", contribution.TransactionID),
		zap.String("request_id", committed.ID.Hex()),
		zap.String("amount", contribution.Amount.String()),
		zap.String("request_status", string(committed.Status)))

	s.bumpCounter(ctx, in.SupporterID, models.CounterContributions, 1)
	if completed {
		s.notifyGoalReached(ctx, committed)
	}
	return contribution, committed, nil
}

func (s *Service) notifyGoalReached(ctx context.Context, r *models.Request) {
	requester, err := s.store.GetUser(ctx, r.RequesterID)
	if err != nil {
		s.log.Warn("goal reached but requester could not be loaded",
			zap.String("request_id", r.ID.Hex()), zap.Error(err))
		return
	}
	subject := fmt.Sprintf("Your request %q is fully funded", r.Title)
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your request <strong>%s</strong> has reached its goal: %s %s raised from %d contributions.</p><p>Hela Fund</p>",
		requester.DisplayName(), r.Title, r.Currency, r.CurrentAmount.StringFixed(2), r.ContributionsCount)
	s.sendMail(ctx, requester.Email, subject, body)
}

// Refund reverses a completed contribution. Either the supporter who made it
// or the owner of the request may ask for it.
func (s *Service) Refund(ctx context.Context, contributionID, actorID primitive.ObjectID) (*models.Contribution, *models.Request, error) {
	var (
		refunded  *models.Contribution
		committed *models.Request
	)

	err := s.retryOnConflict(ctx, "refund", func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.now()

		c, err := s.loadContribution(ctx, contributionID)
		if err != nil {
			return err
		}
		r, err := s.loadRequest(ctx, c.RequestID)
		if err != nil {
			return err
		}
		if actorID != c.SupporterID && actorID != r.RequesterID {
			return apperr.Authorization("only the supporter or the request owner can refund this contribution")
		}
		if c.PaymentStatus != models.PaymentCompleted {
			return apperr.InvalidState("contribution is %s and cannot be refunded", c.PaymentStatus)
		}

		others, err := s.store.ListContributionsByRequest(ctx, r.ID, models.PaymentCompleted)
		if err != nil {
			return fmt.Errorf("list contributions: %w", err)
		}
		stillSupporting := false
		for i := range others {
			if others[i].ID != c.ID && others[i].SupporterID == c.SupporterID {
				stillSupporting = true
				break
			}
		}

		next := TransitionOnRefund(r, c.Amount)
		if next.ContributionsCount > 0 {
			next.ContributionsCount--
		}
		if !stillSupporting {
			next.SupporterIDs = removeID(next.SupporterIDs, c.SupporterID)
		}
		next.Version = r.Version + 1
		next.UpdatedAt = now

		out := c.Clone()
		out.PaymentStatus = models.PaymentRefunded
		out.RefundedAt = &now
		out.UpdatedAt = now

		if err := s.store.CommitRefund(ctx, out, next, r.Version); err != nil {
			return fmt.Errorf("commit refund: %w", err)
		}
		refunded, committed = out, next
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("contribution refunded",
		zap.String("transaction_id", refunded.TransactionID),
		zap.String("request_id", committed.ID.Hex()),
		zap.String("actor_id", actorID.Hex()))
	s.bumpCounter(ctx, refunded.SupporterID, models.CounterContributions, -1)
	return refunded, committed, nil
}

func removeID(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (s *Service) loadContribution(ctx context.Context, id primitive.ObjectID) (*models.Contribution, error) {
	c, err := s.store.GetContribution(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("contribution not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load contribution %s: %w", id.Hex(), err)
	}
	return c, nil
}

// ListRequestContributions returns the completed contributions of a request,
// newest first, rendered for viewerID.
func (s *Service) ListRequestContributions(ctx context.Context, requestID, viewerID primitive.ObjectID) ([]models.ContributionView, *models.Request, error) {
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	list, err := s.store.ListContributionsByRequest(ctx, requestID, models.PaymentCompleted)
	if err != nil {
		return nil, nil, fmt.Errorf("list contributions: %w", err)
	}
	users, err := s.supportersOf(ctx, list)
	if err != nil {
		return nil, nil, err
	}

	views := make([]models.ContributionView, 0, len(list))
	for i := range list {
		views = append(views, RenderContribution(&list[i], lookupUser(users, list[i].SupporterID), r, viewerID))
	}
	return views, r, nil
}

// ListSupporterContributions returns everything supporterID has pledged,
// including refunded contributions.
func (s *Service) ListSupporterContributions(ctx context.Context, supporterID primitive.ObjectID) ([]models.ContributionView, error) {
	list, err := s.store.ListContributionsBySupporter(ctx, supporterID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	supporter, err := s.store.GetUser(ctx, supporterID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load supporter: %w", err)
	}

	requests := map[primitive.ObjectID]*models.Request{}
	views := make([]models.ContributionView, 0, len(list))
	for i := range list {
		rid := list[i].RequestID
		r, seen := requests[rid]
		if !seen {
			r, err = s.store.GetRequest(ctx, rid)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("load request %s: %w", rid.Hex(), err)
			}
			requests[rid] = r
		}
		views = append(views, RenderContribution(&list[i], supporter, r, supporterID))
	}
	return views, nil
}

// GetContribution returns a single contribution to its supporter or to the
// owner of the request it funds.
func (s *Service) GetContribution(ctx context.Context, id, viewerID primitive.ObjectID) (*models.ContributionView, error) {
	c, err := s.loadContribution(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetRequest(ctx, c.RequestID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if viewerID != c.SupporterID && (r == nil || viewerID != r.RequesterID) {
		return nil, apperr.Authorization("Access denied")
	}

	view, err := s.RenderContributionFor(ctx, c, r, viewerID)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// RenderContributionFor loads the supporter profile and renders c.
func (s *Service) RenderContributionFor(ctx context.Context, c *models.Contribution, r *models.Request, viewerID primitive.ObjectID) (models.ContributionView, error) {
	supporter, err := s.store.GetUser(ctx, c.SupporterID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return models.ContributionView{}, fmt.Errorf("load supporter: %w", err)
	}
	return RenderContribution(c, supporter, r, viewerID), nil
}

func (s *Service) supportersOf(ctx context.Context, list []models.Contribution) (map[primitive.ObjectID]models.User, error) {
	ids := make([]primitive.ObjectID, 0, len(list))
	seen := map[primitive.ObjectID]bool{}
	for i := range list {
		if id := list[i].SupporterID; !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load supporters: %w", err)
	}
	return users, nil
}

func lookupUser(users map[primitive.ObjectID]models.User, id primitive.ObjectID) *models.User {
	u, ok := users[id]
	if !ok {
		return nil
	}
	return &u
}
