package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	apperr "github.com/phillip/hela-fund-go/apperr"
	models "github.com/phillip/hela-fund-go/models"
	store "github.com/phillip/hela-fund-go/store"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

func (s *Service) CreateRequest(ctx context.Context, requesterID primitive.ObjectID, in CreateRequestInput) (*models.Request, error) {
	r, err := NewRequest(requesterID, in, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	s.bumpCounter(ctx, requesterID, models.CounterRequests, 1)

	s.log.Info("request created",
		zap.String("request_id", r.ID.Hex()),
		zap.String("requester_id", requesterID.Hex()),
		zap.String("category", string(r.Category)))
	return r, nil
}

func (s *Service) GetRequest(ctx context.Context, id primitive.ObjectID) (*models.Request, error) {
	return s.loadRequest(ctx, id)
}

// ViewRequest loads a request for display and counts the view. The counter
// is advisory and a failure to bump it does not fail the read.
func (s *Service) ViewRequest(ctx context.Context, id primitive.ObjectID) (*models.Request, error) {
	if err := s.store.IncrementViews(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("request not found")
		}
		s.log.Warn("failed to count request view", zap.String("request_id", id.Hex()), zap.Error(err))
	}
	return s.loadRequest(ctx, id)
}

type ListRequestsInput struct {
	Category    string
	Status      string
	Urgency     string
	Search      string
	RequesterID *primitive.ObjectID
	Page        int
	Limit       int
}

type RequestPage struct {
	Requests []models.Request
	Page     int
	Limit    int
	Total    int64
}

func (p RequestPage) Pages() int64 {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + int64(p.Limit) - 1) / int64(p.Limit)
}

func (s *Service) ListRequests(ctx context.Context, in ListRequestsInput) (*RequestPage, error) {
	f := store.RequestFilter{
		Category:    models.Category(in.Category),
		Status:      models.RequestStatus(in.Status),
		Urgency:     models.Urgency(in.Urgency),
		Search:      strings.TrimSpace(in.Search),
		RequesterID: in.RequesterID,
		Now:         s.now(),
		Page:        in.Page,
		Limit:       in.Limit,
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, apperr.Validation("unknown category %q", in.Category)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", in.Status)
	}
	if f.Urgency != "" && !f.Urgency.Valid() {
		return nil, apperr.Validation("unknown urgency %q", in.Urgency)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	// Keep (Page-1)*Limit representable.
	if maxPage := math.MaxInt / f.Limit; f.Page > maxPage {
		f.Page = maxPage
	}

	requests, total, err := s.store.ListRequests(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return &RequestPage{Requests: requests, Page: f.Page, Limit: f.Limit, Total: total}, nil
}

// UpdateRequestInput carries the descriptive fields an owner may change. Nil
// means unchanged. Money and status are not editable here.
type UpdateRequestInput struct {
	Title            *string
	Description      *string
	Urgency          *models.Urgency
	Deadline         *time.Time
	ItemLostLocation *string
}

func (in UpdateRequestInput) empty() bool {
	return in.Title == nil && in.Description == nil && in.Urgency == nil &&
		in.Deadline == nil && in.ItemLostLocation == nil
}

func (s *Service) UpdateRequest(ctx context.Context, id, userID primitive.ObjectID, in UpdateRequestInput) (*models.Request, error) {
	if in.empty() {
		return nil, apperr.Validation("no fields to update")
	}

	var updated *models.Request
	err := s.retryOnConflict(ctx, "update request", func() error {
		now := s.now()
		r, err := s.loadRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckEdit(r, userID, now); err != nil {
			return err
		}

		next := r.Clone()
		if in.Title != nil {
			if next.Title = strings.TrimSpace(*in.Title); next.Title == "" {
				return apperr.Validation("title cannot be empty")
			}
		}
		if in.Description != nil {
			if next.Description = strings.TrimSpace(*in.Description); next.Description == "" {
				return apperr.Validation("description cannot be empty")
			}
		}
		if in.Urgency != nil {
			if !in.Urgency.Valid() {
				return apperr.Validation("urgency must be one of low, medium, high, critical")
			}
			next.Urgency = *in.Urgency
		}
		if in.Deadline != nil {
			if !in.Deadline.After(now) {
				return apperr.Validation("deadline must be in the future")
			}
			d := *in.Deadline
			next.Deadline = &d
		}
		if in.ItemLostLocation != nil {
			next.ItemLostLocation = strings.TrimSpace(*in.ItemLostLocation)
			if next.Category == models.CategoryLostItem && next.ItemLostLocation == "" {
				return apperr.Validation("item_lost_location is required for lost-item requests")
			}
		}
		next.Version = r.Version + 1
		next.UpdatedAt = now

		if err := s.store.UpdateRequest(ctx, next, r.Version); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type RemovalOutcome string

const (
	RequestDeleted   RemovalOutcome = "deleted"
	RequestCancelled RemovalOutcome = "cancelled"
)

// RemoveRequest deletes a request that never received a contribution and
// soft-cancels one that did, so the ledger keeps its parent.
func (s *Service) RemoveRequest(ctx context.Context, id, userID primitive.ObjectID) (RemovalOutcome, *models.Request, error) {
	var (
		outcome RemovalOutcome
		result  *models.Request
	)
	err := s.retryOnConflict(ctx, "remove request", func() error {
		r, err := s.loadRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckCancel(r, userID); err != nil {
			return err
		}

		if r.ContributionsCount == 0 {
			if err := s.store.DeleteRequest(ctx, r.ID, r.Version); err != nil {
				return fmt.Errorf("delete request: %w", err)
			}
			outcome, result = RequestDeleted, r
			return nil
		}

		next := r.Clone()
		next.Status = models.StatusCancelled
		next.Version = r.Version + 1
		next.UpdatedAt = s.now()
		if err := s.store.UpdateRequest(ctx, next, r.Version); err != nil {
			return fmt.Errorf("cancel request: %w", err)
		}
		outcome, result = RequestCancelled, next
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	s.log.Info("request removed", zap.String("request_id", id.Hex()), zap.String("outcome", string(outcome)))
	return outcome, result, nil
}

// ResolveRequest marks a non-monetary request (found item, help received) as
// completed.
func (s *Service) ResolveRequest(ctx context.Context, id, userID primitive.ObjectID) (*models.Request, error) {
	var resolved *models.Request
	err := s.retryOnConflict(ctx, "resolve request", func() error {
		now := s.now()
		r, err := s.loadRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckResolve(r, userID, now); err != nil {
			return err
		}
		next := r.Clone()
		next.Status = models.StatusCompleted
		next.Version = r.Version + 1
		next.UpdatedAt = now
		if err := s.store.UpdateRequest(ctx, next, r.Version); err != nil {
			return fmt.Errorf("resolve request: %w", err)
		}
		resolved = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// EditableRequest returns the request if userID may change it right now.
// Callers use it to authorise side work, such as uploads, before committing.
func (s *Service) EditableRequest(ctx context.Context, id, userID primitive.ObjectID) (*models.Request, error) {
	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckEdit(r, userID, s.now()); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) AddImages(ctx context.Context, id, userID primitive.ObjectID, urls []string) (*models.Request, error) {
	if len(urls) == 0 {
		return nil, apperr.Validation("no images provided")
	}

	var updated *models.Request
	err := s.retryOnConflict(ctx, "add request images", func() error {
		now := s.now()
		r, err := s.loadRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckEdit(r, userID, now); err != nil {
			return err
		}
		next := r.Clone()
		next.Images = append(next.Images, urls...)
		next.Version = r.Version + 1
		next.UpdatedAt = now
		if err := s.store.UpdateRequest(ctx, next, r.Version); err != nil {
			return fmt.Errorf("add images: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RenderRequestFor loads the requester profile and renders r for viewerID.
func (s *Service) RenderRequestFor(ctx context.Context, r *models.Request, viewerID primitive.ObjectID) (models.RequestView, error) {
	requester, err := s.store.GetUser(ctx, r.RequesterID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return models.RequestView{}, fmt.Errorf("load requester: %w", err)
	}
	return RenderRequest(r, requester, viewerID, s.now()), nil
}

// RenderRequestsFor is RenderRequestFor for a page of requests, loading each
// requester once.
func (s *Service) RenderRequestsFor(ctx context.Context, list []models.Request, viewerID primitive.ObjectID) ([]models.RequestView, error) {
	ids := make([]primitive.ObjectID, 0, len(list))
	for i := range list {
		ids = append(ids, list[i].RequesterID)
	}
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load requesters: %w", err)
	}

	now := s.now()
	views := make([]models.RequestView, 0, len(list))
	for i := range list {
		views = append(views, RenderRequest(&list[i], lookupUser(users, list[i].RequesterID), viewerID, now))
	}
	return views, nil
}
