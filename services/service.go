package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	apperr "github.com/phillip/hela-fund-go/apperr"
	models "github.com/phillip/hela-fund-go/models"
	store "github.com/phillip/hela-fund-go/store"
)

const (
	DefaultCurrency    = "LKR"
	DefaultMaxAttempts = 3
)

// Mailer delivers notification e-mail. Delivery is best effort: failures are
// logged and never fail the operation that triggered them.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

// Service owns every state change of requests, contributions and messages.
type Service struct {
	store       store.Store
	mailer      Mailer
	log         *zap.Logger
	now         func() time.Time
	newTxID     func() string
	maxAttempts int
	newBackoff  func() backoff.BackOff
}

type Option func(*Service)

func WithMailer(m Mailer) Option { return func(s *Service) { s.mailer = m } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithTransactionIDs(gen func() string) Option { return func(s *Service) { s.newTxID = gen } }

// WithMaxAttempts bounds how many times a conflicting write is attempted
// before the caller gets a ConflictError.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithBackoff(initial, max time.Duration) Option {
	return func(s *Service) {
		s.newBackoff = func() backoff.BackOff { return newExponential(initial, max) }
	}
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:       st,
		log:         zap.NewNop(),
		now:         time.Now,
		newTxID:     NewTransactionID,
		maxAttempts: DefaultMaxAttempts,
		newBackoff:  func() backoff.BackOff { return newExponential(50*time.Millisecond, time.Second) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newExponential(initial, max time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	return b
}

// NewTransactionID returns a collision-free transaction reference backed by a
// random (v4) UUID.
func NewTransactionID() string {
	return "TXN-" + uuid.NewString()
}

// retryOnConflict runs op until it succeeds, fails with anything other than a
// version conflict, or runs out of attempts. Each attempt must reload the
// state it writes.
func (s *Service) retryOnConflict(ctx context.Context, what string, op func() error) error {
	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackoff(), uint64(s.maxAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		attempt++
		err := op()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, store.ErrVersionConflict):
			s.log.Warn("version conflict",
				zap.String("op", what),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", s.maxAttempts))
			return err
		default:
			return backoff.Permanent(err)
		}
	}, policy)

	if errors.Is(err, store.ErrVersionConflict) {
		return apperr.Conflict(err, "too many concurrent updates, please try again")
	}
	return err
}

func (s *Service) loadRequest(ctx context.Context, id primitive.ObjectID) (*models.Request, error) {
	r, err := s.store.GetRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", id.Hex(), err)
	}
	return r, nil
}

// bumpCounter adjusts an advisory user counter. It is not part of any atomic
// unit, so failures are only logged.
func (s *Service) bumpCounter(ctx context.Context, userID primitive.ObjectID, counter string, delta int64) {
	if err := s.store.IncrementUserCounter(ctx, userID, counter, delta); err != nil {
		s.log.Warn("failed to update user counter",
			zap.String("user_id", userID.Hex()),
			zap.String("counter", counter),
			zap.Error(err))
	}
}

func (s *Service) sendMail(ctx context.Context, to, subject, body string) {
	if s.mailer == nil || to == "" {
		return
	}
	if err := s.mailer.SendEmail(ctx, to, subject, body); err != nil {
		s.log.Warn("failed to send email", zap.String("subject", subject), zap.Error(err))
	}
}
