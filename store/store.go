package store

import (
	"context"
	"errors"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/hela-fund-go/models"
)

// Sentinel errors shared by every backend.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("concurrent modification detected")
	ErrDuplicate       = errors.New("duplicate key")
)

// RequestFilter selects requests for listing. Status is matched against the
// effective status at Now, so "expired" and "active" are deadline aware.
type RequestFilter struct {
	Category    models.Category
	Status      models.RequestStatus
	Urgency     models.Urgency
	Search      string
	RequesterID *primitive.ObjectID
	Now         time.Time
	Page        int
	Limit       int
}

// Skip is the number of matches before the page. It saturates at
// math.MaxInt64 instead of overflowing.
func (f RequestFilter) Skip() int64 {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	pages, limit := int64(f.Page-1), int64(f.Limit)
	if pages > math.MaxInt64/limit {
		return math.MaxInt64
	}
	return pages * limit
}

// Store is the entity store. Every read returns the latest committed version
// of a document. Aggregate writes on a Request are compare-and-swap on its
// version and fail with ErrVersionConflict when another writer got there first.
type Store interface {
	// --- Requests ---
	CreateRequest(ctx context.Context, r *models.Request) error
	GetRequest(ctx context.Context, id primitive.ObjectID) (*models.Request, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]models.Request, int64, error)
	// UpdateRequest replaces r if the stored version equals expectedVersion.
	UpdateRequest(ctx context.Context, r *models.Request, expectedVersion int64) error
	DeleteRequest(ctx context.Context, id primitive.ObjectID, expectedVersion int64) error
	IncrementViews(ctx context.Context, id primitive.ObjectID) error

	// --- Contributions ---
	// CommitContribution inserts c and replaces r (CAS on expectedVersion) as
	// one atomic unit.
	CommitContribution(ctx context.Context, c *models.Contribution, r *models.Request, expectedVersion int64) error
	// CommitRefund marks c refunded (only if it is still completed) and
	// replaces r (CAS on expectedVersion) as one atomic unit.
	CommitRefund(ctx context.Context, c *models.Contribution, r *models.Request, expectedVersion int64) error
	GetContribution(ctx context.Context, id primitive.ObjectID) (*models.Contribution, error)
	ListContributionsByRequest(ctx context.Context, requestID primitive.ObjectID, status models.PaymentStatus) ([]models.Contribution, error)
	ListContributionsBySupporter(ctx context.Context, supporterID primitive.ObjectID) ([]models.Contribution, error)

	// --- Users ---
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsers(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error)
	IncrementUserCounter(ctx context.Context, id primitive.ObjectID, counter string, delta int64) error

	// --- Messages ---
	CreateMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	ListMessages(ctx context.Context, userID primitive.ObjectID) ([]models.Message, error)
	ListConversation(ctx context.Context, userID, otherID primitive.ObjectID) ([]models.Message, error)
	MarkMessageRead(ctx context.Context, id primitive.ObjectID, readAt time.Time) error
	CountUnread(ctx context.Context, recipientID primitive.ObjectID) (int64, error)

	Close(ctx context.Context) error
}
