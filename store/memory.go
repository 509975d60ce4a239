package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/hela-fund-go/models"
)

// MemoryStore keeps every collection in process memory behind one mutex. It
// honours the same CAS and atomicity contract as MongoStore and backs the
// test suites and STORE_DRIVER=memory.
type MemoryStore struct {
	mu            sync.RWMutex
	requests      map[primitive.ObjectID]*models.Request
	contributions map[primitive.ObjectID]*models.Contribution
	txIDs         map[string]primitive.ObjectID
	users         map[primitive.ObjectID]*models.User
	emails        map[string]primitive.ObjectID
	messages      map[primitive.ObjectID]*models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:      map[primitive.ObjectID]*models.Request{},
		contributions: map[primitive.ObjectID]*models.Contribution{},
		txIDs:         map[string]primitive.ObjectID{},
		users:         map[primitive.ObjectID]*models.User{},
		emails:        map[string]primitive.ObjectID{},
		messages:      map[primitive.ObjectID]*models.Message{},
	}
}

var _ Store = (*MemoryStore)(nil)

// ---------------- REQUESTS ----------------

func (m *MemoryStore) CreateRequest(ctx context.Context, r *models.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	if _, ok := m.requests[r.ID]; ok {
		return ErrDuplicate
	}
	m.requests[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) GetRequest(ctx context.Context, id primitive.ObjectID) (*models.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) ListRequests(ctx context.Context, f RequestFilter) ([]models.Request, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	search := strings.ToLower(f.Search)
	var matched []models.Request
	for _, r := range m.requests {
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		if f.Urgency != "" && r.Urgency != f.Urgency {
			continue
		}
		if f.Status != "" && r.EffectiveStatus(f.Now) != f.Status {
			continue
		}
		if f.RequesterID != nil && r.RequesterID != *f.RequesterID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.Title), search) &&
			!strings.Contains(strings.ToLower(r.Description), search) {
			continue
		}
		matched = append(matched, *r.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.Hex() > matched[j].ID.Hex()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	skip := f.Skip()
	if skip < 0 || skip >= total {
		return []models.Request{}, total, nil
	}
	end := total
	if f.Limit > 0 && int64(f.Limit) < total-skip {
		end = skip + int64(f.Limit)
	}
	return matched[skip:end], total, nil
}

func (m *MemoryStore) UpdateRequest(ctx context.Context, r *models.Request, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersionLocked(r.ID, expectedVersion); err != nil {
		return err
	}
	m.putRequestLocked(r)
	return nil
}

func (m *MemoryStore) DeleteRequest(ctx context.Context, id primitive.ObjectID, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersionLocked(id, expectedVersion); err != nil {
		return err
	}
	delete(m.requests, id)
	return nil
}

func (m *MemoryStore) IncrementViews(ctx context.Context, id primitive.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	r.Views++
	return nil
}

func (m *MemoryStore) checkVersionLocked(id primitive.ObjectID, expected int64) error {
	cur, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expected {
		return ErrVersionConflict
	}
	return nil
}

// putRequestLocked stores r but keeps the live view counter, which is only
// ever changed by IncrementViews.
func (m *MemoryStore) putRequestLocked(r *models.Request) {
	next := r.Clone()
	if cur, ok := m.requests[r.ID]; ok {
		next.Views = cur.Views
	}
	m.requests[r.ID] = next
}

// ---------------- CONTRIBUTIONS ----------------

func (m *MemoryStore) CommitContribution(ctx context.Context, c *models.Contribution, r *models.Request, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersionLocked(r.ID, expectedVersion); err != nil {
		return err
	}
	if _, ok := m.txIDs[c.TransactionID]; ok {
		return ErrDuplicate
	}
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}

	m.contributions[c.ID] = c.Clone()
	m.txIDs[c.TransactionID] = c.ID
	m.putRequestLocked(r)
	return nil
}

func (m *MemoryStore) CommitRefund(ctx context.Context, c *models.Contribution, r *models.Request, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersionLocked(r.ID, expectedVersion); err != nil {
		return err
	}
	cur, ok := m.contributions[c.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.PaymentStatus != models.PaymentCompleted {
		return ErrVersionConflict
	}

	m.contributions[c.ID] = c.Clone()
	m.putRequestLocked(r)
	return nil
}

func (m *MemoryStore) GetContribution(ctx context.Context, id primitive.ObjectID) (*models.Contribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contributions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *MemoryStore) ListContributionsByRequest(ctx context.Context, requestID primitive.ObjectID, status models.PaymentStatus) ([]models.Contribution, error) {
	return m.listContributions(ctx, func(c *models.Contribution) bool {
		return c.RequestID == requestID && (status == "" || c.PaymentStatus == status)
	})
}

func (m *MemoryStore) ListContributionsBySupporter(ctx context.Context, supporterID primitive.ObjectID) ([]models.Contribution, error) {
	return m.listContributions(ctx, func(c *models.Contribution) bool {
		return c.SupporterID == supporterID
	})
}

func (m *MemoryStore) listContributions(ctx context.Context, keep func(*models.Contribution) bool) ([]models.Contribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Contribution{}
	for _, c := range m.contributions {
		if keep(c) {
			out = append(out, *c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ---------------- USERS ----------------

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, ok := m.emails[email]; ok {
		return ErrDuplicate
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	cp := *u
	m.users[u.ID] = &cp
	m.emails[email] = u.ID
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryStore) GetUsers(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[primitive.ObjectID]models.User, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = *u
		}
	}
	return out, nil
}

func (m *MemoryStore) IncrementUserCounter(ctx context.Context, id primitive.ObjectID, counter string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	switch counter {
	case models.CounterContributions:
		u.TotalContributions += delta
	case models.CounterRequests:
		u.TotalRequests += delta
	default:
		return ErrNotFound
	}
	return nil
}

// ---------------- MESSAGES ----------------

func (m *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *MemoryStore) GetMessage(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, userID primitive.ObjectID) ([]models.Message, error) {
	return m.listMessages(ctx, func(msg *models.Message) bool {
		return msg.SenderID == userID || msg.RecipientID == userID
	}, false)
}

func (m *MemoryStore) ListConversation(ctx context.Context, userID, otherID primitive.ObjectID) ([]models.Message, error) {
	return m.listMessages(ctx, func(msg *models.Message) bool {
		return (msg.SenderID == userID && msg.RecipientID == otherID) ||
			(msg.SenderID == otherID && msg.RecipientID == userID)
	}, true)
}

func (m *MemoryStore) listMessages(ctx context.Context, keep func(*models.Message) bool, oldestFirst bool) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Message{}
	for _, msg := range m.messages {
		if keep(msg) {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if oldestFirst {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) MarkMessageRead(ctx context.Context, id primitive.ObjectID, readAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return ErrNotFound
	}
	if !msg.IsRead {
		msg.IsRead = true
		msg.ReadAt = &readAt
	}
	return nil
}

func (m *MemoryStore) CountUnread(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, msg := range m.messages {
		if msg.RecipientID == recipientID && !msg.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }
