package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	models "github.com/phillip/hela-fund-go/models"
)

const (
	colRequests      = "requests"
	colContributions = "contributions"
	colUsers         = "users"
	colMessages      = "messages"
)

// MongoStore is the production Store. Multi-document writes run inside a
// session transaction, which needs a replica set or sharded cluster.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects, pings and makes sure the unique indexes exist.
func NewMongoStore(ctx context.Context, uri, dbName string, log *zap.Logger) (*MongoStore, error) {
	opts := options.Client().ApplyURI(uri).SetRegistry(NewRegistry())
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName), log: log}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	log.Info("connected to mongo", zap.String("db", dbName))
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colContributions: {
			{Keys: bson.D{{Key: "transaction_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "supporter_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colRequests: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "requester_id", Value: 1}}},
		},
		colMessages: {
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "is_read", Value: 1}}},
			{Keys: bson.D{{Key: "sender_id", Value: 1}}},
		},
	}
	for col, idx := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create %s indexes: %w", col, err)
		}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// inTransaction runs fn in a session transaction. The driver retries
// transient transaction errors itself; ErrVersionConflict aborts the attempt
// and is returned as is.
func (s *MongoStore) inTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	}
	return err
}

// ---------------- REQUESTS ----------------

func (s *MongoStore) CreateRequest(ctx context.Context, r *models.Request) error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	_, err := s.db.Collection(colRequests).InsertOne(ctx, r)
	return mapErr(err)
}

func (s *MongoStore) GetRequest(ctx context.Context, id primitive.ObjectID) (*models.Request, error) {
	var r models.Request
	if err := s.db.Collection(colRequests).FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

// requestFilterDoc translates f into a query. The status clause mirrors
// Request.EffectiveStatus.
func requestFilterDoc(f RequestFilter) bson.M {
	var and []bson.M

	if f.Category != "" {
		and = append(and, bson.M{"category": f.Category})
	}
	if f.Urgency != "" {
		and = append(and, bson.M{"urgency": f.Urgency})
	}
	if f.RequesterID != nil {
		and = append(and, bson.M{"requester_id": *f.RequesterID})
	}

	switch f.Status {
	case "":
	case models.StatusExpired:
		and = append(and, bson.M{"status": models.StatusActive, "deadline": bson.M{"$lt": f.Now}})
	case models.StatusActive:
		and = append(and, bson.M{"status": models.StatusActive, "$or": bson.A{
			bson.M{"deadline": nil},
			bson.M{"deadline": bson.M{"$gte": f.Now}},
		}})
	default:
		and = append(and, bson.M{"status": f.Status})
	}

	if q := strings.TrimSpace(f.Search); q != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		}})
	}

	if len(and) == 0 {
		return bson.M{}
	}
	return bson.M{"$and": and}
}

func (s *MongoStore) ListRequests(ctx context.Context, f RequestFilter) ([]models.Request, int64, error) {
	col := s.db.Collection(colRequests)
	filter := requestFilterDoc(f)

	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	skip := f.Skip()
	if skip < 0 || skip >= total {
		return []models.Request{}, total, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip)
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find requests: %w", err)
	}
	requests := []models.Request{}
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, 0, fmt.Errorf("decode requests: %w", err)
	}
	return requests, total, nil
}

// requestUpdateDoc sets every stored field of r except views, which only
// IncrementViews touches.
func requestUpdateDoc(r *models.Request) bson.M {
	set := bson.M{
		"requester_id":        r.RequesterID,
		"title":               r.Title,
		"description":         r.Description,
		"category":            r.Category,
		"target_amount":       r.TargetAmount,
		"current_amount":      r.CurrentAmount,
		"currency":            r.Currency,
		"status":              r.Status,
		"urgency":             r.Urgency,
		"supporter_ids":       r.SupporterIDs,
		"contributions_count": r.ContributionsCount,
		"anonymous":           r.Anonymous,
		"is_verified":         r.IsVerified,
		"images":              r.Images,
		"version":             r.Version,
		"created_at":          r.CreatedAt,
		"updated_at":          r.UpdatedAt,
	}
	unset := bson.M{}
	if r.Deadline != nil {
		set["deadline"] = *r.Deadline
	} else {
		unset["deadline"] = ""
	}
	if r.ItemLostLocation != "" {
		set["item_lost_location"] = r.ItemLostLocation
	} else {
		unset["item_lost_location"] = ""
	}

	doc := bson.M{"$set": set}
	if len(unset) > 0 {
		doc["$unset"] = unset
	}
	return doc
}

// replaceRequest is the CAS write every aggregate mutation goes through.
func replaceRequest(ctx context.Context, col *mongo.Collection, r *models.Request, expectedVersion int64) error {
	res, err := col.UpdateOne(ctx, bson.M{"_id": r.ID, "version": expectedVersion}, requestUpdateDoc(r))
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return casMiss(ctx, col, r.ID)
	}
	return nil
}

// casMiss tells a missing document apart from a stale version.
func casMiss(ctx context.Context, col *mongo.Collection, id primitive.ObjectID) error {
	n, err := col.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (s *MongoStore) UpdateRequest(ctx context.Context, r *models.Request, expectedVersion int64) error {
	return replaceRequest(ctx, s.db.Collection(colRequests), r, expectedVersion)
}

func (s *MongoStore) DeleteRequest(ctx context.Context, id primitive.ObjectID, expectedVersion int64) error {
	col := s.db.Collection(colRequests)
	res, err := col.DeleteOne(ctx, bson.M{"_id": id, "version": expectedVersion})
	if err != nil {
		return mapErr(err)
	}
	if res.DeletedCount == 0 {
		return casMiss(ctx, col, id)
	}
	return nil
}

func (s *MongoStore) IncrementViews(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.db.Collection(colRequests).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------- CONTRIBUTIONS ----------------

func (s *MongoStore) CommitContribution(ctx context.Context, c *models.Contribution, r *models.Request, expectedVersion int64) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	return s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.db.Collection(colContributions).InsertOne(sc, c); err != nil {
			return mapErr(err)
		}
		return replaceRequest(sc, s.db.Collection(colRequests), r, expectedVersion)
	})
}

func (s *MongoStore) CommitRefund(ctx context.Context, c *models.Contribution, r *models.Request, expectedVersion int64) error {
	return s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		res, err := s.db.Collection(colContributions).ReplaceOne(sc,
			bson.M{"_id": c.ID, "payment_status": models.PaymentCompleted}, c)
		if err != nil {
			return mapErr(err)
		}
		if res.MatchedCount == 0 {
			return ErrVersionConflict
		}
		return replaceRequest(sc, s.db.Collection(colRequests), r, expectedVersion)
	})
}

func (s *MongoStore) GetContribution(ctx context.Context, id primitive.ObjectID) (*models.Contribution, error) {
	var c models.Contribution
	if err := s.db.Collection(colContributions).FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (s *MongoStore) findContributions(ctx context.Context, filter bson.M) ([]models.Contribution, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.db.Collection(colContributions).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find contributions: %w", err)
	}
	out := []models.Contribution{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode contributions: %w", err)
	}
	return out, nil
}

func (s *MongoStore) ListContributionsByRequest(ctx context.Context, requestID primitive.ObjectID, status models.PaymentStatus) ([]models.Contribution, error) {
	filter := bson.M{"request_id": requestID}
	if status != "" {
		filter["payment_status"] = status
	}
	return s.findContributions(ctx, filter)
}

func (s *MongoStore) ListContributionsBySupporter(ctx context.Context, supporterID primitive.ObjectID) ([]models.Contribution, error) {
	return s.findContributions(ctx, bson.M{"supporter_id": supporterID})
}

// ---------------- USERS ----------------

func (s *MongoStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.Email = strings.ToLower(u.Email)
	_, err := s.db.Collection(colUsers).InsertOne(ctx, u)
	return mapErr(err)
}

func (s *MongoStore) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.db.Collection(colUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.Collection(colUsers).FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&u)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *MongoStore) GetUsers(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	out := make(map[primitive.ObjectID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cursor, err := s.db.Collection(colUsers).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (s *MongoStore) IncrementUserCounter(ctx context.Context, id primitive.ObjectID, counter string, delta int64) error {
	if counter != models.CounterContributions && counter != models.CounterRequests {
		return fmt.Errorf("unknown user counter %q", counter)
	}
	res, err := s.db.Collection(colUsers).UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{counter: delta},
		"$set": bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------- MESSAGES ----------------

func (s *MongoStore) CreateMessage(ctx context.Context, m *models.Message) error {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	_, err := s.db.Collection(colMessages).InsertOne(ctx, m)
	return mapErr(err)
}

func (s *MongoStore) GetMessage(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var m models.Message
	if err := s.db.Collection(colMessages).FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (s *MongoStore) findMessages(ctx context.Context, filter bson.M, sortDir int) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: sortDir}})
	cursor, err := s.db.Collection(colMessages).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	out := []models.Message{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return out, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, userID primitive.ObjectID) ([]models.Message, error) {
	return s.findMessages(ctx, bson.M{"$or": bson.A{
		bson.M{"sender_id": userID},
		bson.M{"recipient_id": userID},
	}}, -1)
}

func (s *MongoStore) ListConversation(ctx context.Context, userID, otherID primitive.ObjectID) ([]models.Message, error) {
	return s.findMessages(ctx, bson.M{"$or": bson.A{
		bson.M{"sender_id": userID, "recipient_id": otherID},
		bson.M{"sender_id": otherID, "recipient_id": userID},
	}}, 1)
}

func (s *MongoStore) MarkMessageRead(ctx context.Context, id primitive.ObjectID, readAt time.Time) error {
	col := s.db.Collection(colMessages)
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": id, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": readAt}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		// Already read is fine; a missing message is not.
		n, err := col.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (s *MongoStore) CountUnread(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	return s.db.Collection(colMessages).CountDocuments(ctx, bson.M{"recipient_id": recipientID, "is_read": false})
}
