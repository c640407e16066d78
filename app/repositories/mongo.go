package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/pkg/metrics"
)

const (
	usersCollection    = "users"
	ordersCollection   = "orders"
	paymentsCollection = "payments"
)

// NewMongo builds the repositories over db.
func NewMongo(db *mongo.Database) Repositories {
	return Repositories{
		Users:    &MongoUsers{col: db.Collection(usersCollection), now: time.Now},
		Orders:   &MongoOrders{col: db.Collection(ordersCollection), now: time.Now},
		Payments: &MongoPayments{col: db.Collection(paymentsCollection), now: time.Now},
	}
}

// EnsureIndexes creates the unique and sort indexes the repositories rely
// on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		ordersCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		paymentsCollection: {
			{Keys: bson.D{{Key: "order_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}

	for name, idx := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("repositories: indexes on %s: %w", name, err)
		}
	}
	return nil
}

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
}

func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	default:
		return fmt.Errorf("repositories: %s: %w", op, err)
	}
}

// guardedUpdate applies update to the document matching {_id: id} plus
// guard and decodes the result into out. When nothing matched it tells
// ErrNotFound and ErrStale apart with a second read.
func guardedUpdate(ctx context.Context, col *mongo.Collection, id primitive.ObjectID, guard, update bson.M, out interface{}) error {
	filter := bson.M{"_id": id}
	for k, v := range guard {
		filter[k] = v
	}

	err := col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(out)
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return mapErr("update "+col.Name(), err)
	}

	n, err := col.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return mapErr("count "+col.Name(), err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStale
}

// ─── Users ────────────────────────────────────────────────────────────────────

type MongoUsers struct {
	col *mongo.Collection
	now func() time.Time
}

func (r *MongoUsers) Create(ctx context.Context, u *models.User) error {
	defer metrics.ObserveStoreQuery(usersCollection, "insert", time.Now())

	now := r.now().UTC()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := r.col.InsertOne(ctx, u)
	return mapErr("insert user", err)
}

func (r *MongoUsers) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	defer metrics.ObserveStoreQuery(usersCollection, "find", time.Now())

	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, mapErr("find user", err)
	}
	return &u, nil
}

func (r *MongoUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	defer metrics.ObserveStoreQuery(usersCollection, "find", time.Now())

	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"email": email}).Decode(&u); err != nil {
		return nil, mapErr("find user", err)
	}
	return &u, nil
}

func (r *MongoUsers) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	defer metrics.ObserveStoreQuery(usersCollection, "find", time.Now())

	out := make(map[primitive.ObjectID]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, mapErr("find users", err)
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, mapErr("decode users", err)
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

func (r *MongoUsers) SetPassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	defer metrics.ObserveStoreQuery(usersCollection, "update", time.Now())

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"password": hash, "updated_at": r.now().UTC()}})
	if err != nil {
		return mapErr("set password", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUsers) ResetPassword(ctx context.Context, id primitive.ObjectID, hash, nonce string) (bool, error) {
	defer metrics.ObserveStoreQuery(usersCollection, "update", time.Now())

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "reset_nonce": bson.M{"$ne": nonce}},
		bson.M{"$set": bson.M{"password": hash, "reset_nonce": nonce, "updated_at": r.now().UTC()}})
	if err != nil {
		return false, mapErr("reset password", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := r.col.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, mapErr("count users", err)
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *MongoUsers) MarkEmailVerified(ctx context.Context, email string) error {
	defer metrics.ObserveStoreQuery(usersCollection, "update", time.Now())

	res, err := r.col.UpdateOne(ctx, bson.M{"email": email},
		bson.M{"$set": bson.M{"email_verified": true, "updated_at": r.now().UTC()}})
	if err != nil {
		return mapErr("verify email", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUsers) UpdateRole(ctx context.Context, id primitive.ObjectID, role models.Role) (*models.User, error) {
	defer metrics.ObserveStoreQuery(usersCollection, "update", time.Now())

	var u models.User
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"role": role, "updated_at": r.now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	if err != nil {
		return nil, mapErr("update role", err)
	}
	return &u, nil
}

// ─── Orders ───────────────────────────────────────────────────────────────────

type MongoOrders struct {
	col *mongo.Collection
	now func() time.Time
}

func (r *MongoOrders) Create(ctx context.Context, o *models.Order) error {
	defer metrics.ObserveStoreQuery(ordersCollection, "insert", time.Now())

	now := r.now().UTC()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.TotalAmount = models.ComputeTotal(o.Items)
	_, err := r.col.InsertOne(ctx, o)
	return mapErr("insert order", err)
}

func (r *MongoOrders) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	defer metrics.ObserveStoreQuery(ordersCollection, "find", time.Now())

	var o models.Order
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		return nil, mapErr("find order", err)
	}
	return &o, nil
}

func (r *MongoOrders) List(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	return r.find(ctx, filter)
}

func (r *MongoOrders) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	return r.find(ctx, bson.M{"user_id": userID})
}

func (r *MongoOrders) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Order, error) {
	out := make(map[primitive.ObjectID]*models.Order, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	orders, err := r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for i := range orders {
		out[orders[i].ID] = &orders[i]
	}
	return out, nil
}

func (r *MongoOrders) find(ctx context.Context, filter bson.M) ([]models.Order, error) {
	defer metrics.ObserveStoreQuery(ordersCollection, "find", time.Now())

	cur, err := r.col.Find(ctx, filter, newestFirst())
	if err != nil {
		return nil, mapErr("find orders", err)
	}
	orders := []models.Order{}
	if err := cur.All(ctx, &orders); err != nil {
		return nil, mapErr("decode orders", err)
	}
	return orders, nil
}

func (r *MongoOrders) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.OrderStatus) (*models.Order, error) {
	defer metrics.ObserveStoreQuery(ordersCollection, "update", time.Now())

	var o models.Order
	err := guardedUpdate(ctx, r.col, id,
		bson.M{"status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": r.now().UTC()}},
		&o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ─── Payments ─────────────────────────────────────────────────────────────────

type MongoPayments struct {
	col *mongo.Collection
	now func() time.Time
}

func (r *MongoPayments) Create(ctx context.Context, p *models.Payment) error {
	defer metrics.ObserveStoreQuery(paymentsCollection, "insert", time.Now())

	now := r.now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := r.col.InsertOne(ctx, p)
	return mapErr("insert payment", err)
}

func (r *MongoPayments) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	defer metrics.ObserveStoreQuery(paymentsCollection, "find", time.Now())

	var p models.Payment
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, mapErr("find payment", err)
	}
	return &p, nil
}

func (r *MongoPayments) List(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	return r.find(ctx, filter)
}

func (r *MongoPayments) ByOrderIDs(ctx context.Context, orderIDs []primitive.ObjectID) (map[primitive.ObjectID]*models.Payment, error) {
	out := make(map[primitive.ObjectID]*models.Payment, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	payments, err := r.find(ctx, bson.M{"order_id": bson.M{"$in": orderIDs}})
	if err != nil {
		return nil, err
	}
	for i := range payments {
		out[payments[i].OrderID] = &payments[i]
	}
	return out, nil
}

func (r *MongoPayments) find(ctx context.Context, filter bson.M) ([]models.Payment, error) {
	defer metrics.ObserveStoreQuery(paymentsCollection, "find", time.Now())

	cur, err := r.col.Find(ctx, filter, newestFirst())
	if err != nil {
		return nil, mapErr("find payments", err)
	}
	payments := []models.Payment{}
	if err := cur.All(ctx, &payments); err != nil {
		return nil, mapErr("decode payments", err)
	}
	return payments, nil
}

func (r *MongoPayments) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.PaymentStatus) (*models.Payment, error) {
	defer metrics.ObserveStoreQuery(paymentsCollection, "update", time.Now())

	var p models.Payment
	err := guardedUpdate(ctx, r.col, id,
		bson.M{"status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": r.now().UTC()}},
		&p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
