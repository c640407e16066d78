// Package repositories persists users, orders and payments. Every mutation
// is a single-document write; status changes are guarded by the expected
// current status so concurrent writers cannot skip the transition table.
package repositories

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tickethub/tickethub/app/models"
)

var (
	ErrNotFound  = errors.New("repositories: not found")
	ErrDuplicate = errors.New("repositories: duplicate key")
	// ErrStale means the document exists but no longer matches the guard
	// of a conditional write.
	ErrStale = errors.New("repositories: document changed concurrently")
)

type UserRepository interface {
	// Create assigns ID and timestamps. A taken email yields ErrDuplicate.
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// FindByIDs returns the users that exist, keyed by id.
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error)
	SetPassword(ctx context.Context, id primitive.ObjectID, hash string) error
	// ResetPassword writes hash and nonce only if the stored reset_nonce
	// differs from nonce. It reports whether the write was applied; false
	// with a nil error means the same nonce was already redeemed.
	ResetPassword(ctx context.Context, id primitive.ObjectID, hash, nonce string) (bool, error)
	MarkEmailVerified(ctx context.Context, email string) error
	UpdateRole(ctx context.Context, id primitive.ObjectID, role models.Role) (*models.User, error)
}

type OrderRepository interface {
	// Create assigns ID and timestamps and computes TotalAmount.
	Create(ctx context.Context, o *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	// List returns orders newest first. An empty status means all.
	List(ctx context.Context, status models.OrderStatus) ([]models.Order, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Order, error)
	// UpdateStatus moves the order from → to. ErrStale when the current
	// status is no longer from.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.OrderStatus) (*models.Order, error)
}

type PaymentRepository interface {
	// Create assigns ID and timestamps. A second payment for the same order
	// yields ErrDuplicate.
	Create(ctx context.Context, p *models.Payment) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error)
	// List returns payments newest first. An empty status means all.
	List(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error)
	// ByOrderIDs returns the payment of each listed order that has one.
	ByOrderIDs(ctx context.Context, orderIDs []primitive.ObjectID) (map[primitive.ObjectID]*models.Payment, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.PaymentStatus) (*models.Payment, error)
}

// Repositories bundles the three stores handed to the services.
type Repositories struct {
	Users    UserRepository
	Orders   OrderRepository
	Payments PaymentRepository
}
