package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/app/repositories"
	"github.com/tickethub/tickethub/pkg/logger"
	"github.com/tickethub/tickethub/pkg/metrics"
)

// OrderService drives admin order transitions and the admin order list.
type OrderService struct {
	orders   repositories.OrderRepository
	users    repositories.UserRepository
	payments repositories.PaymentRepository
}

func NewOrderService(repos repositories.Repositories) *OrderService {
	return &OrderService{orders: repos.Orders, users: repos.Users, payments: repos.Payments}
}

// UpdateOrderStatus moves an order to status if the transition table
// allows it. The write only lands if the order still has the status that
// was checked.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID, status string) (*models.Order, error) {
	if status == "" {
		return nil, fail(ErrValidation, "Status is required")
	}
	next, ok := models.ParseOrderStatus(status)
	if !ok {
		return nil, fail(ErrValidation, "Invalid status")
	}

	notFound := fail(ErrNotFound, "Order not found")
	id, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, notFound
	}

	current, err := s.orders.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: load: %w", err)
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, orderTransitionError(current.Status, next)
	}

	updated, err := s.orders.UpdateStatus(ctx, id, current.Status, next)
	switch {
	case errors.Is(err, repositories.ErrStale):
		if latest, rerr := s.orders.FindByID(ctx, id); rerr == nil {
			return nil, orderTransitionError(latest.Status, next)
		}
		return nil, orderTransitionError(current.Status, next)
	case errors.Is(err, repositories.ErrNotFound):
		return nil, notFound
	case err != nil:
		return nil, fmt.Errorf("update order status: persist: %w", err)
	}

	metrics.OrderTransitions.WithLabelValues(string(current.Status), string(next)).Inc()
	logger.WithCtx(ctx).Info("order status changed",
		"order_id", orderID, "from", current.Status, "to", next)
	return updated, nil
}

func orderTransitionError(from, to models.OrderStatus) error {
	return fail(ErrIllegalTransition, fmt.Sprintf("Cannot change order status from %s to %s", from, to))
}

// ListOrders returns orders newest first with their user, items and
// payment. filter is "all", empty, or one order status.
func (s *OrderService) ListOrders(ctx context.Context, filter string) ([]models.OrderView, error) {
	status, err := parseOrderFilter(filter)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	userIDs := make([]primitive.ObjectID, 0, len(orders))
	orderIDs := make([]primitive.ObjectID, 0, len(orders))
	for _, o := range orders {
		userIDs = append(userIDs, o.UserID)
		orderIDs = append(orderIDs, o.ID)
	}
	users, err := s.users.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list orders: load users: %w", err)
	}
	payments, err := s.payments.ByOrderIDs(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("list orders: load payments: %w", err)
	}

	views := make([]models.OrderView, 0, len(orders))
	for _, o := range orders {
		v := models.OrderView{
			ID:          o.ID.Hex(),
			UserID:      o.UserID.Hex(),
			TotalAmount: o.TotalAmount,
			Status:      o.Status,
			CreatedAt:   o.CreatedAt,
			UpdatedAt:   o.UpdatedAt,
			Items:       o.Items,
		}
		if u, ok := users[o.UserID]; ok {
			v.User = &models.Contact{Name: u.Name, Email: u.Email}
		}
		if p, ok := payments[o.ID]; ok {
			v.Payment = &models.OrderPaymentRef{TransactionID: p.TransactionID, Status: p.Status}
		}
		views = append(views, v)
	}
	return views, nil
}

func parseOrderFilter(filter string) (models.OrderStatus, error) {
	if filter == "" || filter == "all" {
		return "", nil
	}
	status, ok := models.ParseOrderStatus(filter)
	if !ok {
		return "", fail(ErrValidation, "Invalid filter")
	}
	return status, nil
}
