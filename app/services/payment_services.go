package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/app/repositories"
	"github.com/tickethub/tickethub/pkg/logger"
	"github.com/tickethub/tickethub/pkg/metrics"
)

// PaymentService drives admin payment transitions and the payment lists.
type PaymentService struct {
	payments repositories.PaymentRepository
	orders   repositories.OrderRepository
	users    repositories.UserRepository
}

func NewPaymentService(repos repositories.Repositories) *PaymentService {
	return &PaymentService{payments: repos.Payments, orders: repos.Orders, users: repos.Users}
}

// orderFollowUp maps a payment status to the order move it implies.
var orderFollowUp = map[models.PaymentStatus]struct{ from, to models.OrderStatus }{
	models.PaymentCompleted: {models.OrderPending, models.OrderConfirmed},
	models.PaymentRefunded:  {models.OrderConfirmed, models.OrderCancelled},
}

// UpdatePaymentStatus moves a payment to status if the transition table
// allows it. A completed payment confirms its pending order and a refund
// cancels its confirmed order; those follow-ups are best effort.
func (s *PaymentService) UpdatePaymentStatus(ctx context.Context, paymentID, status string) (*models.Payment, error) {
	if status == "" {
		return nil, fail(ErrValidation, "Status is required")
	}
	next, ok := models.ParsePaymentStatus(status)
	if !ok {
		return nil, fail(ErrValidation, "Invalid status")
	}

	notFound := fail(ErrNotFound, "Payment not found")
	id, err := primitive.ObjectIDFromHex(paymentID)
	if err != nil {
		return nil, notFound
	}

	current, err := s.payments.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("update payment status: load: %w", err)
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, paymentTransitionError(current.Status, next)
	}

	updated, err := s.payments.UpdateStatus(ctx, id, current.Status, next)
	switch {
	case errors.Is(err, repositories.ErrStale):
		if latest, rerr := s.payments.FindByID(ctx, id); rerr == nil {
			return nil, paymentTransitionError(latest.Status, next)
		}
		return nil, paymentTransitionError(current.Status, next)
	case errors.Is(err, repositories.ErrNotFound):
		return nil, notFound
	case err != nil:
		return nil, fmt.Errorf("update payment status: persist: %w", err)
	}

	metrics.PaymentTransitions.WithLabelValues(string(current.Status), string(next)).Inc()
	log := logger.WithCtx(ctx)
	log.Info("payment status changed", "payment_id", paymentID, "from", current.Status, "to", next)

	if move, ok := orderFollowUp[next]; ok {
		_, err := s.orders.UpdateStatus(ctx, updated.OrderID, move.from, move.to)
		switch {
		case err == nil:
			metrics.OrderTransitions.WithLabelValues(string(move.from), string(move.to)).Inc()
			log.Info("order status followed payment", "order_id", updated.OrderID.Hex(), "to", move.to)
		case errors.Is(err, repositories.ErrStale):
			// order is not in move.from; nothing to do
		default:
			log.Warn("order follow-up failed", "order_id", updated.OrderID.Hex(), "error", err)
		}
	}
	return updated, nil
}

func paymentTransitionError(from, to models.PaymentStatus) error {
	return fail(ErrIllegalTransition, fmt.Sprintf("Cannot change payment status from %s to %s", from, to))
}

// ListPayments returns payments newest first with their order and the
// order's user.
func (s *PaymentService) ListPayments(ctx context.Context, filter string) ([]models.PaymentView, error) {
	status, err := parsePaymentFilter(filter)
	if err != nil {
		return nil, err
	}

	payments, err := s.payments.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	orderIDs := make([]primitive.ObjectID, 0, len(payments))
	for _, p := range payments {
		orderIDs = append(orderIDs, p.OrderID)
	}
	orders, err := s.orders.FindByIDs(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("list payments: load orders: %w", err)
	}
	userIDs := make([]primitive.ObjectID, 0, len(orders))
	for _, o := range orders {
		userIDs = append(userIDs, o.UserID)
	}
	users, err := s.users.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list payments: load users: %w", err)
	}

	views := make([]models.PaymentView, 0, len(payments))
	for _, p := range payments {
		v := models.PaymentView{
			ID:            p.ID.Hex(),
			TransactionID: p.TransactionID,
			Amount:        p.Amount,
			PaymentMethod: p.PaymentMethod,
			Status:        p.Status,
			CreatedAt:     p.CreatedAt,
		}
		if o, ok := orders[p.OrderID]; ok {
			ref := &models.PaymentOrderRef{ID: o.ID.Hex(), TotalAmount: o.TotalAmount}
			if u, ok := users[o.UserID]; ok {
				ref.User = &models.Contact{Name: u.Name, Email: u.Email}
			}
			v.Order = ref
		}
		views = append(views, v)
	}
	return views, nil
}

// ListTransactions returns the payments of userID's orders, newest first.
func (s *PaymentService) ListTransactions(ctx context.Context, userID, filter string) ([]models.TransactionView, error) {
	status, err := parsePaymentFilter(filter)
	if err != nil {
		return nil, err
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fail(ErrNotFound, "User not found")
	}

	orders, err := s.orders.ListByUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list transactions: load orders: %w", err)
	}
	byID := make(map[primitive.ObjectID]models.Order, len(orders))
	ids := make([]primitive.ObjectID, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}
	payments, err := s.payments.ByOrderIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list transactions: load payments: %w", err)
	}

	views := make([]models.TransactionView, 0, len(payments))
	for orderID, p := range payments {
		if status != "" && p.Status != status {
			continue
		}
		views = append(views, models.TransactionView{
			ID:            p.ID.Hex(),
			TransactionID: p.TransactionID,
			Amount:        p.Amount,
			PaymentMethod: p.PaymentMethod,
			Status:        p.Status,
			CreatedAt:     p.CreatedAt,
			Order:         models.TransactionOrderRef{ID: orderID.Hex(), Items: byID[orderID].Items},
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].ID > views[j].ID
	})
	return views, nil
}

func parsePaymentFilter(filter string) (models.PaymentStatus, error) {
	if filter == "" || filter == "all" {
		return "", nil
	}
	status, ok := models.ParsePaymentStatus(filter)
	if !ok {
		return "", fail(ErrValidation, "Invalid filter")
	}
	return status, nil
}
