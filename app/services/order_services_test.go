package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/app/repositories"
	"github.com/tickethub/tickethub/app/services"
)

func TestUpdateOrderStatus_ConfirmThenBackToPending(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a@x.com", "", models.RoleUser)
	o := f.order(t, owner, models.OrderPending, f.clock.Now())
	ctx := context.Background()

	updated, err := f.orders.UpdateOrderStatus(ctx, o.ID.Hex(), "CONFIRMED")
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, updated.Status)

	_, err = f.orders.UpdateOrderStatus(ctx, o.ID.Hex(), "PENDING")
	assert.ErrorIs(t, err, services.ErrIllegalTransition)
	assert.Equal(t, "Cannot change order status from CONFIRMED to PENDING", services.Message(err))

	stored, err := f.repos.Orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, stored.Status)
}

func TestUpdateOrderStatus_TerminalRejectsEverything(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a@x.com", "", models.RoleUser)
	ctx := context.Background()

	for _, from := range []models.OrderStatus{models.OrderCompleted, models.OrderCancelled} {
		o := f.order(t, owner, from, f.clock.Now())
		for _, to := range models.OrderStatuses {
			_, err := f.orders.UpdateOrderStatus(ctx, o.ID.Hex(), string(to))
			assert.ErrorIs(t, err, services.ErrIllegalTransition, "%s -> %s", from, to)
		}
	}
}

func TestUpdateOrderStatus_Errors(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a@x.com", "", models.RoleUser)
	o := f.order(t, owner, models.OrderPending, f.clock.Now())
	ctx := context.Background()

	tests := []struct {
		name    string
		id      string
		status  string
		wantErr error
		wantMsg string
	}{
		{"missing status", o.ID.Hex(), "", services.ErrValidation, "Status is required"},
		{"unknown status", o.ID.Hex(), "SHIPPED", services.ErrValidation, "Invalid status"},
		{"lower case status", o.ID.Hex(), "confirmed", services.ErrValidation, "Invalid status"},
		{"malformed id", "xyz", "CONFIRMED", services.ErrNotFound, "Order not found"},
		{"absent order", primitive.NewObjectID().Hex(), "CONFIRMED", services.ErrNotFound, "Order not found"},
		{"self transition", o.ID.Hex(), "PENDING", services.ErrIllegalTransition, "Cannot change order status from PENDING to PENDING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.UpdateOrderStatus(ctx, tt.id, tt.status)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantMsg, services.Message(err))
		})
	}
}

// racingOrders lets another writer cancel the order between the read and
// the guarded write.
type racingOrders struct {
	repositories.OrderRepository
}

func (r racingOrders) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.OrderStatus) (*models.Order, error) {
	if _, err := r.OrderRepository.UpdateStatus(ctx, id, from, models.OrderCancelled); err != nil {
		return nil, err
	}
	return r.OrderRepository.UpdateStatus(ctx, id, from, to)
}

func TestUpdateOrderStatus_LostRaceIsIllegal(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a@x.com", "", models.RoleUser)
	o := f.order(t, owner, models.OrderPending, f.clock.Now())

	repos := f.repos
	repos.Orders = racingOrders{f.repos.Orders}
	svc := services.NewOrderService(repos)

	_, err := svc.UpdateOrderStatus(context.Background(), o.ID.Hex(), "CONFIRMED")
	assert.ErrorIs(t, err, services.ErrIllegalTransition)
	assert.Equal(t, "Cannot change order status from CANCELLED to CONFIRMED", services.Message(err))
}

func TestListOrders_ExactFilterNewestFirst(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a@x.com", "", models.RoleUser)
	base := f.clock.Now()

	older := f.order(t, owner, models.OrderConfirmed, base.Add(-2*time.Hour))
	f.order(t, owner, models.OrderPending, base.Add(-time.Hour))
	newer := f.order(t, owner, models.OrderConfirmed, base)
	f.order(t, owner, models.OrderCancelled, base.Add(time.Minute))

	views, err := f.orders.ListOrders(context.Background(), "CONFIRMED")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, newer.ID.Hex(), views[0].ID)
	assert.Equal(t, older.ID.Hex(), views[1].ID)
	for _, v := range views {
		assert.Equal(t, models.OrderConfirmed, v.Status)
	}
}

func TestListOrders_AllAndDenormalized(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a@x.com", "", models.RoleUser)
	base := f.clock.Now()
	paid := f.order(t, owner, models.OrderConfirmed, base)
	f.order(t, owner, models.OrderPending, base.Add(-time.Minute))
	p := f.payment(t, paid, models.PaymentCompleted, base)

	for _, filter := range []string{"", "all"} {
		views, err := f.orders.ListOrders(context.Background(), filter)
		require.NoError(t, err)
		require.Len(t, views, 2, "filter %q", filter)
	}

	views, err := f.orders.ListOrders(context.Background(), "all")
	require.NoError(t, err)

	first := views[0]
	assert.Equal(t, paid.ID.Hex(), first.ID)
	assert.Equal(t, 80.0, first.TotalAmount)
	require.NotNil(t, first.User)
	assert.Equal(t, models.Contact{Name: owner.Name, Email: "a@x.com"}, *first.User)
	require.NotNil(t, first.Payment)
	assert.Equal(t, p.TransactionID, first.Payment.TransactionID)
	assert.Equal(t, models.PaymentCompleted, first.Payment.Status)
	assert.Len(t, first.Items, 1)

	assert.Nil(t, views[1].Payment)
}

func TestListOrders_UnknownFilter(t *testing.T) {
	f := newFixture(t)
	for _, filter := range []string{"shipped", "confirmed", "ALL", " CONFIRMED"} {
		_, err := f.orders.ListOrders(context.Background(), filter)
		assert.ErrorIs(t, err, services.ErrValidation, "filter %q", filter)
		assert.Equal(t, "Invalid filter", services.Message(err))
	}
}
