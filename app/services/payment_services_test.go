package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/app/services"
)

func TestUpdatePaymentStatus_FollowsOrder(t *testing.T) {
	tests := []struct {
		name        string
		order       models.OrderStatus
		payment     models.PaymentStatus
		to          models.PaymentStatus
		wantOrderAt models.OrderStatus
	}{
		{"completion confirms pending order", models.OrderPending, models.PaymentPending, models.PaymentCompleted, models.OrderConfirmed},
		{"completion leaves cancelled order", models.OrderCancelled, models.PaymentPending, models.PaymentCompleted, models.OrderCancelled},
		{"refund cancels confirmed order", models.OrderConfirmed, models.PaymentCompleted, models.PaymentRefunded, models.OrderCancelled},
		{"refund leaves completed order", models.OrderCompleted, models.PaymentCompleted, models.PaymentRefunded, models.OrderCompleted},
		{"failure leaves order", models.OrderPending, models.PaymentPending, models.PaymentFailed, models.OrderPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			owner := f.user(t, "a@x.com", "", models.RoleUser)
			o := f.order(t, owner, tt.order, f.clock.Now())
			p := f.payment(t, o, tt.payment, f.clock.Now())
			ctx := context.Background()

			updated, err := f.payments.UpdatePaymentStatus(ctx, p.ID.Hex(), string(tt.to))
			require.NoError(t, err)
			assert.Equal(t, tt.to, updated.Status)

			stored, err := f.repos.Orders.FindByID(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrderAt, stored.Status)
		})
	}
}

func TestUpdatePaymentStatus_Illegal(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a@x.com", "", models.RoleUser)
	o := f.order(t, owner, models.OrderPending, f.clock.Now())
	p := f.payment(t, o, models.PaymentFailed, f.clock.Now())

	_, err := f.payments.UpdatePaymentStatus(context.Background(), p.ID.Hex(), "COMPLETED")
	assert.ErrorIs(t, err, services.ErrIllegalTransition)
	assert.Equal(t, "Cannot change payment status from FAILED to COMPLETED", services.Message(err))

	_, err = f.payments.UpdatePaymentStatus(context.Background(), p.ID.Hex(), "LOST")
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = f.payments.UpdatePaymentStatus(context.Background(), "000000000000000000000000", "COMPLETED")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestListPayments(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a@x.com", "", models.RoleUser)
	base := f.clock.Now()
	o1 := f.order(t, owner, models.OrderConfirmed, base.Add(-time.Hour))
	o2 := f.order(t, owner, models.OrderPending, base)
	p1 := f.payment(t, o1, models.PaymentCompleted, base.Add(-time.Hour))
	p2 := f.payment(t, o2, models.PaymentPending, base)

	all, err := f.payments.ListPayments(context.Background(), "all")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, p2.ID.Hex(), all[0].ID)
	assert.Equal(t, p1.ID.Hex(), all[1].ID)

	require.NotNil(t, all[1].Order)
	assert.Equal(t, o1.ID.Hex(), all[1].Order.ID)
	assert.Equal(t, 80.0, all[1].Order.TotalAmount)
	require.NotNil(t, all[1].Order.User)
	assert.Equal(t, "a@x.com", all[1].Order.User.Email)

	completed, err := f.payments.ListPayments(context.Background(), "COMPLETED")
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, p1.ID.Hex(), completed[0].ID)

	_, err = f.payments.ListPayments(context.Background(), "bogus")
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestListTransactions_OnlyOwnPayments(t *testing.T) {
	f := newFixture(t)
	me := f.user(t, "me@x.com", "", models.RoleUser)
	other := f.user(t, "other@x.com", "", models.RoleUser)
	base := f.clock.Now()

	mine1 := f.payment(t, f.order(t, me, models.OrderConfirmed, base), models.PaymentCompleted, base.Add(-time.Hour))
	mine2 := f.payment(t, f.order(t, me, models.OrderPending, base), models.PaymentPending, base)
	f.payment(t, f.order(t, other, models.OrderConfirmed, base), models.PaymentCompleted, base)
	f.order(t, me, models.OrderPending, base) // no payment yet

	views, err := f.payments.ListTransactions(context.Background(), me.ID.Hex(), "")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, mine2.ID.Hex(), views[0].ID)
	assert.Equal(t, mine1.ID.Hex(), views[1].ID)
	assert.Equal(t, mine1.OrderID.Hex(), views[1].Order.ID)
	assert.Len(t, views[1].Order.Items, 1)

	completed, err := f.payments.ListTransactions(context.Background(), me.ID.Hex(), "completed")
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, mine1.ID.Hex(), completed[0].ID)
}
