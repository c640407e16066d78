package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tickethub/tickethub/app/models"
)

func TestOrderTransitions(t *testing.T) {
	allowed := map[[2]models.OrderStatus]bool{
		{models.OrderPending, models.OrderConfirmed}:   true,
		{models.OrderPending, models.OrderCancelled}:   true,
		{models.OrderConfirmed, models.OrderCompleted}: true,
		{models.OrderConfirmed, models.OrderCancelled}: true,
	}

	for _, from := range models.OrderStatuses {
		for _, to := range models.OrderStatuses {
			want := allowed[[2]models.OrderStatus{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOrderTerminalStatusesRejectEverything(t *testing.T) {
	for _, from := range []models.OrderStatus{models.OrderCompleted, models.OrderCancelled} {
		assert.True(t, from.Terminal())
		for _, to := range models.OrderStatuses {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.False(t, models.OrderPending.Terminal())
}

func TestPaymentTransitions(t *testing.T) {
	allowed := map[[2]models.PaymentStatus]bool{
		{models.PaymentPending, models.PaymentCompleted}:  true,
		{models.PaymentPending, models.PaymentFailed}:     true,
		{models.PaymentCompleted, models.PaymentRefunded}: true,
	}

	for _, from := range models.PaymentStatuses {
		for _, to := range models.PaymentStatuses {
			want := allowed[[2]models.PaymentStatus{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, models.PaymentFailed.Terminal())
	assert.True(t, models.PaymentRefunded.Terminal())
}

func TestParse(t *testing.T) {
	st, ok := models.ParseOrderStatus("CONFIRMED")
	assert.True(t, ok)
	assert.Equal(t, models.OrderConfirmed, st)

	for _, bad := range []string{"", "confirmed", "SHIPPED", "all"} {
		_, ok = models.ParseOrderStatus(bad)
		assert.False(t, ok, bad)
		_, ok = models.ParsePaymentStatus(bad)
		assert.False(t, ok, bad)
	}

	_, ok = models.ParsePaymentStatus("REFUNDED")
	assert.True(t, ok)

	r, ok := models.ParseRole("ADMIN")
	assert.True(t, ok)
	assert.Equal(t, models.RoleAdmin, r)
	_, ok = models.ParseRole("SUPERUSER")
	assert.False(t, ok)
}

func TestComputeTotal(t *testing.T) {
	items := []models.OrderItem{{Quantity: 2, Price: 25}, {Quantity: 1, Price: 10.5}}
	assert.InDelta(t, 60.5, models.ComputeTotal(items), 1e-9)
	assert.Zero(t, models.ComputeTotal(nil))
}
