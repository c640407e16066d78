package seeders

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/app/repositories"
	"github.com/tickethub/tickethub/pkg/auth"
)

const (
	AdminEmail    = "admin@tickethub.local"
	CustomerEmail = "customer@tickethub.local"
	demoPassword  = "secret123"
)

func init() {
	Register("users", SeedUsers)
	Register("orders", SeedOrders)
}

// SeedUsers creates one verified admin and one verified customer, both with
// the password "secret123".
func SeedUsers(ctx context.Context, repos repositories.Repositories) error {
	hash, err := auth.HashPassword(demoPassword)
	if err != nil {
		return err
	}
	for _, u := range []models.User{
		{Name: "Admin", Email: AdminEmail, Password: hash, Role: models.RoleAdmin, EmailVerified: true},
		{Name: "Customer", Email: CustomerEmail, Password: hash, Role: models.RoleUser, EmailVerified: true},
	} {
		u := u
		if err := ignoreDuplicate(repos.Users.Create(ctx, &u)); err != nil {
			return err
		}
	}
	return nil
}

// SeedOrders gives the customer one pending order with a pending payment,
// unless they already have orders.
func SeedOrders(ctx context.Context, repos repositories.Repositories) error {
	customer, err := repos.Users.FindByEmail(ctx, CustomerEmail)
	if err != nil {
		return err
	}
	existing, err := repos.Orders.ListByUser(ctx, customer.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	order := &models.Order{
		UserID: customer.ID,
		Items: []models.OrderItem{
			{TicketID: primitive.NewObjectID(), Title: "Opening Night", Quantity: 2, Price: 45},
		},
		Status: models.OrderPending,
	}
	if err := repos.Orders.Create(ctx, order); err != nil {
		return err
	}
	return repos.Payments.Create(ctx, &models.Payment{
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		PaymentMethod: "card",
		Status:        models.PaymentPending,
	})
}
