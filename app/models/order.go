package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderCompleted, OrderCancelled},
	OrderCompleted: nil,
	OrderCancelled: nil,
}

// OrderStatuses lists every order status in lifecycle order.
var OrderStatuses = []OrderStatus{OrderPending, OrderConfirmed, OrderCompleted, OrderCancelled}

// ParseOrderStatus accepts the exact upper-case status names.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	_, ok := orderTransitions[st]
	return st, ok
}

// CanTransitionTo reports whether next is reachable from s in one step.
// A status never transitions to itself.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// OrderItem is a purchase-time snapshot of one ticket line.
type OrderItem struct {
	TicketID primitive.ObjectID `bson:"ticket_id" json:"ticketId"`
	Title    string             `bson:"title"     json:"title"`
	Quantity int                `bson:"quantity"  json:"quantity"`
	Price    float64            `bson:"price"     json:"price"`
}

// Order is a document in the orders collection.
type Order struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id"       json:"userId"`
	Items       []OrderItem        `bson:"items"         json:"items"`
	TotalAmount float64            `bson:"total_amount"  json:"totalAmount"`
	Status      OrderStatus        `bson:"status"        json:"status"`
	CreatedAt   time.Time          `bson:"created_at"    json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updated_at"    json:"updatedAt"`
}

// ComputeTotal sums quantity × price over the items.
func ComputeTotal(items []OrderItem) float64 {
	var total float64
	for _, it := range items {
		total += float64(it.Quantity) * it.Price
	}
	return total
}

// OrderPaymentRef is the payment summary embedded in the admin order list.
type OrderPaymentRef struct {
	TransactionID string        `json:"transactionId"`
	Status        PaymentStatus `json:"status"`
}

// OrderView is one row of the admin order list.
type OrderView struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	TotalAmount float64          `json:"totalAmount"`
	Status      OrderStatus      `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	User        *Contact         `json:"user"`
	Items       []OrderItem      `json:"orderItems"`
	Payment     *OrderPaymentRef `json:"payment"`
}
