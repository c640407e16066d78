package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed},
	PaymentCompleted: {PaymentRefunded},
	PaymentFailed:    nil,
	PaymentRefunded:  nil,
}

var PaymentStatuses = []PaymentStatus{PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded}

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	st := PaymentStatus(s)
	_, ok := paymentTransitions[st]
	return st, ok
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

// Payment is a document in the payments collection. OrderID is unique.
type Payment struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"            json:"id"`
	OrderID       primitive.ObjectID `bson:"order_id"                 json:"orderId"`
	TransactionID string             `bson:"transaction_id,omitempty" json:"transactionId"`
	Amount        float64            `bson:"amount"                   json:"amount"`
	PaymentMethod string             `bson:"payment_method"           json:"paymentMethod"`
	Status        PaymentStatus      `bson:"status"                   json:"status"`
	CreatedAt     time.Time          `bson:"created_at"               json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updated_at"               json:"updatedAt"`
}

// PaymentOrderRef is the order summary embedded in the admin payment list.
type PaymentOrderRef struct {
	ID          string   `json:"id"`
	User        *Contact `json:"user"`
	TotalAmount float64  `json:"totalAmount"`
}

// PaymentView is one row of the admin payment list.
type PaymentView struct {
	ID            string           `json:"id"`
	TransactionID string           `json:"transactionId"`
	Amount        float64          `json:"amount"`
	PaymentMethod string           `json:"paymentMethod"`
	Status        PaymentStatus    `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	Order         *PaymentOrderRef `json:"order"`
}

// TransactionView is one row of a user's own payment history.
type TransactionView struct {
	ID            string              `json:"id"`
	TransactionID string              `json:"transactionId"`
	Amount        float64             `json:"amount"`
	PaymentMethod string              `json:"paymentMethod"`
	Status        PaymentStatus       `json:"status"`
	CreatedAt     time.Time           `json:"createdAt"`
	Order         TransactionOrderRef `json:"order"`
}

// TransactionOrderRef is the order a transaction paid for, with its items.
type TransactionOrderRef struct {
	ID    string      `json:"id"`
	Items []OrderItem `json:"orderItems"`
}
