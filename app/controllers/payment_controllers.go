package controllers

import (
	"net/http"

	"github.com/tickethub/tickethub/app/services"
	"github.com/tickethub/tickethub/pkg/ctx"
	"github.com/tickethub/tickethub/pkg/middleware"
)

type PaymentController struct {
	service *services.PaymentService
}

func NewPaymentController(service *services.PaymentService) *PaymentController {
	return &PaymentController{service: service}
}

// Index handles GET /admin/payments?filter=.
func (pc *PaymentController) Index(c *ctx.Context) {
	payments, err := pc.service.ListPayments(c.Context(), c.Query("filter"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(payments)
}

// UpdateStatus handles PATCH /admin/payments/{id}.
func (pc *PaymentController) UpdateStatus(c *ctx.Context) {
	var in statusRequest
	if !c.BindJSON(&in) {
		return
	}
	payment, err := pc.service.UpdatePaymentStatus(c.Context(), c.Param("id"), in.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(payment)
}

// Transactions handles GET /payments/transactions?filter= for the caller.
func (pc *PaymentController) Transactions(c *ctx.Context) {
	userID, ok := middleware.UserIDFromCtx(c.Context())
	if !ok {
		c.Unauthorized(http.StatusText(http.StatusUnauthorized))
		return
	}
	txs, err := pc.service.ListTransactions(c.Context(), userID, c.Query("filter"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(txs)
}
