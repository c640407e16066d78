package controllers

import (
	"github.com/tickethub/tickethub/app/services"
	"github.com/tickethub/tickethub/pkg/ctx"
)

type OrderController struct {
	service *services.OrderService
}

func NewOrderController(service *services.OrderService) *OrderController {
	return &OrderController{service: service}
}

type statusRequest struct {
	Status string `json:"status"`
}

// Index handles GET /admin/orders?filter=.
func (oc *OrderController) Index(c *ctx.Context) {
	orders, err := oc.service.ListOrders(c.Context(), c.Query("filter"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(orders)
}

// UpdateStatus handles PATCH /admin/orders/{id}.
func (oc *OrderController) UpdateStatus(c *ctx.Context) {
	var in statusRequest
	if !c.BindJSON(&in) {
		return
	}
	order, err := oc.service.UpdateOrderStatus(c.Context(), c.Param("id"), in.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(order)
}
