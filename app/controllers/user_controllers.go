package controllers

import (
	"github.com/tickethub/tickethub/app/services"
	"github.com/tickethub/tickethub/pkg/ctx"
)

type UserController struct {
	service *services.UserService
}

func NewUserController(service *services.UserService) *UserController {
	return &UserController{service: service}
}

type roleRequest struct {
	Role string `json:"role"`
}

// UpdateRole handles PATCH /admin/users/{id}.
func (uc *UserController) UpdateRole(c *ctx.Context) {
	var in roleRequest
	if !c.BindJSON(&in) {
		return
	}
	user, err := uc.service.UpdateUserRole(c.Context(), c.Param("id"), in.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(user.Summary())
}
