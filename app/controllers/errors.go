// Package controllers adapts HTTP requests to the services and maps
// service errors onto status codes.
package controllers

import (
	"errors"
	"net/http"

	"github.com/tickethub/tickethub/app/services"
	"github.com/tickethub/tickethub/pkg/ctx"
)

// respondError writes the response for a service error. Errors outside the
// service taxonomy are logged and answered with a generic 500.
func respondError(c *ctx.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrInvalidOrExpiredToken),
		errors.Is(err, services.ErrExpiredToken),
		errors.Is(err, services.ErrInvalidOrExpiredOtp),
		errors.Is(err, services.ErrInvalidCredential):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrIllegalTransition),
		errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		c.Log().Error("request failed", "error", err)
		c.Error(status, http.StatusText(status))
		return
	}

	msg := services.Message(err)
	if msg == "" {
		msg = http.StatusText(status)
	}
	c.Error(status, msg)
}
