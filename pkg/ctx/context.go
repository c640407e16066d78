// Package ctx gives handlers a single *Context instead of the
// (http.ResponseWriter, *http.Request) pair:
//
//	func (h *OrderController) UpdateStatus(c *ctx.Context) {
//	    id := c.Param("id")
//	    c.Success(order)
//	}
//
//	router.Patch("/orders/{id}", "admin.orders.update", ctx.Wrap(h.UpdateStatus))
package ctx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/tickethub/tickethub/pkg/bind"
	"github.com/tickethub/tickethub/pkg/logger"
	"github.com/tickethub/tickethub/pkg/response"
	"github.com/tickethub/tickethub/pkg/validate"
)

// HandlerFunc is the context-aware handler signature.
type HandlerFunc func(c *Context)

// Wrap converts a HandlerFunc to a standard http.HandlerFunc.
func Wrap(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := acquire(w, r)
		defer release(c)
		h(c)
	}
}

// Context wraps one request/response pair.
type Context struct {
	W      http.ResponseWriter
	R      *http.Request
	status int
}

var pool = sync.Pool{
	New: func() any { return &Context{} },
}

func acquire(w http.ResponseWriter, r *http.Request) *Context {
	c := pool.Get().(*Context)
	c.W = w
	c.R = r
	c.status = 0
	return c
}

func release(c *Context) {
	c.W = nil
	c.R = nil
	pool.Put(c)
}

// ─── Request helpers ──────────────────────────────────────────────────────────

// Param returns a URL path parameter.
func (c *Context) Param(key string) string {
	return chi.URLParam(c.R, key)
}

// Query returns a trimmed query-string value, "" if absent.
func (c *Context) Query(key string) string {
	return strings.TrimSpace(c.R.URL.Query().Get(key))
}

// DefaultQuery returns Query(key), or def when it is empty.
func (c *Context) DefaultQuery(key, def string) string {
	if v := c.Query(key); v != "" {
		return v
	}
	return def
}

func (c *Context) Header(key string) string {
	return c.R.Header.Get(key)
}

// ClientIP returns the address of the client as seen through the trusted
// proxies. See SetTrustedProxies.
func (c *Context) ClientIP() string {
	return ClientIP(c.R)
}

// Context returns the request context.
func (c *Context) Context() context.Context { return c.R.Context() }

// Log returns the request-scoped logger.
func (c *Context) Log() *slog.Logger { return logger.WithCtx(c.R.Context()) }

// ─── Binding ──────────────────────────────────────────────────────────────────

// BindJSON decodes and validates the body into dest. On failure it writes
// a 400 (malformed body) or 422 (field errors) and returns false.
//
//	var in LoginInput
//	if !c.BindJSON(&in) {
//	    return
//	}
func (c *Context) BindJSON(dest any) bool {
	errs, err := bind.JSON(c.W, c.R, dest)
	if err != nil {
		c.Error(http.StatusBadRequest, err.Error())
		return false
	}
	if validate.HasErrors(errs) {
		c.ValidationError(errs)
		return false
	}
	return true
}

// ─── Responses ────────────────────────────────────────────────────────────────

func (c *Context) write(code int, body response.Envelope) {
	c.status = code
	response.Write(c.W, code, body)
}

// Success sends {"status":200,"data":...}.
func (c *Context) Success(data any) {
	c.write(http.StatusOK, response.Envelope{Status: http.StatusOK, Data: data})
}

// Message sends {"status":200,"message":...}.
func (c *Context) Message(message string) {
	c.write(http.StatusOK, response.Envelope{Status: http.StatusOK, Message: message})
}

func (c *Context) Created(data any) {
	c.write(http.StatusCreated, response.Envelope{Status: http.StatusCreated, Data: data})
}

func (c *Context) Error(code int, message string) {
	c.write(code, response.Envelope{Status: code, Message: message})
}

func (c *Context) ValidationError(errs map[string]string) {
	c.write(http.StatusUnprocessableEntity, response.Envelope{
		Status:  http.StatusUnprocessableEntity,
		Message: "Validation failed",
		Errors:  errs,
	})
}

func (c *Context) Unauthorized(message string) {
	c.Error(http.StatusUnauthorized, message)
}

func (c *Context) NotFound(message string) {
	c.Error(http.StatusNotFound, message)
}

// WrittenStatus returns the status written so far, or 0.
func (c *Context) WrittenStatus() int { return c.status }
