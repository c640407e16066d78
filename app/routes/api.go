package routes

import (
	"time"

	"github.com/tickethub/tickethub/app/controllers"
	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/pkg/ctx"
	"github.com/tickethub/tickethub/pkg/middleware"
	"github.com/tickethub/tickethub/pkg/rbac"
	"github.com/tickethub/tickethub/pkg/router"
)

// Controllers are the handlers mounted by RegisterAPI.
type Controllers struct {
	Auth     *controllers.AuthController
	Orders   *controllers.OrderController
	Payments *controllers.PaymentController
	Users    *controllers.UserController
}

// RegisterAPI mounts the public auth flows, the authenticated user routes
// and the admin back-office. v verifies bearer tokens.
func RegisterAPI(r *router.Router, c Controllers, v middleware.Verifier) {
	// Each endpoint that sends mail or checks a secret gets its own per-IP
	// budget, tighter than the global one.
	limit := func(n int) router.Middleware { return middleware.RateLimit(n, time.Minute) }

	public := r.Group("/auth")
	public.Post("/register", "auth.register", ctx.Wrap(c.Auth.Register), limit(5))
	public.Post("/login", "auth.login", ctx.Wrap(c.Auth.Login), limit(20))
	public.Post("/forgot-password", "auth.password.forgot", ctx.Wrap(c.Auth.ForgotPassword), limit(5))
	public.Post("/reset-password", "auth.password.reset", ctx.Wrap(c.Auth.ResetPassword), limit(20))
	public.Post("/send-verification", "auth.verification.send", ctx.Wrap(c.Auth.SendVerification), limit(5))
	public.Post("/verify-email", "auth.verification.verify", ctx.Wrap(c.Auth.VerifyEmail), limit(20))

	user := r.Group("", middleware.Auth(v))
	user.Post("/auth/change-password", "auth.password.change", ctx.Wrap(c.Auth.ChangePassword))
	user.Get("/payments/transactions", "payments.transactions", ctx.Wrap(c.Payments.Transactions))

	admin := r.Group("/admin", middleware.Auth(v), rbac.HasRole(string(models.RoleAdmin)))
	admin.Get("/orders", "admin.orders.index", ctx.Wrap(c.Orders.Index))
	admin.Patch("/orders/{id}", "admin.orders.update", ctx.Wrap(c.Orders.UpdateStatus))
	admin.Get("/payments", "admin.payments.index", ctx.Wrap(c.Payments.Index))
	admin.Patch("/payments/{id}", "admin.payments.update", ctx.Wrap(c.Payments.UpdateStatus))
	admin.Patch("/users/{id}", "admin.users.update", ctx.Wrap(c.Users.UpdateRole))
}
