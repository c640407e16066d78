// Package kernel assembles the HTTP handler: global middleware, system
// endpoints and the API routes.
package kernel

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tickethub/tickethub/app/controllers"
	"github.com/tickethub/tickethub/app/routes"
	"github.com/tickethub/tickethub/app/services"
	"github.com/tickethub/tickethub/pkg/auth"
	"github.com/tickethub/tickethub/pkg/metrics"
	"github.com/tickethub/tickethub/pkg/middleware"
	"github.com/tickethub/tickethub/pkg/reqid"
	"github.com/tickethub/tickethub/pkg/response"
	"github.com/tickethub/tickethub/pkg/router"
)

// Check pings one backing service for /health.
type Check func(ctx context.Context) error

// Dependencies is everything the HTTP layer needs. Nil services are
// tolerated for route listing.
type Dependencies struct {
	Codec    *auth.Codec
	Auth     *services.AuthService
	Orders   *services.OrderService
	Payments *services.PaymentService
	Users    *services.UserService
	Checks   map[string]Check
}

// New builds the router with the global middleware stack, outermost first:
// metrics, recovery, request id, logger, CORS, rate limit.
func New(d Dependencies) *router.Router {
	r := router.New()

	r.Use(metrics.Middleware())
	r.Use(middleware.Recovery)
	r.Use(reqid.Middleware())
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(middleware.DefaultCORSOptions()))
	r.Use(middleware.RateLimit(200, time.Minute))

	r.Get("/metrics", "metrics", metrics.Handler())
	r.Get("/health", "health", health(d.Checks))

	routes.RegisterAPI(r, routes.Controllers{
		Auth:     controllers.NewAuthController(d.Auth),
		Orders:   controllers.NewOrderController(d.Orders),
		Payments: controllers.NewPaymentController(d.Payments),
		Users:    controllers.NewUserController(d.Users),
	}, d.Codec)

	return r
}

func health(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := map[string]string{}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			response.Write(w, http.StatusServiceUnavailable, response.Envelope{
				Status:  http.StatusServiceUnavailable,
				Message: "unhealthy",
				Errors:  failed,
			})
			return
		}
		response.Message(w, "ok")
	}
}
