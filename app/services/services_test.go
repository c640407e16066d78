package services_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/app/notifications"
	"github.com/tickethub/tickethub/app/repositories"
	"github.com/tickethub/tickethub/app/services"
	"github.com/tickethub/tickethub/pkg/auth"
	"github.com/tickethub/tickethub/pkg/cache"
	"github.com/tickethub/tickethub/pkg/notification"
)

// ─── Test doubles ─────────────────────────────────────────────────────────────

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type delivery struct {
	to string
	n  notification.Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []delivery
}

func (r *recordingNotifier) Notify(_ context.Context, to string, n notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, delivery{to: to, n: n})
	return nil
}

func (r *recordingNotifier) all() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.sent...)
}

// ─── Fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	repos    repositories.Repositories
	cache    *cache.MemoryStore
	notifier *recordingNotifier
	clock    *clock
	codec    *auth.Codec

	auth     *services.AuthService
	orders   *services.OrderService
	payments *services.PaymentService
	users    *services.UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore(cache.WithMemoryClock(clk.Now))
	t.Cleanup(store.Close)

	codec, err := auth.NewCodec("test-secret", auth.WithClock(clk.Now))
	require.NoError(t, err)

	repos := repositories.NewMemory()
	n := &recordingNotifier{}
	return &fixture{
		repos:    repos,
		cache:    store,
		notifier: n,
		clock:    clk,
		codec:    codec,
		auth: services.NewAuthService(services.AuthDeps{
			Users:      repos.Users,
			Cache:      store,
			Notifier:   n,
			Codec:      codec,
			AppURL:     "http://localhost:3000/",
			OTPTTL:     10 * time.Minute,
			SessionTTL: time.Hour,
			Now:        clk.Now,
		}),
		orders:   services.NewOrderService(repos),
		payments: services.NewPaymentService(repos),
		users:    services.NewUserService(repos.Users),
	}
}

func (f *fixture) user(t *testing.T, email, password string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Name: "User " + email, Email: email, Role: role}
	if password != "" {
		hash, err := auth.HashPassword(password)
		require.NoError(t, err)
		u.Password = hash
	}
	require.NoError(t, f.repos.Users.Create(context.Background(), u))
	return u
}

func (f *fixture) order(t *testing.T, owner *models.User, status models.OrderStatus, createdAt time.Time) *models.Order {
	t.Helper()
	o := &models.Order{
		UserID:    owner.ID,
		Status:    status,
		CreatedAt: createdAt,
		Items:     []models.OrderItem{{Title: "Final", Quantity: 2, Price: 40}},
	}
	require.NoError(t, f.repos.Orders.Create(context.Background(), o))
	return o
}

func (f *fixture) payment(t *testing.T, o *models.Order, status models.PaymentStatus, createdAt time.Time) *models.Payment {
	t.Helper()
	p := &models.Payment{
		OrderID:       o.ID,
		TransactionID: "tx-" + o.ID.Hex()[18:],
		Amount:        o.TotalAmount,
		PaymentMethod: "card",
		Status:        status,
		CreatedAt:     createdAt,
	}
	require.NoError(t, f.repos.Payments.Create(context.Background(), p))
	return p
}

// resetToken extracts the token from the last reset link sent.
func (f *fixture) resetToken(t *testing.T) string {
	t.Helper()
	sent := f.notifier.all()
	require.NotEmpty(t, sent)
	msg, ok := sent[len(sent)-1].n.(notifications.PasswordReset)
	require.True(t, ok, "last notification is %T", sent[len(sent)-1].n)
	u, err := url.Parse(msg.URL)
	require.NoError(t, err)
	return u.Query().Get("token")
}

// lastCode returns the last verification code sent.
func (f *fixture) lastCode(t *testing.T) string {
	t.Helper()
	sent := f.notifier.all()
	require.NotEmpty(t, sent)
	msg, ok := sent[len(sent)-1].n.(notifications.VerificationCode)
	require.True(t, ok, "last notification is %T", sent[len(sent)-1].n)
	return msg.Code
}
