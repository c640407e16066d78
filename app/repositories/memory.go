package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tickethub/tickethub/app/models"
)

// NewMemory builds process-local repositories. Records are copied on the
// way in and out so callers never share state with the store.
func NewMemory() Repositories {
	return Repositories{
		Users:    &MemoryUsers{byID: map[primitive.ObjectID]models.User{}, now: time.Now},
		Orders:   &MemoryOrders{byID: map[primitive.ObjectID]models.Order{}, now: time.Now},
		Payments: &MemoryPayments{byID: map[primitive.ObjectID]models.Payment{}, now: time.Now},
	}
}

// ─── Users ────────────────────────────────────────────────────────────────────

type MemoryUsers struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]models.User
	now  func() time.Time
}

func (r *MemoryUsers) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	now := r.now().UTC()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	r.byID[u.ID] = *u
	return nil
}

func (r *MemoryUsers) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *MemoryUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUsers) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[primitive.ObjectID]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := r.byID[id]; ok {
			out[id] = &u
		}
	}
	return out, nil
}

func (r *MemoryUsers) update(id primitive.ObjectID, fn func(u *models.User)) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = r.now().UTC()
	r.byID[id] = u
	return &u, nil
}

func (r *MemoryUsers) SetPassword(_ context.Context, id primitive.ObjectID, hash string) error {
	_, err := r.update(id, func(u *models.User) { u.Password = hash })
	return err
}

func (r *MemoryUsers) ResetPassword(_ context.Context, id primitive.ObjectID, hash, nonce string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if u.ResetNonce == nonce {
		return false, nil
	}
	u.Password = hash
	u.ResetNonce = nonce
	u.UpdatedAt = r.now().UTC()
	r.byID[id] = u
	return true, nil
}

func (r *MemoryUsers) MarkEmailVerified(ctx context.Context, email string) error {
	u, err := r.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	_, err = r.update(u.ID, func(u *models.User) { u.EmailVerified = true })
	return err
}

func (r *MemoryUsers) UpdateRole(_ context.Context, id primitive.ObjectID, role models.Role) (*models.User, error) {
	return r.update(id, func(u *models.User) { u.Role = role })
}

// ─── Orders ───────────────────────────────────────────────────────────────────

type MemoryOrders struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]models.Order
	now  func() time.Time
}

func (r *MemoryOrders) Create(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.TotalAmount = models.ComputeTotal(o.Items)
	o.Items = append([]models.OrderItem(nil), o.Items...)
	r.byID[o.ID] = *o
	return nil
}

func (r *MemoryOrders) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r *MemoryOrders) List(_ context.Context, status models.OrderStatus) ([]models.Order, error) {
	return r.filter(func(o models.Order) bool { return status == "" || o.Status == status }), nil
}

func (r *MemoryOrders) ListByUser(_ context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	return r.filter(func(o models.Order) bool { return o.UserID == userID }), nil
}

func (r *MemoryOrders) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[primitive.ObjectID]*models.Order, len(ids))
	for _, id := range ids {
		if o, ok := r.byID[id]; ok {
			out[id] = &o
		}
	}
	return out, nil
}

func (r *MemoryOrders) filter(keep func(models.Order) bool) []models.Order {
	r.mu.RLock()
	out := []models.Order{}
	for _, o := range r.byID {
		if keep(o) {
			out = append(out, o)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

func (r *MemoryOrders) UpdateStatus(_ context.Context, id primitive.ObjectID, from, to models.OrderStatus) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Status != from {
		return nil, ErrStale
	}
	o.Status = to
	o.UpdatedAt = r.now().UTC()
	r.byID[id] = o
	return &o, nil
}

// ─── Payments ─────────────────────────────────────────────────────────────────

type MemoryPayments struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]models.Payment
	now  func() time.Time
}

func (r *MemoryPayments) Create(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.OrderID == p.OrderID {
			return ErrDuplicate
		}
	}
	now := r.now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.byID[p.ID] = *p
	return nil
}

func (r *MemoryPayments) FindByID(_ context.Context, id primitive.ObjectID) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryPayments) List(_ context.Context, status models.PaymentStatus) ([]models.Payment, error) {
	r.mu.RLock()
	out := []models.Payment{}
	for _, p := range r.byID {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (r *MemoryPayments) ByOrderIDs(_ context.Context, orderIDs []primitive.ObjectID) (map[primitive.ObjectID]*models.Payment, error) {
	want := make(map[primitive.ObjectID]bool, len(orderIDs))
	for _, id := range orderIDs {
		want[id] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[primitive.ObjectID]*models.Payment, len(orderIDs))
	for _, p := range r.byID {
		if want[p.OrderID] {
			p := p
			out[p.OrderID] = &p
		}
	}
	return out, nil
}

func (r *MemoryPayments) UpdateStatus(_ context.Context, id primitive.ObjectID, from, to models.PaymentStatus) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != from {
		return nil, ErrStale
	}
	p.Status = to
	p.UpdatedAt = r.now().UTC()
	r.byID[id] = p
	return &p, nil
}

// newer orders by creation time descending, then id descending, matching
// the Mongo sort.
func newer(a, b time.Time, aID, bID primitive.ObjectID) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID.Hex() > bID.Hex()
}
