package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bitfantasy/printops/internal/production/entity"
)

// MemoryStore 内存存储，用于测试和 storage.driver=memory 的单机部署。
// Transaction 持有写锁并在状态副本上执行回调，成功后整体替换，失败则丢弃。
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

type memState struct {
	orders     map[string]entity.Order
	filaments  map[string]entity.Filament
	usages     []entity.FilamentUsage
	sessions   map[string]entity.PrintSession
	printers   map[string]entity.Printer
	settings   *entity.AlertSettings
	deliveries []entity.AlertDelivery
}

func newMemState() *memState {
	return &memState{
		orders:    make(map[string]entity.Order),
		filaments: make(map[string]entity.Filament),
		sessions:  make(map[string]entity.PrintSession),
		printers:  make(map[string]entity.Printer),
	}
}

// clone 浅拷贝容器；存入的值从不原地修改，共享指针字段是安全的
func (st *memState) clone() *memState {
	c := newMemState()
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.filaments {
		c.filaments[k] = v
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	for k, v := range st.printers {
		c.printers[k] = v
	}
	c.usages = append([]entity.FilamentUsage(nil), st.usages...)
	c.deliveries = append([]entity.AlertDelivery(nil), st.deliveries...)
	c.settings = st.settings
	return c
}

// memView 绑定到锁定的全局状态或事务内的副本
type memView struct {
	store *MemoryStore
	tx    *memState
}

func (v memView) with(fn func(st *memState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

func (s *MemoryStore) view() memView { return memView{store: s} }

func (s *MemoryStore) Orders() OrderRepository       { return &memOrderRepo{s.view()} }
func (s *MemoryStore) Filaments() FilamentRepository { return &memFilamentRepo{s.view()} }
func (s *MemoryStore) Sessions() SessionRepository   { return &memSessionRepo{s.view()} }
func (s *MemoryStore) Printers() PrinterRepository   { return &memPrinterRepo{s.view()} }
func (s *MemoryStore) Alerts() AlertRepository       { return &memAlertRepo{s.view()} }

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&memTxStore{view: memView{store: s, tx: work}}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type memTxStore struct {
	view memView
}

func (t *memTxStore) Orders() OrderRepository       { return &memOrderRepo{t.view} }
func (t *memTxStore) Filaments() FilamentRepository { return &memFilamentRepo{t.view} }
func (t *memTxStore) Sessions() SessionRepository   { return &memSessionRepo{t.view} }
func (t *memTxStore) Printers() PrinterRepository   { return &memPrinterRepo{t.view} }
func (t *memTxStore) Alerts() AlertRepository       { return &memAlertRepo{t.view} }

func (t *memTxStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneOrder(o entity.Order) *entity.Order {
	o.PrintSessionID = clonePtr(o.PrintSessionID)
	o.EstimatedPrintTime = clonePtr(o.EstimatedPrintTime)
	o.ActualPrintTime = clonePtr(o.ActualPrintTime)
	o.PrintStartedAt = clonePtr(o.PrintStartedAt)
	o.PrintCompletedAt = clonePtr(o.PrintCompletedAt)
	o.PrintNotes = clonePtr(o.PrintNotes)
	o.SyncedAt = clonePtr(o.SyncedAt)
	return &o
}

func cloneSession(s entity.PrintSession) *entity.PrintSession {
	s.Notes = clonePtr(s.Notes)
	s.StartedAt = clonePtr(s.StartedAt)
	s.CompletedAt = clonePtr(s.CompletedAt)
	return &s
}

func stamp(created, updated *time.Time) {
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func queueLess(a, b *entity.Order) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.MarketplaceOrderID != b.MarketplaceOrderID {
		return a.MarketplaceOrderID < b.MarketplaceOrderID
	}
	return a.ID < b.ID
}

// ---------- orders ----------

type memOrderRepo struct{ v memView }

func (r *memOrderRepo) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	var out *entity.Order
	err := r.v.with(func(st *memState) error {
		o, ok := st.orders[id]
		if !ok {
			return ErrNotFound
		}
		out = cloneOrder(o)
		return nil
	})
	return out, err
}

func (r *memOrderRepo) FindByMarketplaceID(ctx context.Context, marketplaceOrderID string) (*entity.Order, error) {
	var out *entity.Order
	err := r.v.with(func(st *memState) error {
		for _, o := range st.orders {
			if o.MarketplaceOrderID == marketplaceOrderID {
				out = cloneOrder(o)
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (r *memOrderRepo) FindByStatusAndPriority(ctx context.Context, q OrderQuery) ([]entity.Order, error) {
	return r.collect(func(o *entity.Order) bool {
		return (q.Status == "" || o.ProductionStatus == q.Status) &&
			(q.Priority == 0 || o.Priority == q.Priority)
	})
}

func (r *memOrderRepo) FindBySessionID(ctx context.Context, sessionID string) ([]entity.Order, error) {
	return r.collect(func(o *entity.Order) bool {
		return o.PrintSessionID != nil && *o.PrintSessionID == sessionID
	})
}

func (r *memOrderRepo) collect(match func(o *entity.Order) bool) ([]entity.Order, error) {
	var out []entity.Order
	err := r.v.with(func(st *memState) error {
		for _, o := range st.orders {
			if match(&o) {
				out = append(out, *cloneOrder(o))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return queueLess(&out[i], &out[j]) })
	return out, err
}

func (r *memOrderRepo) Create(ctx context.Context, order *entity.Order) error {
	return r.v.with(func(st *memState) error {
		if _, ok := st.orders[order.ID]; ok {
			return ErrDuplicate
		}
		for _, o := range st.orders {
			if o.MarketplaceOrderID == order.MarketplaceOrderID {
				return ErrDuplicate
			}
		}
		stamp(&order.CreatedAt, &order.UpdatedAt)
		st.orders[order.ID] = *cloneOrder(*order)
		return nil
	})
}

func (r *memOrderRepo) Update(ctx context.Context, order *entity.Order) error {
	return r.v.with(func(st *memState) error {
		if _, ok := st.orders[order.ID]; !ok {
			return ErrNotFound
		}
		stamp(&order.CreatedAt, &order.UpdatedAt)
		st.orders[order.ID] = *cloneOrder(*order)
		return nil
	})
}

// ---------- filaments ----------

type memFilamentRepo struct{ v memView }

func (r *memFilamentRepo) FindByID(ctx context.Context, id string) (*entity.Filament, error) {
	var out *entity.Filament
	err := r.v.with(func(st *memState) error {
		f, ok := st.filaments[id]
		if !ok {
			return ErrNotFound
		}
		out = &f
		return nil
	})
	return out, err
}

func (r *memFilamentRepo) Create(ctx context.Context, f *entity.Filament) error {
	return r.v.with(func(st *memState) error {
		if _, ok := st.filaments[f.ID]; ok {
			return ErrDuplicate
		}
		f.Refresh()
		stamp(&f.CreatedAt, &f.UpdatedAt)
		st.filaments[f.ID] = *f
		return nil
	})
}

func (r *memFilamentRepo) Update(ctx context.Context, f *entity.Filament) error {
	return r.v.with(func(st *memState) error {
		if _, ok := st.filaments[f.ID]; !ok {
			return ErrNotFound
		}
		f.Refresh()
		stamp(&f.CreatedAt, &f.UpdatedAt)
		st.filaments[f.ID] = *f
		return nil
	})
}

func (r *memFilamentRepo) List(ctx context.Context, params FilamentListParams) ([]entity.Filament, error) {
	var out []entity.Filament
	err := r.v.with(func(st *memState) error {
		for _, f := range st.filaments {
			if params.LowStock && !f.CurrentAmount.LessThanOrEqual(f.LowStockThreshold) {
				continue
			}
			out = append(out, f)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Material != b.Material {
			return a.Material < b.Material
		}
		if a.Color != b.Color {
			return a.Color < b.Color
		}
		return a.ID < b.ID
	})
	return out, err
}

func (r *memFilamentRepo) AppendUsage(ctx context.Context, usage *entity.FilamentUsage) error {
	return r.v.with(func(st *memState) error {
		if usage.CreatedAt.IsZero() {
			usage.CreatedAt = time.Now()
		}
		u := *usage
		u.OrderID = clonePtr(u.OrderID)
		u.Description = clonePtr(u.Description)
		st.usages = append(st.usages, u)
		return nil
	})
}

func (r *memFilamentRepo) ListUsage(ctx context.Context, params UsageListParams) ([]entity.FilamentUsage, error) {
	var out []entity.FilamentUsage
	err := r.v.with(func(st *memState) error {
		// 逆序遍历，最新的在前
		for i := len(st.usages) - 1; i >= 0; i-- {
			u := st.usages[i]
			if params.FilamentID != "" && u.FilamentID != params.FilamentID {
				continue
			}
			if params.OrderID != "" && (u.OrderID == nil || *u.OrderID != params.OrderID) {
				continue
			}
			u.OrderID = clonePtr(u.OrderID)
			u.Description = clonePtr(u.Description)
			out = append(out, u)
			if params.Limit > 0 && len(out) == params.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// ---------- sessions ----------

type memSessionRepo struct{ v memView }

func (r *memSessionRepo) FindByID(ctx context.Context, id string) (*entity.PrintSession, error) {
	var out *entity.PrintSession
	err := r.v.with(func(st *memState) error {
		s, ok := st.sessions[id]
		if !ok {
			return ErrNotFound
		}
		out = cloneSession(s)
		return nil
	})
	return out, err
}

func (r *memSessionRepo) Create(ctx context.Context, s *entity.PrintSession) error {
	return r.v.with(func(st *memState) error {
		if _, ok := st.sessions[s.ID]; ok {
			return ErrDuplicate
		}
		stamp(&s.CreatedAt, &s.UpdatedAt)
		st.sessions[s.ID] = *cloneSession(*s)
		return nil
	})
}

func (r *memSessionRepo) Update(ctx context.Context, s *entity.PrintSession) error {
	return r.v.with(func(st *memState) error {
		if _, ok := st.sessions[s.ID]; !ok {
			return ErrNotFound
		}
		stamp(&s.CreatedAt, &s.UpdatedAt)
		st.sessions[s.ID] = *cloneSession(*s)
		return nil
	})
}

func (r *memSessionRepo) Delete(ctx context.Context, id string) error {
	return r.v.with(func(st *memState) error {
		if _, ok := st.sessions[id]; !ok {
			return ErrNotFound
		}
		delete(st.sessions, id)
		return nil
	})
}

func (r *memSessionRepo) List(ctx context.Context, status string) ([]entity.PrintSession, error) {
	var out []entity.PrintSession
	err := r.v.with(func(st *memState) error {
		for _, s := range st.sessions {
			if status != "" && s.Status != status {
				continue
			}
			out = append(out, *cloneSession(s))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

// ---------- printers ----------

type memPrinterRepo struct{ v memView }

func (r *memPrinterRepo) FindByID(ctx context.Context, id string) (*entity.Printer, error) {
	var out *entity.Printer
	err := r.v.with(func(st *memState) error {
		p, ok := st.printers[id]
		if !ok {
			return ErrNotFound
		}
		p.LastSeenAt = clonePtr(p.LastSeenAt)
		out = &p
		return nil
	})
	return out, err
}

func (r *memPrinterRepo) Upsert(ctx context.Context, p *entity.Printer) error {
	return r.v.with(func(st *memState) error {
		if existing, ok := st.printers[p.ID]; ok {
			p.CreatedAt = existing.CreatedAt
		}
		stamp(&p.CreatedAt, &p.UpdatedAt)
		stored := *p
		stored.LastSeenAt = clonePtr(p.LastSeenAt)
		st.printers[p.ID] = stored
		return nil
	})
}

func (r *memPrinterRepo) List(ctx context.Context) ([]entity.Printer, error) {
	var out []entity.Printer
	err := r.v.with(func(st *memState) error {
		for _, p := range st.printers {
			p.LastSeenAt = clonePtr(p.LastSeenAt)
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// ---------- alerts ----------

type memAlertRepo struct{ v memView }

func (r *memAlertRepo) GetSettings(ctx context.Context) (*entity.AlertSettings, error) {
	var out *entity.AlertSettings
	err := r.v.with(func(st *memState) error {
		if st.settings == nil {
			return ErrNotFound
		}
		s := *st.settings
		s.SlackWebhookURL = clonePtr(s.SlackWebhookURL)
		s.DiscordWebhookURL = clonePtr(s.DiscordWebhookURL)
		s.EmailTo = clonePtr(s.EmailTo)
		out = &s
		return nil
	})
	return out, err
}

func (r *memAlertRepo) SaveSettings(ctx context.Context, s *entity.AlertSettings) error {
	return r.v.with(func(st *memState) error {
		s.ID = entity.DefaultAlertSettingsID
		if st.settings != nil {
			s.CreatedAt = st.settings.CreatedAt
		}
		stamp(&s.CreatedAt, &s.UpdatedAt)
		stored := *s
		stored.SlackWebhookURL = clonePtr(s.SlackWebhookURL)
		stored.DiscordWebhookURL = clonePtr(s.DiscordWebhookURL)
		stored.EmailTo = clonePtr(s.EmailTo)
		st.settings = &stored
		return nil
	})
}

func (r *memAlertRepo) CreateDelivery(ctx context.Context, d *entity.AlertDelivery) error {
	return r.v.with(func(st *memState) error {
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now()
		}
		st.deliveries = append(st.deliveries, *d)
		return nil
	})
}

func (r *memAlertRepo) ListDeliveries(ctx context.Context, limit int) ([]entity.AlertDelivery, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []entity.AlertDelivery
	err := r.v.with(func(st *memState) error {
		for i := len(st.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, st.deliveries[i])
		}
		return nil
	})
	return out, err
}
