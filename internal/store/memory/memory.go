package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"greennets/backend/internal/domain"
	"greennets/backend/internal/inventory"
	"greennets/backend/internal/store"
	"greennets/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	orders          map[string]domain.Order
	offlineSales    map[string]domain.OfflineSale
	billNumbers     map[string]string
	usersByUsername map[string]domain.UserAccount
	now             func() time.Time
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		orders:          make(map[string]domain.Order),
		offlineSales:    make(map[string]domain.OfflineSale),
		billNumbers:     make(map[string]string),
		usersByUsername: make(map[string]domain.UserAccount),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// seedUsers builds the demo accounts. Passwords come from SEED_ADMIN_PASSWORD
// and SEED_CUSTOMER_PASSWORD, falling back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	customerPwd := envOr("SEED_CUSTOMER_PASSWORD", "customer123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CUSTOMER_PASSWORD") == "" {
		zap.L().Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"customer", customerPwd, domain.RoleCustomer},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustMeter(bundleLength float64, bundles int, pieces ...float64) *inventory.MeterStock {
	open := make([]inventory.Quantity, 0, len(pieces))
	for _, p := range pieces {
		open = append(open, inventory.QuantityFromFloat(p))
	}
	m, err := inventory.NewMeterStock(inventory.QuantityFromFloat(bundleLength), bundles, open)
	if err != nil {
		panic(err)
	}
	return &m
}

func intPtr(v int) *int { return &v }

// NewSeeded returns a store with demo users and a small catalog covering
// both piece and meter products.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	products := []domain.Product{
		{
			ID: "prd-green-net-90", Name: "Green Shade Net 90%", Category: "Green Nets", Quality: "90%", Size: "3m width",
			ShadePercentage: intPtr(90), UnitType: domain.UnitMeter, PriceCents: 250000, BundlePriceCents: 250000,
			PricePerMeterCents: 6000, Meter: mustMeter(50, 4, 12.5),
		},
		{
			ID: "prd-green-net-50", Name: "Green Shade Net 50%", Category: "Green Nets", Quality: "50%", Size: "2m width",
			ShadePercentage: intPtr(50), UnitType: domain.UnitMeter, PriceCents: 150000, BundlePriceCents: 150000,
			PricePerMeterCents: 3500, Meter: mustMeter(50, 1),
		},
		{
			ID: "prd-tirpal-roll", Name: "Tirpal Roll 200gsm", Category: "Tirpal", Quality: "200gsm", Size: "4m width",
			UnitType: domain.UnitMeter, PriceCents: 900000, BundlePriceCents: 900000, PricePerMeterCents: 9500,
			Meter: mustMeter(100, 2, 30),
		},
		{
			ID: "prd-tarpaulin-12x18", Name: "Tarpaulin 12x18 ft", Category: "Tarpaulins", Quality: "250gsm", Size: "12x18 ft",
			UnitType: domain.UnitPiece, PriceCents: 180000, Stock: 20,
		},
		{
			ID: "prd-net-clips", Name: "Net Clips (pack of 50)", Category: "Fasteners", Quality: "Standard", Size: "50 pcs",
			UnitType: domain.UnitPiece, PriceCents: 12000, Stock: 100,
		},
		{
			ID: "prd-tension-rope", Name: "Tensioning Rope 20m", Category: "Tensioning", Quality: "Premium", Size: "20m",
			UnitType: domain.UnitPiece, PriceCents: 35000, Stock: 3,
		},
	}
	for _, p := range products {
		p.Version = 1
		p.CreatedAt = created
		p.UpdatedAt = created
		p.RefreshActive()
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		products = append(products, p.Clone())
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product.Clone()
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	now := s.now()
	product.Version = 1
	product.CreatedAt = now
	product.UpdatedAt = now
	product.RefreshActive()
	s.products[product.ID] = product.Clone()
	created := product.Clone()
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	existing.Name = product.Name
	existing.Description = product.Description
	existing.Category = product.Category
	existing.Quality = product.Quality
	existing.Size = product.Size
	existing.ShadePercentage = product.ShadePercentage
	existing.PriceCents = product.PriceCents
	existing.BundlePriceCents = product.BundlePriceCents
	existing.PricePerMeterCents = product.PricePerMeterCents
	existing.UpdatedAt = s.now()
	s.products[product.ID] = existing
	updated := existing.Clone()
	return &updated, nil
}

func (s *Store) SetProductImage(_ context.Context, id string, url string, object string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	existing.ImageURL = url
	existing.ImageObject = object
	existing.UpdatedAt = s.now()
	s.products[id] = existing
	updated := existing.Clone()
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ApplyStock(_ context.Context, writes []store.StockWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStockWritesLocked(writes); err != nil {
		return err
	}
	s.applyStockWritesLocked(writes)
	return nil
}

func (s *Store) CreateOrder(_ context.Context, writes []store.StockWrite, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.orders[order.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	if err := s.checkStockWritesLocked(writes); err != nil {
		return nil, err
	}

	s.applyStockWritesLocked(writes)
	s.orders[order.ID] = order.Clone()
	created := order.Clone()
	return &created, nil
}

func (s *Store) CreateOfflineSale(_ context.Context, writes []store.StockWrite, sale domain.OfflineSale) (*domain.OfflineSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" || sale.BillNumber == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if err := s.checkStockWritesLocked(writes); err != nil {
		return nil, err
	}
	if _, taken := s.billNumbers[sale.BillNumber]; taken {
		return nil, fmt.Errorf("%w: %s", store.ErrDuplicateBillNumber, sale.BillNumber)
	}

	s.applyStockWritesLocked(writes)
	s.offlineSales[sale.ID] = sale.Clone()
	s.billNumbers[sale.BillNumber] = sale.ID
	created := sale.Clone()
	return &created, nil
}

func (s *Store) checkStockWritesLocked(writes []store.StockWrite) error {
	seen := make(map[string]struct{}, len(writes))
	for _, w := range writes {
		current, exists := s.products[w.Product.ID]
		if !exists {
			return fmt.Errorf("product %s: %w", w.Product.ID, store.ErrNotFound)
		}
		if _, dup := seen[w.Product.ID]; dup {
			return store.ErrInvalidTransaction
		}
		seen[w.Product.ID] = struct{}{}
		if current.Version != w.ExpectedVersion {
			return fmt.Errorf("product %s at version %d, expected %d: %w", w.Product.ID, current.Version, w.ExpectedVersion, store.ErrConflict)
		}
		if w.Product.Stock < 0 {
			return store.ErrInsufficientStock
		}
	}
	return nil
}

func (s *Store) applyStockWritesLocked(writes []store.StockWrite) {
	now := s.now()
	for _, w := range writes {
		current := s.products[w.Product.ID]
		current.Stock = w.Product.Stock
		current.Meter = w.Product.Clone().Meter
		current.RefreshActive()
		current.Version = w.ExpectedVersion + 1
		current.UpdatedAt = now
		s.products[current.ID] = current
	}
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := order.Clone()
	return &found, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.SaleFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if !inRange(o.CreatedAt, filter) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.Username != "" && o.Username != filter.Username {
			continue
		}
		orders = append(orders, o.Clone())
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return limit(orders, filter.Limit), nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, fromStatus string, toStatus string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if order.Status != fromStatus {
		return nil, fmt.Errorf("order %s is %s: %w", id, order.Status, store.ErrConflict)
	}
	order.Status = toStatus
	order.UpdatedAt = s.now()
	s.orders[id] = order
	updated := order.Clone()
	return &updated, nil
}

func (s *Store) GetOfflineSale(_ context.Context, id string) (*domain.OfflineSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.offlineSales[id]
	if !exists {
		saleID, byBill := s.billNumbers[id]
		if !byBill {
			return nil, store.ErrNotFound
		}
		sale = s.offlineSales[saleID]
	}
	found := sale.Clone()
	return &found, nil
}

func (s *Store) ListOfflineSales(_ context.Context, filter domain.SaleFilter) ([]domain.OfflineSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.OfflineSale, 0, len(s.offlineSales))
	for _, sale := range s.offlineSales {
		if !inRange(sale.CreatedAt, filter) {
			continue
		}
		sales = append(sales, sale.Clone())
	}
	slices.SortFunc(sales, func(a, b domain.OfflineSale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return limit(sales, filter.Limit), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicateUser
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func inRange(at time.Time, filter domain.SaleFilter) bool {
	if !filter.From.IsZero() && at.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && !at.Before(filter.To) {
		return false
	}
	return true
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
