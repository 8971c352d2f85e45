package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"greennets/backend/internal/cache"
	"greennets/backend/internal/domain"
)

const (
	dateKeyLayout = "2006-01-02"
	maxTrendDays  = 366
)

var ErrInvalidRange = errors.New("invalid date range")

// SaleSource is the read side of the sales store.
type SaleSource interface {
	ListOrders(ctx context.Context, filter domain.SaleFilter) ([]domain.Order, error)
	ListOfflineSales(ctx context.Context, filter domain.SaleFilter) ([]domain.OfflineSale, error)
}

type Engine struct {
	source   SaleSource
	cache    cache.Cache
	cacheTTL time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

func NewEngine(source SaleSource, cacheStore cache.Cache, cacheTTL time.Duration, loc *time.Location, logger *zap.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.Noop{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		source:   source,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

func (e *Engine) Location() *time.Location { return e.loc }

// Today is local midnight of the current store day.
func (e *Engine) Today() time.Time {
	return startOfDay(e.now(), e.loc)
}

// TrendStart is the first day of a window of days ending today.
func (e *Engine) TrendStart(days int) time.Time {
	if days < 1 {
		days = 1
	}
	return e.Today().AddDate(0, 0, -(days - 1))
}

// TotalStart is the start of the last days days; zero means today only.
func (e *Engine) TotalStart(days int) time.Time {
	if days <= 0 {
		return e.Today()
	}
	return e.Today().AddDate(0, 0, -days)
}

// RevenueTrend returns one point per store-local day for days days starting
// at start's calendar day, in ascending order and with idle days at zero.
func (e *Engine) RevenueTrend(ctx context.Context, start time.Time, days int, category string) ([]domain.RevenuePoint, error) {
	if days < 1 || days > maxTrendDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidRange, maxTrendDays)
	}
	from := startOfDay(start, e.loc)
	to := from.AddDate(0, 0, days)

	key := e.cacheKey(ctx, fmt.Sprintf("trend:%s:%d:%s", from.Format(dateKeyLayout), days, category))
	var cached []domain.RevenuePoint
	if e.readCache(ctx, key, &cached) {
		return cached, nil
	}

	orders, err := e.source.ListOrders(ctx, domain.SaleFilter{From: from, To: to, Status: domain.OrderDelivered})
	if err != nil {
		return nil, fmt.Errorf("list delivered orders: %w", err)
	}
	sales, err := e.source.ListOfflineSales(ctx, domain.SaleFilter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list offline sales: %w", err)
	}

	points := Trend(orders, sales, from, days, category, e.loc)
	e.writeCache(ctx, key, points)
	return points, nil
}

// RevenueTotal sums delivered order totals and offline sale totals created
// at or after start.
func (e *Engine) RevenueTotal(ctx context.Context, start time.Time) (domain.RevenueTotal, error) {
	key := e.cacheKey(ctx, fmt.Sprintf("total:%d", start.Unix()))
	var cached domain.RevenueTotal
	if e.readCache(ctx, key, &cached) {
		return cached, nil
	}

	orders, err := e.source.ListOrders(ctx, domain.SaleFilter{From: start, Status: domain.OrderDelivered})
	if err != nil {
		return domain.RevenueTotal{}, fmt.Errorf("list delivered orders: %w", err)
	}
	sales, err := e.source.ListOfflineSales(ctx, domain.SaleFilter{From: start})
	if err != nil {
		return domain.RevenueTotal{}, fmt.Errorf("list offline sales: %w", err)
	}

	total := Total(orders, sales)
	e.writeCache(ctx, key, total)
	return total, nil
}

// Invalidate drops cached results after sales data changed.
func (e *Engine) Invalidate(ctx context.Context) {
	if err := e.cache.Invalidate(ctx); err != nil {
		e.logger.Warn("invalidate analytics cache", zap.Error(err))
	}
}

func (e *Engine) cacheKey(ctx context.Context, key string) string {
	gen, err := e.cache.Generation(ctx)
	if err != nil {
		e.logger.Warn("read analytics cache generation", zap.Error(err))
		return ""
	}
	return fmt.Sprintf("g%d:%s:%s", gen, e.loc.String(), key)
}

func (e *Engine) readCache(ctx context.Context, key string, dest any) bool {
	if key == "" {
		return false
	}
	hit, err := e.cache.Get(ctx, key, dest)
	if err != nil {
		e.logger.Warn("read analytics cache", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (e *Engine) writeCache(ctx context.Context, key string, value any) {
	if key == "" {
		return
	}
	if err := e.cache.Set(ctx, key, value, e.cacheTTL); err != nil {
		e.logger.Warn("write analytics cache", zap.String("key", key), zap.Error(err))
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
