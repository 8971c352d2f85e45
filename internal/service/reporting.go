package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"greennets/backend/internal/analytics"
	"greennets/backend/internal/domain"
	"greennets/backend/internal/xid"
)

const (
	RangeToday = "today"
	RangeWeek  = "week"
	RangeMonth = "month"

	SaleTypeAll = "all"

	guestCustomer = "Guest"
)

// SalesHistory merges offline sales and online orders created in the
// window into one newest-first list. Cancelled orders are listed but do not
// count towards the total.
func (s *Service) SalesHistory(ctx context.Context, rangeName string, saleType string) (domain.SalesHistory, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.SalesHistory{}, err
	}

	rangeName = strings.ToLower(strings.TrimSpace(rangeName))
	var from time.Time
	switch rangeName {
	case "", RangeToday:
		rangeName = RangeToday
		from = s.analytics.TotalStart(0)
	case RangeWeek:
		from = s.analytics.TotalStart(7)
	case RangeMonth:
		from = s.analytics.TotalStart(30)
	default:
		return domain.SalesHistory{}, invalid("range must be today, week or month")
	}

	saleType = strings.ToLower(strings.TrimSpace(saleType))
	if saleType == "" {
		saleType = SaleTypeAll
	}
	if saleType != SaleTypeAll && saleType != domain.ChannelOffline && saleType != domain.ChannelOnline {
		return domain.SalesHistory{}, invalid("type must be all, offline or online")
	}

	history := domain.SalesHistory{Range: rangeName, Type: saleType, Sales: []domain.SaleSummary{}}
	filter := domain.SaleFilter{From: from}

	if saleType != domain.ChannelOnline {
		sales, err := s.repo.ListOfflineSales(ctx, filter)
		if err != nil {
			return domain.SalesHistory{}, fmt.Errorf("list offline sales: %w", err)
		}
		for _, sale := range sales {
			history.Sales = append(history.Sales, offlineSummary(sale))
			history.OfflineCount++
			history.TotalCents += sale.TotalCents
		}
	}
	if saleType != domain.ChannelOffline {
		orders, err := s.repo.ListOrders(ctx, filter)
		if err != nil {
			return domain.SalesHistory{}, fmt.Errorf("list orders: %w", err)
		}
		for _, order := range orders {
			history.Sales = append(history.Sales, orderSummary(order))
			history.OnlineCount++
			if order.Status != domain.OrderCancelled {
				history.TotalCents += order.TotalCents
			}
		}
	}

	slices.SortStableFunc(history.Sales, func(a, b domain.SaleSummary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return history, nil
}

func offlineSummary(sale domain.OfflineSale) domain.SaleSummary {
	name := sale.CustomerName
	if name == "" {
		name = domain.WalkInCustomer
	}
	return domain.SaleSummary{
		ID:            sale.ID,
		Channel:       domain.ChannelOffline,
		BillNumber:    sale.BillNumber,
		CustomerName:  name,
		CustomerPhone: sale.CustomerPhone,
		ItemCount:     len(sale.Items),
		TotalCents:    sale.TotalCents,
		DiscountCents: sale.DiscountCents,
		PaymentMode:   sale.PaymentMode,
		Status:        domain.OrderDelivered,
		CreatedAt:     sale.CreatedAt,
	}
}

func orderSummary(order domain.Order) domain.SaleSummary {
	name := order.ShippingAddress.FullName
	if name == "" {
		name = order.Username
	}
	if name == "" {
		name = guestCustomer
	}
	return domain.SaleSummary{
		ID:            order.ID,
		Channel:       domain.ChannelOnline,
		BillNumber:    xid.Short(order.ID),
		CustomerName:  name,
		CustomerPhone: order.ShippingAddress.Phone,
		ItemCount:     len(order.Items),
		TotalCents:    order.TotalCents,
		PaymentMode:   order.PaymentMethod,
		Status:        order.Status,
		CreatedAt:     order.CreatedAt,
	}
}

func (s *Service) AnalyticsSummary(ctx context.Context) (domain.AnalyticsSummary, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.AnalyticsSummary{}, err
	}

	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return domain.AnalyticsSummary{}, fmt.Errorf("list products: %w", err)
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return domain.AnalyticsSummary{}, fmt.Errorf("list users: %w", err)
	}
	orders, err := s.repo.ListOrders(ctx, domain.SaleFilter{})
	if err != nil {
		return domain.AnalyticsSummary{}, fmt.Errorf("list orders: %w", err)
	}
	sales, err := s.repo.ListOfflineSales(ctx, domain.SaleFilter{})
	if err != nil {
		return domain.AnalyticsSummary{}, fmt.Errorf("list offline sales: %w", err)
	}
	revenue, err := s.analytics.RevenueTotal(ctx, time.Time{})
	if err != nil {
		return domain.AnalyticsSummary{}, err
	}

	summary := domain.AnalyticsSummary{
		TotalProducts:     len(products),
		TotalOrders:       len(orders),
		OfflineSales:      len(sales),
		Revenue:           revenue,
		OrderStatusCounts: make(map[string]int, len(domain.OrderStatuses)),
	}
	for _, p := range products {
		if p.Active {
			summary.ActiveProducts++
		}
		switch {
		case p.Available() == 0:
			summary.OutOfStock++
		case p.LowStock(s.opts.LowStockThreshold):
			summary.LowStock++
		}
	}
	for _, u := range users {
		if u.Role == domain.RoleCustomer {
			summary.TotalCustomers++
		}
	}
	for _, status := range domain.OrderStatuses {
		summary.OrderStatusCounts[status] = 0
	}
	for _, o := range orders {
		summary.OrderStatusCounts[o.Status]++
		if o.Status == domain.OrderDelivered {
			summary.DeliveredOrders++
		}
	}
	return summary, nil
}

// LowStock lists products at or under the low stock line, emptiest first.
func (s *Service) LowStock(ctx context.Context, limit int) ([]domain.StockAlert, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 10
	}

	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return nil, err
	}
	alerts := make([]domain.StockAlert, 0)
	for _, p := range products {
		if !p.LowStock(s.opts.LowStockThreshold) {
			continue
		}
		alerts = append(alerts, domain.StockAlert{
			ProductID: p.ID,
			Name:      p.Name,
			Category:  p.Category,
			UnitType:  p.UnitType,
			Available: p.Available(),
		})
	}
	slices.SortStableFunc(alerts, func(a, b domain.StockAlert) int {
		if c := cmp.Compare(a.Available, b.Available); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (s *Service) RecentOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 5
	}
	return s.repo.ListOrders(ctx, domain.SaleFilter{Limit: limit})
}

// RevenueTrend covers the last days store days, today included.
func (s *Service) RevenueTrend(ctx context.Context, days int, category string) ([]domain.RevenuePoint, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if days == 0 {
		days = 7
	}
	points, err := s.analytics.RevenueTrend(ctx, s.analytics.TrendStart(days), days, strings.TrimSpace(category))
	if errors.Is(err, analytics.ErrInvalidRange) {
		return nil, invalid("%v", err)
	}
	return points, err
}

// RevenueTotal covers the last days days; zero means today.
func (s *Service) RevenueTotal(ctx context.Context, days int) (domain.RevenueTotal, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.RevenueTotal{}, err
	}
	if days < 0 {
		return domain.RevenueTotal{}, invalid("days cannot be negative")
	}
	return s.analytics.RevenueTotal(ctx, s.analytics.TotalStart(days))
}
