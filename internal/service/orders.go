package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"greennets/backend/internal/domain"
	"greennets/backend/internal/store"
)

// orderFlow ranks the non-cancelled statuses. Orders only move forward.
var orderFlow = map[string]int{
	domain.OrderPending:   0,
	domain.OrderConfirmed: 1,
	domain.OrderShipped:   2,
	domain.OrderDelivered: 3,
}

func canTransition(from string, to string) bool {
	if from == domain.OrderDelivered || from == domain.OrderCancelled {
		return false
	}
	if to == domain.OrderCancelled {
		return true
	}
	fromRank, okFrom := orderFlow[from]
	toRank, okTo := orderFlow[to]
	return okFrom && okTo && toRank > fromRank
}

func normalizeStatus(status string) (string, bool) {
	for _, known := range domain.OrderStatuses {
		if strings.EqualFold(known, strings.TrimSpace(status)) {
			return known, true
		}
	}
	return "", false
}

// UpdateOrderStatus moves an order along its lifecycle. Setting the status
// an order already has is a no-op. Cancelling does not return stock.
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, req domain.OrderStatusUpdateRequest) (domain.Order, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Order{}, err
	}
	to, ok := normalizeStatus(req.Status)
	if !ok {
		return domain.Order{}, invalid("unknown order status %q", req.Status)
	}

	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == to {
		return *order, nil
	}
	if !canTransition(order.Status, to) {
		return domain.Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, order.Status, to)
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, order.ID, order.Status, to)
	if err != nil {
		return domain.Order{}, err
	}
	s.analytics.Invalidate(ctx)
	s.logger.Info("order status changed",
		zap.String("order_id", updated.ID),
		zap.String("from", order.Status),
		zap.String("to", updated.Status),
	)
	return *updated, nil
}

// GetOrder returns an order to an admin or to the customer who placed it.
func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	if actor.Role != domain.RoleAdmin && order.Username != actor.Username {
		return domain.Order{}, store.ErrNotFound
	}
	return *order, nil
}

func (s *Service) ListMyOrders(ctx context.Context) ([]domain.Order, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx, domain.SaleFilter{Username: actor.Username})
}

func (s *Service) ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	filter := domain.SaleFilter{Limit: max(limit, 0)}
	if status != "" {
		known, ok := normalizeStatus(status)
		if !ok {
			return nil, invalid("unknown order status %q", status)
		}
		filter.Status = known
	}
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) ListOfflineSales(ctx context.Context, limit int) ([]domain.OfflineSale, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListOfflineSales(ctx, domain.SaleFilter{Limit: max(limit, 0)})
}

func (s *Service) GetOfflineSale(ctx context.Context, idOrBill string) (domain.OfflineSale, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.OfflineSale{}, err
	}
	sale, err := s.repo.GetOfflineSale(ctx, strings.TrimSpace(idOrBill))
	if err != nil {
		return domain.OfflineSale{}, err
	}
	return *sale, nil
}
