package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"greennets/backend/internal/domain"
	"greennets/backend/internal/inventory"
	"greennets/backend/internal/metrics"
	"greennets/backend/internal/store"
	"greennets/backend/internal/xid"
)

// LineError reports why one sale line was rejected. It unwraps to the
// underlying sentinel (ErrProductNotFound, ErrInvalidQuantity,
// ErrInvalidPrice or store.ErrInsufficientStock).
type LineError struct {
	Line        int
	ProductID   string
	ProductName string
	UnitType    string
	Available   inventory.Quantity
	Err         error
}

func (e *LineError) Error() string {
	switch {
	case errors.Is(e.Err, store.ErrInsufficientStock) && e.UnitType == domain.UnitMeter:
		return fmt.Sprintf("Not enough meter stock for %s. Available: %sm", e.ProductName, e.Available)
	case errors.Is(e.Err, store.ErrInsufficientStock):
		return fmt.Sprintf("Not enough stock for %s. Available: %d", e.ProductName, e.Available.WholeUnits())
	case errors.Is(e.Err, ErrProductNotFound):
		return fmt.Sprintf("Product %s not found", e.ProductID)
	default:
		return fmt.Sprintf("item %d (%s): %v", e.Line+1, e.ProductName, e.Err)
	}
}

func (e *LineError) Unwrap() error { return e.Err }

// staged is a validated sale that has not touched storage yet.
type staged struct {
	lines         []domain.SaleLine
	writes        []store.StockWrite
	subtotalCents int64
	bundlesOpened int
}

// stage validates items in order against working copies of the products
// they name. Later lines for the same product see the stock left by the
// earlier ones. Each write expects the version the product was read at.
func (s *Service) stage(ctx context.Context, items []domain.SaleLineRequest, allowPriceOverride bool) (staged, error) {
	if len(items) == 0 {
		return staged{}, invalid("at least one item is required")
	}

	working := make(map[string]*domain.Product, len(items))
	versions := make(map[string]int64, len(items))
	var touched []string
	var out staged

	for i, item := range items {
		id := strings.TrimSpace(item.ProductID)
		product, ok := working[id]
		if !ok {
			loaded, err := s.repo.GetProduct(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return staged{}, &LineError{Line: i, ProductID: id, Err: ErrProductNotFound}
			}
			if err != nil {
				return staged{}, fmt.Errorf("load product %s: %w", id, err)
			}
			product = loaded
			working[id] = product
			versions[id] = product.Version
			touched = append(touched, id)
		}

		lineErr := func(err error) error {
			return &LineError{
				Line:        i,
				ProductID:   id,
				ProductName: product.Name,
				UnitType:    product.UnitType,
				Available:   product.Available(),
				Err:         err,
			}
		}

		if item.Quantity <= 0 || (!product.IsMeter() && !item.Quantity.IsWhole()) {
			return staged{}, lineErr(fmt.Errorf("%w: %s", ErrInvalidQuantity, item.Quantity))
		}

		price := product.CatalogUnitPriceCents()
		if allowPriceOverride && item.SellingPriceCents != nil {
			price = *item.SellingPriceCents
		}
		if price < 1 {
			return staged{}, lineErr(fmt.Errorf("%w: %d", ErrInvalidPrice, price))
		}

		if product.IsMeter() {
			if product.Meter == nil {
				return staged{}, lineErr(inventory.ErrInvalidMeterStock)
			}
			if item.Quantity > product.Meter.Available() {
				return staged{}, lineErr(store.ErrInsufficientStock)
			}
			alloc, err := product.Meter.Allocate(item.Quantity)
			if err != nil {
				return staged{}, lineErr(err)
			}
			if alloc.Source == inventory.SourceBundle {
				out.bundlesOpened++
			}
		} else {
			stock, err := inventory.DeductPieces(product.Stock, item.Quantity)
			if err != nil {
				return staged{}, lineErr(err)
			}
			product.Stock = stock
		}
		product.RefreshActive()

		line := product.Snapshot(price, item.Quantity)
		out.lines = append(out.lines, line)
		out.subtotalCents += line.LineTotalCents
	}

	for _, id := range touched {
		out.writes = append(out.writes, store.StockWrite{Product: *working[id], ExpectedVersion: versions[id]})
	}
	return out, nil
}

// commitWithRetry runs attempt until it succeeds, fails for a reason other
// than a lost version race or a taken bill number, or runs out of tries.
func (s *Service) commitWithRetry(ctx context.Context, channel string, attempt func() error) error {
	for n := 1; n <= s.opts.CommitRetries; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := attempt()
		if err == nil {
			return nil
		}

		var reason string
		switch {
		case errors.Is(err, store.ErrConflict):
			reason = "conflict"
		case errors.Is(err, store.ErrDuplicateBillNumber):
			reason = "duplicate_bill_number"
		default:
			metrics.SalesRejected.WithLabelValues(rejectReason(err)).Inc()
			return err
		}
		metrics.SaleCommitRetries.WithLabelValues(reason).Inc()
		s.logger.Debug("sale commit retry",
			zap.String("channel", channel),
			zap.String("reason", reason),
			zap.Int("attempt", n),
		)
	}
	metrics.SalesRejected.WithLabelValues("commit_failed").Inc()
	return fmt.Errorf("%w after %d attempts", ErrCommitFailed, s.opts.CommitRetries)
}

func (s *Service) recordCommit(ctx context.Context, channel string, id string, st staged, totalCents int64) {
	metrics.SalesCommitted.WithLabelValues(channel).Inc()
	metrics.SaleRevenueCents.WithLabelValues(channel).Add(float64(totalCents))
	metrics.BundlesOpened.Add(float64(st.bundlesOpened))
	s.analytics.Invalidate(ctx)
	s.logger.Info("sale committed",
		zap.String("channel", channel),
		zap.String("id", id),
		zap.Int("lines", len(st.lines)),
		zap.Int64("total_cents", totalCents),
		zap.Int("bundles_opened", st.bundlesOpened),
	)
}

// CreateOfflineSale records a counter sale. Every line is validated and
// staged before anything is written; stock and the sale record are then
// committed together.
func (s *Service) CreateOfflineSale(ctx context.Context, req domain.OfflineSaleRequest) (domain.OfflineSale, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.OfflineSale{}, err
	}

	customer := strings.TrimSpace(req.CustomerName)
	if customer == "" {
		customer = domain.WalkInCustomer
	}
	mode := strings.TrimSpace(req.PaymentMode)
	if mode == "" {
		mode = domain.OfflinePaymentModes[0]
	}
	if !slices.Contains(domain.OfflinePaymentModes, mode) {
		return domain.OfflineSale{}, invalid("unsupported payment mode %q", mode)
	}
	if req.DiscountCents < 0 {
		return domain.OfflineSale{}, invalid("discount cannot be negative")
	}

	var created *domain.OfflineSale
	var st staged
	err = s.commitWithRetry(ctx, domain.ChannelOffline, func() error {
		staging, err := s.stage(ctx, req.Items, true)
		if err != nil {
			return err
		}
		st = staging
		now := s.now()
		sale := domain.OfflineSale{
			ID:            xid.New("sale"),
			BillNumber:    xid.BillNumber(now.In(s.opts.Location)),
			CustomerName:  customer,
			CustomerPhone: strings.TrimSpace(req.CustomerPhone),
			Items:         st.lines,
			SubtotalCents: st.subtotalCents,
			DiscountCents: req.DiscountCents,
			TotalCents:    max(st.subtotalCents-req.DiscountCents, 0),
			PaymentMode:   mode,
			Notes:         strings.TrimSpace(req.Notes),
			CreatedBy:     actor.Username,
			CreatedAt:     now.UTC(),
		}
		created, err = s.repo.CreateOfflineSale(ctx, st.writes, sale)
		return err
	})
	if err != nil {
		return domain.OfflineSale{}, err
	}

	s.recordCommit(ctx, domain.ChannelOffline, created.BillNumber, st, created.TotalCents)
	return *created, nil
}

// PlaceOrder checks out the signed-in customer's cart at catalog prices.
// Stock is taken when the order is placed.
func (s *Service) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	addr, err := normalizeAddress(req.ShippingAddress)
	if err != nil {
		return domain.Order{}, err
	}
	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = domain.OnlinePaymentMethods[0]
	}
	if !slices.Contains(domain.OnlinePaymentMethods, method) {
		return domain.Order{}, invalid("unsupported payment method %q", method)
	}

	var created *domain.Order
	var st staged
	err = s.commitWithRetry(ctx, domain.ChannelOnline, func() error {
		staging, err := s.stage(ctx, req.Items, false)
		if err != nil {
			return err
		}
		st = staging
		now := s.now().UTC()
		order := domain.Order{
			ID:              xid.New("ord"),
			Username:        actor.Username,
			Items:           st.lines,
			TotalCents:      st.subtotalCents,
			ShippingAddress: addr,
			PaymentMethod:   method,
			Status:          domain.OrderPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		created, err = s.repo.CreateOrder(ctx, st.writes, order)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.recordCommit(ctx, domain.ChannelOnline, created.ID, st, created.TotalCents)
	return *created, nil
}

func normalizeAddress(a domain.ShippingAddress) (domain.ShippingAddress, error) {
	a = domain.ShippingAddress{
		FullName:     strings.TrimSpace(a.FullName),
		Phone:        strings.TrimSpace(a.Phone),
		AddressLine1: strings.TrimSpace(a.AddressLine1),
		AddressLine2: strings.TrimSpace(a.AddressLine2),
		City:         strings.TrimSpace(a.City),
		State:        strings.TrimSpace(a.State),
		Pincode:      strings.TrimSpace(a.Pincode),
	}
	for field, value := range map[string]string{
		"full name":      a.FullName,
		"phone":          a.Phone,
		"address line 1": a.AddressLine1,
		"city":           a.City,
		"state":          a.State,
		"pincode":        a.Pincode,
	} {
		if value == "" {
			return domain.ShippingAddress{}, invalid("shipping %s is required", field)
		}
	}
	return a, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, store.ErrInvalidTransaction):
		return "invalid_request"
	default:
		return "error"
	}
}
