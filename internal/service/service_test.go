package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"greennets/backend/internal/domain"
	"greennets/backend/internal/inventory"
	"greennets/backend/internal/invoice"
	"greennets/backend/internal/media"
	"greennets/backend/internal/store"
	"greennets/backend/internal/store/memory"
)

func newTestService(repo store.Repository) *Service {
	return New(repo, nil, nil, nil, Options{
		Shop:          invoice.Shop{Name: "Green Nets Test"},
		Location:      time.UTC,
		CommitRetries: 3,
	}, zap.NewNop())
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func customerCtx(username string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: username, Role: domain.RoleCustomer})
}

func meters(x float64) inventory.Quantity { return inventory.QuantityFromFloat(x) }

func price(cents int64) *int64 { return &cents }

func testAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:     "Ravi Kumar",
		Phone:        "9800000000",
		AddressLine1: "12 Farm Road",
		City:         "Nashik",
		State:        "Maharashtra",
		Pincode:      "422001",
	}
}

func mustProduct(t *testing.T, repo store.Repository, id string) domain.Product {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return *p
}

func TestCreateOfflineSaleCutsOpenPieceFirst(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)

	sale, err := svc.CreateOfflineSale(adminCtx(), domain.OfflineSaleRequest{
		Items:         []domain.SaleLineRequest{{ProductID: "prd-green-net-90", Quantity: meters(10)}},
		DiscountCents: 5000,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sale.BillNumber, "BILL-"))
	assert.Equal(t, domain.WalkInCustomer, sale.CustomerName)
	assert.Equal(t, "Cash", sale.PaymentMode)
	assert.Equal(t, "admin", sale.CreatedBy)
	assert.Equal(t, int64(60000), sale.SubtotalCents)
	assert.Equal(t, int64(55000), sale.TotalCents)
	require.Len(t, sale.Items, 1)
	assert.Equal(t, "Green Shade Net 90%", sale.Items[0].Name)
	assert.Equal(t, int64(6000), sale.Items[0].SellingPriceCents)

	net := mustProduct(t, repo, "prd-green-net-90")
	assert.Equal(t, 4, net.Meter.BundleStock())
	assert.Equal(t, []inventory.Quantity{meters(2.5)}, net.Meter.OpenPieces())
	assert.Equal(t, int64(2), net.Version)
}

func TestCreateOfflineSaleOpensBundleWhenNoPieceFits(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)

	_, err := svc.CreateOfflineSale(adminCtx(), domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: "prd-green-net-90", Quantity: meters(20)}},
	})
	require.NoError(t, err)

	net := mustProduct(t, repo, "prd-green-net-90")
	assert.Equal(t, 3, net.Meter.BundleStock())
	assert.Equal(t, []inventory.Quantity{meters(12.5), meters(30)}, net.Meter.OpenPieces())
}

func TestCreateOfflineSaleWritesNothingWhenALineFails(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)

	_, err := svc.CreateOfflineSale(adminCtx(), domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prd-tension-rope", Quantity: inventory.Pieces(2)},
			{ProductID: "prd-green-net-50", Quantity: meters(60)},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var lineErr *LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 1, lineErr.Line)
	assert.Equal(t, "Not enough meter stock for Green Shade Net 50%. Available: 50.0m", err.Error())

	rope := mustProduct(t, repo, "prd-tension-rope")
	assert.Equal(t, 3, rope.Stock)
	assert.Equal(t, int64(1), rope.Version)

	sales, err := repo.ListOfflineSales(context.Background(), domain.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestLinesForTheSameProductShareStagedStock(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)

	_, err := svc.CreateOfflineSale(adminCtx(), domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prd-tension-rope", Quantity: inventory.Pieces(2)},
			{ProductID: "prd-tension-rope", Quantity: inventory.Pieces(2)},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, "Not enough stock for Tensioning Rope 20m. Available: 1", err.Error())

	sale, err := svc.CreateOfflineSale(adminCtx(), domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prd-green-net-50", Quantity: meters(30)},
			{ProductID: "prd-green-net-50", Quantity: meters(15)},
		},
	})
	require.NoError(t, err)
	assert.Len(t, sale.Items, 2)

	net := mustProduct(t, repo, "prd-green-net-50")
	assert.Equal(t, 0, net.Meter.BundleStock())
	assert.Equal(t, []inventory.Quantity{meters(5)}, net.Meter.OpenPieces())
	assert.Equal(t, int64(2), net.Version)
}

func TestCreateOfflineSaleValidatesLines(t *testing.T) {
	svc := newTestService(memory.NewSeeded())
	ctx := adminCtx()

	cases := []struct {
		name string
		item domain.SaleLineRequest
		want error
	}{
		{"unknown product", domain.SaleLineRequest{ProductID: "prd-missing", Quantity: inventory.Pieces(1)}, ErrProductNotFound},
		{"zero quantity", domain.SaleLineRequest{ProductID: "prd-net-clips"}, ErrInvalidQuantity},
		{"fractional pieces", domain.SaleLineRequest{ProductID: "prd-net-clips", Quantity: meters(1.5)}, ErrInvalidQuantity},
		{"zero price", domain.SaleLineRequest{ProductID: "prd-net-clips", Quantity: inventory.Pieces(1), SellingPriceCents: price(0)}, ErrInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOfflineSale(ctx, domain.OfflineSaleRequest{Items: []domain.SaleLineRequest{tc.item}})
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := svc.CreateOfflineSale(ctx, domain.OfflineSaleRequest{})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.CreateOfflineSale(ctx, domain.OfflineSaleRequest{
		Items:       []domain.SaleLineRequest{{ProductID: "prd-net-clips", Quantity: inventory.Pieces(1)}},
		PaymentMode: "Cheque",
	})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.CreateOfflineSale(customerCtx("customer"), domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: "prd-net-clips", Quantity: inventory.Pieces(1)}},
	})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCreateOfflineSaleHonoursSellingPriceAndClampsDiscount(t *testing.T) {
	svc := newTestService(memory.NewSeeded())

	sale, err := svc.CreateOfflineSale(adminCtx(), domain.OfflineSaleRequest{
		CustomerName:  "  Asha  ",
		Items:         []domain.SaleLineRequest{{ProductID: "prd-tension-rope", Quantity: inventory.Pieces(2), SellingPriceCents: price(30000)}},
		DiscountCents: 100000,
		PaymentMode:   "UPI",
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha", sale.CustomerName)
	assert.Equal(t, int64(60000), sale.SubtotalCents)
	assert.Equal(t, int64(0), sale.TotalCents)
	assert.Equal(t, int64(35000), sale.Items[0].PriceCents)
}

// racingRepo lets another writer touch stock right before the first
// commits reach the store.
type racingRepo struct {
	*memory.Store
	interfere   func(ctx context.Context) error
	interfering int
	saleCalls   int
}

func (r *racingRepo) CreateOfflineSale(ctx context.Context, writes []store.StockWrite, sale domain.OfflineSale) (*domain.OfflineSale, error) {
	r.saleCalls++
	if r.interfering > 0 {
		r.interfering--
		if err := r.interfere(ctx); err != nil {
			return nil, err
		}
	}
	return r.Store.CreateOfflineSale(ctx, writes, sale)
}

func TestCommitRestagesAfterVersionConflict(t *testing.T) {
	base := memory.NewSeeded()
	repo := &racingRepo{Store: base, interfering: 1}
	repo.interfere = func(ctx context.Context) error {
		p, err := base.GetProduct(ctx, "prd-green-net-50")
		if err != nil {
			return err
		}
		require.NoError(t, p.Meter.AddBundles(1))
		return base.ApplyStock(ctx, []store.StockWrite{{Product: *p, ExpectedVersion: p.Version}})
	}
	svc := newTestService(repo)

	_, err := svc.CreateOfflineSale(adminCtx(), domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: "prd-green-net-50", Quantity: meters(10)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.saleCalls)

	net := mustProduct(t, base, "prd-green-net-50")
	assert.Equal(t, 1, net.Meter.BundleStock())
	assert.Equal(t, []inventory.Quantity{meters(40)}, net.Meter.OpenPieces())
	assert.Equal(t, int64(3), net.Version)
}

func TestCommitRestageSeesStockTakenByConcurrentSale(t *testing.T) {
	base := memory.NewSeeded()
	repo := &racingRepo{Store: base, interfering: 1}
	repo.interfere = func(ctx context.Context) error {
		p, err := base.GetProduct(ctx, "prd-tension-rope")
		if err != nil {
			return err
		}
		p.Stock = 0
		return base.ApplyStock(ctx, []store.StockWrite{{Product: *p, ExpectedVersion: p.Version}})
	}
	svc := newTestService(repo)

	_, err := svc.CreateOfflineSale(adminCtx(), domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: "prd-tension-rope", Quantity: inventory.Pieces(2)}},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 1, repo.saleCalls)
}

func TestCommitGivesUpAfterRetries(t *testing.T) {
	base := memory.NewSeeded()
	repo := &racingRepo{Store: base, interfering: 100}
	repo.interfere = func(ctx context.Context) error {
		p, err := base.GetProduct(ctx, "prd-net-clips")
		if err != nil {
			return err
		}
		return base.ApplyStock(ctx, []store.StockWrite{{Product: *p, ExpectedVersion: p.Version}})
	}
	svc := newTestService(repo)

	_, err := svc.CreateOfflineSale(adminCtx(), domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: "prd-net-clips", Quantity: inventory.Pieces(1)}},
	})
	require.ErrorIs(t, err, ErrCommitFailed)
	assert.Equal(t, 3, repo.saleCalls)
	assert.Equal(t, 100, mustProduct(t, base, "prd-net-clips").Stock)
}

type duplicateBillRepo struct {
	*memory.Store
	bills []string
}

func (r *duplicateBillRepo) CreateOfflineSale(ctx context.Context, writes []store.StockWrite, sale domain.OfflineSale) (*domain.OfflineSale, error) {
	r.bills = append(r.bills, sale.BillNumber)
	if len(r.bills) == 1 {
		return nil, store.ErrDuplicateBillNumber
	}
	return r.Store.CreateOfflineSale(ctx, writes, sale)
}

func TestCommitRetriesDuplicateBillNumber(t *testing.T) {
	repo := &duplicateBillRepo{Store: memory.NewSeeded()}
	svc := newTestService(repo)

	sale, err := svc.CreateOfflineSale(adminCtx(), domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: "prd-net-clips", Quantity: inventory.Pieces(1)}},
	})
	require.NoError(t, err)
	require.Len(t, repo.bills, 2)
	assert.Equal(t, repo.bills[1], sale.BillNumber)
	assert.Equal(t, 99, mustProduct(t, repo, "prd-net-clips").Stock)
}

func TestPlaceOrderUsesCatalogPriceAndTakesStock(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)

	order, err := svc.PlaceOrder(customerCtx("customer"), domain.OrderRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prd-tirpal-roll", Quantity: meters(2.5), SellingPriceCents: price(1)},
			{ProductID: "prd-net-clips", Quantity: inventory.Pieces(3)},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   "upi",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, "UPI", order.PaymentMethod)
	assert.Equal(t, "customer", order.Username)
	assert.Equal(t, int64(23750), order.Items[0].LineTotalCents)
	assert.Equal(t, int64(23750+36000), order.TotalCents)

	roll := mustProduct(t, repo, "prd-tirpal-roll")
	assert.Equal(t, []inventory.Quantity{meters(27.5)}, roll.Meter.OpenPieces())
	assert.Equal(t, 97, mustProduct(t, repo, "prd-net-clips").Stock)
}

func TestPlaceOrderValidatesAddressAndActor(t *testing.T) {
	svc := newTestService(memory.NewSeeded())
	items := []domain.SaleLineRequest{{ProductID: "prd-net-clips", Quantity: inventory.Pieces(1)}}

	_, err := svc.PlaceOrder(context.Background(), domain.OrderRequest{Items: items, ShippingAddress: testAddress()})
	require.ErrorIs(t, err, ErrForbidden)

	addr := testAddress()
	addr.Pincode = " "
	_, err = svc.PlaceOrder(customerCtx("customer"), domain.OrderRequest{Items: items, ShippingAddress: addr})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.PlaceOrder(customerCtx("customer"), domain.OrderRequest{Items: items, ShippingAddress: testAddress(), PaymentMethod: "BARTER"})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestUpdateOrderStatusMovesForwardOnly(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)

	order, err := svc.PlaceOrder(customerCtx("customer"), domain.OrderRequest{
		Items:           []domain.SaleLineRequest{{ProductID: "prd-tension-rope", Quantity: inventory.Pieces(1)}},
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	confirmed, err := svc.UpdateOrderStatus(adminCtx(), order.ID, domain.OrderStatusUpdateRequest{Status: "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, confirmed.Status)

	_, err = svc.UpdateOrderStatus(adminCtx(), order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderPending})
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	cancelled, err := svc.UpdateOrderStatus(adminCtx(), order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderCancelled})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
	assert.Equal(t, 2, mustProduct(t, repo, "prd-tension-rope").Stock)

	_, err = svc.UpdateOrderStatus(adminCtx(), order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderShipped})
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = svc.UpdateOrderStatus(adminCtx(), order.ID, domain.OrderStatusUpdateRequest{Status: "Lost"})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestRevenueReflectsDeliveredOrdersAndOfflineDiscount(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)
	ctx := adminCtx()

	before, err := svc.RevenueTotal(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, before.TotalCents)

	_, err = svc.CreateOfflineSale(ctx, domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prd-net-clips", Quantity: inventory.Pieces(1)},
			{ProductID: "prd-tension-rope", Quantity: inventory.Pieces(1)},
		},
		DiscountCents: 2000,
	})
	require.NoError(t, err)
	order, err := svc.PlaceOrder(customerCtx("customer"), domain.OrderRequest{
		Items:           []domain.SaleLineRequest{{ProductID: "prd-net-clips", Quantity: inventory.Pieces(2)}},
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	total, err := svc.RevenueTotal(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.RevenueTotal{TotalCents: 45000, OfflineCents: 45000}, total)

	_, err = svc.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderDelivered})
	require.NoError(t, err)

	total, err = svc.RevenueTotal(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(24000), total.OnlineCents)

	trend, err := svc.RevenueTrend(ctx, 7, "Fasteners")
	require.NoError(t, err)
	require.Len(t, trend, 7)
	assert.Equal(t, int64(10000+24000), trend[6].RevenueCents)

	_, err = svc.RevenueTrend(ctx, 400, "")
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestCreateProductValidatesAndDerivesShade(t *testing.T) {
	svc := newTestService(memory.New())
	ctx := adminCtx()

	net, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:               "Shade Net 75%",
		Category:           "Green Nets",
		Quality:            "75%",
		UnitType:           "meter",
		BundlePriceCents:   200000,
		PricePerMeterCents: 4500,
		BundleLength:       meters(50),
		BundleStock:        2,
		OpenPieces:         []inventory.Quantity{meters(7.5)},
	})
	require.NoError(t, err)
	require.NotNil(t, net.ShadePercentage)
	assert.Equal(t, 75, *net.ShadePercentage)
	assert.True(t, net.Active)
	assert.Equal(t, meters(107.5), net.Available())
	assert.Equal(t, int64(200000), net.PriceCents)

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Hammock", Category: "Furniture", PriceCents: 100})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Rope", Category: "Tensioning", PriceCents: 0})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Net", Category: "Green Nets", UnitType: "meter", PricePerMeterCents: 100})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.CreateProduct(customerCtx("customer"), domain.ProductCreateRequest{Name: "Rope", Category: "Tensioning", PriceCents: 100})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateProductLeavesStockAlone(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)

	name := "Tensioning Rope 25m"
	newPrice := int64(40000)
	updated, err := svc.UpdateProduct(adminCtx(), "prd-tension-rope", domain.ProductUpdateRequest{Name: &name, PriceCents: &newPrice})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, newPrice, updated.PriceCents)
	assert.Equal(t, 3, updated.Stock)

	bad := int64(0)
	_, err = svc.UpdateProduct(adminCtx(), "prd-tension-rope", domain.ProductUpdateRequest{PriceCents: &bad})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.UpdateProduct(adminCtx(), "prd-missing", domain.ProductUpdateRequest{Name: &name})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestRestockAddsBundlesOrPieces(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)
	ctx := adminCtx()

	net, err := svc.Restock(ctx, "prd-green-net-50", domain.RestockRequest{Bundles: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, net.Meter.BundleStock())
	assert.Equal(t, int64(2), net.Version)

	rope, err := svc.Restock(ctx, "prd-tension-rope", domain.RestockRequest{Pieces: 7})
	require.NoError(t, err)
	assert.Equal(t, 10, rope.Stock)

	_, err = svc.Restock(ctx, "prd-green-net-50", domain.RestockRequest{Pieces: 3})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.Restock(ctx, "prd-tension-rope", domain.RestockRequest{})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRestockReactivatesSoldOutProduct(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)
	ctx := adminCtx()

	_, err := svc.CreateOfflineSale(ctx, domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: "prd-tension-rope", Quantity: inventory.Pieces(3)}},
	})
	require.NoError(t, err)
	assert.False(t, mustProduct(t, repo, "prd-tension-rope").Active)

	rope, err := svc.Restock(ctx, "prd-tension-rope", domain.RestockRequest{Pieces: 1})
	require.NoError(t, err)
	assert.True(t, rope.Active)
}

func TestSetProductImageReplacesPreviousObject(t *testing.T) {
	repo := memory.NewSeeded()
	blobs := media.NewMemoryStore("https://cdn.test")
	svc := New(repo, nil, blobs, nil, Options{Location: time.UTC}, zap.NewNop())
	ctx := adminCtx()

	first, err := svc.SetProductImage(ctx, "prd-net-clips", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.ImageURL, "https://cdn.test/products/prd-net-clips/"))
	assert.True(t, blobs.Has(first.ImageObject))

	second, err := svc.SetProductImage(ctx, "prd-net-clips", "image/webp", strings.NewReader("webp"))
	require.NoError(t, err)
	assert.True(t, blobs.Has(second.ImageObject))
	assert.False(t, blobs.Has(first.ImageObject))

	_, err = svc.SetProductImage(ctx, "prd-net-clips", "image/gif", strings.NewReader("gif"))
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	require.NoError(t, svc.DeleteProduct(ctx, "prd-net-clips"))
	assert.False(t, blobs.Has(second.ImageObject))
}

func TestSalesHistoryMergesChannels(t *testing.T) {
	svc := newTestService(memory.NewSeeded())
	ctx := adminCtx()

	sale, err := svc.CreateOfflineSale(ctx, domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: "prd-net-clips", Quantity: inventory.Pieces(1)}},
	})
	require.NoError(t, err)
	order, err := svc.PlaceOrder(customerCtx("customer"), domain.OrderRequest{
		Items:           []domain.SaleLineRequest{{ProductID: "prd-net-clips", Quantity: inventory.Pieces(1)}},
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	history, err := svc.SalesHistory(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, RangeToday, history.Range)
	assert.Equal(t, SaleTypeAll, history.Type)
	assert.Equal(t, 1, history.OfflineCount)
	assert.Equal(t, 1, history.OnlineCount)
	assert.Equal(t, int64(24000), history.TotalCents)
	require.Len(t, history.Sales, 2)

	var online domain.SaleSummary
	for _, row := range history.Sales {
		if row.Channel == domain.ChannelOnline {
			online = row
		}
	}
	assert.Equal(t, "Ravi Kumar", online.CustomerName)
	assert.Len(t, online.BillNumber, 8)
	assert.True(t, strings.HasPrefix(strings.TrimPrefix(order.ID, "ord-"), online.BillNumber))

	offline, err := svc.SalesHistory(ctx, "week", "offline")
	require.NoError(t, err)
	require.Len(t, offline.Sales, 1)
	assert.Equal(t, sale.BillNumber, offline.Sales[0].BillNumber)

	_, err = svc.SalesHistory(ctx, "year", "")
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestLowStockAndSummary(t *testing.T) {
	svc := newTestService(memory.NewSeeded())
	ctx := adminCtx()

	_, err := svc.CreateOfflineSale(ctx, domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: "prd-green-net-50", Quantity: meters(10)}},
	})
	require.NoError(t, err)

	alerts, err := svc.LowStock(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.ProductID)
	}
	assert.Equal(t, []string{"prd-tension-rope", "prd-green-net-50"}, ids)
	assert.Equal(t, meters(40), alerts[1].Available)

	summary, err := svc.AnalyticsSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.TotalProducts)
	assert.Equal(t, 6, summary.ActiveProducts)
	assert.Equal(t, 2, summary.LowStock)
	assert.Equal(t, 1, summary.TotalCustomers)
	assert.Equal(t, 1, summary.OfflineSales)
	assert.Equal(t, 0, summary.OrderStatusCounts[domain.OrderPending])
	assert.Equal(t, int64(35000), summary.Revenue.OfflineCents)
}

func TestInvoiceFindsOfflineSaleThenOrder(t *testing.T) {
	svc := newTestService(memory.NewSeeded())
	ctx := adminCtx()

	sale, err := svc.CreateOfflineSale(ctx, domain.OfflineSaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: "prd-green-net-90", Quantity: meters(3)}},
	})
	require.NoError(t, err)

	file, err := svc.Invoice(ctx, sale.BillNumber)
	require.NoError(t, err)
	assert.Equal(t, "invoice-"+sale.BillNumber+".html", file.Filename)
	assert.Contains(t, string(file.Body), sale.BillNumber)
	assert.Contains(t, string(file.Body), "Green Nets Test")

	order, err := svc.PlaceOrder(customerCtx("customer"), domain.OrderRequest{
		Items:           []domain.SaleLineRequest{{ProductID: "prd-net-clips", Quantity: inventory.Pieces(1)}},
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	own, err := svc.Invoice(customerCtx("customer"), order.ID)
	require.NoError(t, err)
	assert.Contains(t, string(own.Body), "Ravi Kumar")

	_, err = svc.Invoice(customerCtx("someone-else"), order.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Invoice(customerCtx("customer"), sale.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
