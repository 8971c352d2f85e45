package store

import (
	"context"
	"errors"

	"greennets/backend/internal/domain"
	"greennets/backend/internal/inventory"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = inventory.ErrInsufficientStock
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrConflict means a product changed after it was read.
	ErrConflict            = errors.New("concurrent update conflict")
	ErrDuplicateBillNumber = errors.New("duplicate bill number")
	ErrDuplicateUser       = errors.New("user already exists")
)

// StockWrite replaces a product's stock state, provided the stored product
// still carries ExpectedVersion. The write bumps the version by one.
type StockWrite struct {
	Product         domain.Product
	ExpectedVersion int64
}

type Repository interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// UpdateProduct writes catalog fields only; stock fields are ignored.
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SetProductImage(ctx context.Context, id string, url string, object string) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	// ApplyStock commits stock writes outside of a sale, e.g. restocks.
	ApplyStock(ctx context.Context, writes []StockWrite) error

	// CreateOrder and CreateOfflineSale commit the stock writes and the
	// sale record as one unit. Nothing is written when any product version
	// moved (ErrConflict) or the bill number is taken (ErrDuplicateBillNumber).
	CreateOrder(ctx context.Context, writes []StockWrite, order domain.Order) (*domain.Order, error)
	CreateOfflineSale(ctx context.Context, writes []StockWrite, sale domain.OfflineSale) (*domain.OfflineSale, error)

	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.SaleFilter) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, fromStatus string, toStatus string) (*domain.Order, error)
	GetOfflineSale(ctx context.Context, id string) (*domain.OfflineSale, error)
	ListOfflineSales(ctx context.Context, filter domain.SaleFilter) ([]domain.OfflineSale, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
