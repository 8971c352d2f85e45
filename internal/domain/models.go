package domain

import (
	"time"

	"greennets/backend/internal/inventory"
)

type Product struct {
	ID                 string                `json:"id"`
	Name               string                `json:"name"`
	Description        string                `json:"description"`
	Category           string                `json:"category"`
	Quality            string                `json:"quality"`
	Size               string                `json:"size"`
	ShadePercentage    *int                  `json:"shade_percentage,omitempty"`
	UnitType           string                `json:"unit_type"`
	PriceCents         int64                 `json:"price_cents"`
	BundlePriceCents   int64                 `json:"bundle_price_cents,omitempty"`
	PricePerMeterCents int64                 `json:"price_per_meter_cents,omitempty"`
	Stock              int                   `json:"stock"`
	Meter              *inventory.MeterStock `json:"meter,omitempty"`
	Active             bool                  `json:"active"`
	ImageURL           string                `json:"image_url,omitempty"`
	ImageObject        string                `json:"-"`
	Version            int64                 `json:"version"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name               string               `json:"name"`
	Description        string               `json:"description"`
	Category           string               `json:"category"`
	Quality            string               `json:"quality"`
	Size               string               `json:"size"`
	UnitType           string               `json:"unit_type"`
	PriceCents         int64                `json:"price_cents"`
	BundlePriceCents   int64                `json:"bundle_price_cents"`
	PricePerMeterCents int64                `json:"price_per_meter_cents"`
	Stock              int                  `json:"stock"`
	BundleLength       inventory.Quantity   `json:"bundle_length"`
	BundleStock        int                  `json:"bundle_stock"`
	OpenPieces         []inventory.Quantity `json:"open_pieces"`
}

// ProductUpdateRequest edits catalog fields. Stock only changes through
// sales and restocks.
type ProductUpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	Description        *string `json:"description,omitempty"`
	Category           *string `json:"category,omitempty"`
	Quality            *string `json:"quality,omitempty"`
	Size               *string `json:"size,omitempty"`
	PriceCents         *int64  `json:"price_cents,omitempty"`
	BundlePriceCents   *int64  `json:"bundle_price_cents,omitempty"`
	PricePerMeterCents *int64  `json:"price_per_meter_cents,omitempty"`
}

type RestockRequest struct {
	Pieces  int `json:"pieces"`
	Bundles int `json:"bundles"`
}

type ProductFilter struct {
	Category   string
	Search     string
	ActiveOnly bool
}

// SaleLine is the frozen copy of a product taken when it was sold.
type SaleLine struct {
	ProductID         string             `json:"product_id"`
	Name              string             `json:"name"`
	Category          string             `json:"category"`
	Quality           string             `json:"quality"`
	Size              string             `json:"size"`
	UnitType          string             `json:"unit_type"`
	PriceCents        int64              `json:"price_cents"`
	SellingPriceCents int64              `json:"selling_price_cents"`
	Quantity          inventory.Quantity `json:"quantity"`
	LineTotalCents    int64              `json:"line_total_cents"`
}

type ShippingAddress struct {
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
}

type Order struct {
	ID              string          `json:"id"`
	Username        string          `json:"username"`
	Items           []SaleLine      `json:"items"`
	TotalCents      int64           `json:"total_cents"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type OfflineSale struct {
	ID            string     `json:"id"`
	BillNumber    string     `json:"bill_number"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	Items         []SaleLine `json:"items"`
	SubtotalCents int64      `json:"subtotal_cents"`
	DiscountCents int64      `json:"discount_cents"`
	TotalCents    int64      `json:"total_cents"`
	PaymentMode   string     `json:"payment_mode"`
	Notes         string     `json:"notes,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

type SaleLineRequest struct {
	ProductID         string             `json:"product_id"`
	Quantity          inventory.Quantity `json:"quantity"`
	SellingPriceCents *int64             `json:"selling_price_cents,omitempty"`
}

type OfflineSaleRequest struct {
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	Items         []SaleLineRequest `json:"items"`
	DiscountCents int64             `json:"discount_cents"`
	PaymentMode   string            `json:"payment_mode"`
	Notes         string            `json:"notes"`
}

type OrderRequest struct {
	Items           []SaleLineRequest `json:"items"`
	ShippingAddress ShippingAddress   `json:"shipping_address"`
	PaymentMethod   string            `json:"payment_method"`
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status"`
}

// SaleFilter selects sale records created in [From, To). Zero bounds are open.
type SaleFilter struct {
	From     time.Time
	To       time.Time
	Status   string
	Username string
	Limit    int
}

// SaleSummary is the row shape shared by both channels in sales history.
type SaleSummary struct {
	ID            string    `json:"id"`
	Channel       string    `json:"channel"`
	BillNumber    string    `json:"bill_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	ItemCount     int       `json:"item_count"`
	TotalCents    int64     `json:"total_cents"`
	DiscountCents int64     `json:"discount_cents"`
	PaymentMode   string    `json:"payment_mode"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type SalesHistory struct {
	Range        string        `json:"range"`
	Type         string        `json:"type"`
	Sales        []SaleSummary `json:"sales"`
	OnlineCount  int           `json:"online_count"`
	OfflineCount int           `json:"offline_count"`
	TotalCents   int64         `json:"total_cents"`
}

type RevenuePoint struct {
	Date         string `json:"date"`
	RevenueCents int64  `json:"revenue_cents"`
}

type RevenueTotal struct {
	TotalCents   int64 `json:"total_revenue_cents"`
	OnlineCents  int64 `json:"online_revenue_cents"`
	OfflineCents int64 `json:"offline_revenue_cents"`
}

type AnalyticsSummary struct {
	TotalProducts     int            `json:"total_products"`
	ActiveProducts    int            `json:"active_products"`
	OutOfStock        int            `json:"out_of_stock"`
	LowStock          int            `json:"low_stock"`
	TotalCustomers    int            `json:"total_customers"`
	TotalOrders       int            `json:"total_orders"`
	DeliveredOrders   int            `json:"delivered_orders"`
	OfflineSales      int            `json:"offline_sales"`
	Revenue           RevenueTotal   `json:"revenue"`
	OrderStatusCounts map[string]int `json:"order_status_counts"`
}

type StockAlert struct {
	ProductID string             `json:"product_id"`
	Name      string             `json:"name"`
	Category  string             `json:"category"`
	UnitType  string             `json:"unit_type"`
	Available inventory.Quantity `json:"available"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Actor struct {
	Username string
	Role     string
}

type UserView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	UnitPiece = "piece"
	UnitMeter = "meter"
)

const (
	ChannelOnline  = "online"
	ChannelOffline = "offline"
)

const (
	OrderPending   = "Pending"
	OrderConfirmed = "Confirmed"
	OrderShipped   = "Shipped"
	OrderDelivered = "Delivered"
	OrderCancelled = "Cancelled"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

const WalkInCustomer = "Walk-in customer"

var (
	Categories = []string{"Green Nets", "Tarpaulins", "Accessories", "Fasteners", "Tensioning", "Repair", "Tirpal"}
	Qualities  = []string{"100%", "90%", "75%", "50%", "Premium", "Standard", "Economy", "250gsm", "200gsm", "160gsm"}

	OfflinePaymentModes  = []string{"Cash", "UPI", "Card"}
	OnlinePaymentMethods = []string{"COD", "UPI", "CARD", "NET_BANKING"}
	OrderStatuses        = []string{OrderPending, OrderConfirmed, OrderShipped, OrderDelivered, OrderCancelled}
)
