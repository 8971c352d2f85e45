package invoice

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"greennets/backend/internal/domain"
	"greennets/backend/internal/inventory"
	"greennets/backend/internal/xid"
)

//go:embed invoice.html.tmpl
var invoiceTemplateText string

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": Money,
	"qty":   formatQuantity,
	"inc":   func(i int) int { return i + 1 },
}).Parse(invoiceTemplateText))

type Shop struct {
	Name    string
	Address string
	Phone   string
	TaxID   string
}

type Line struct {
	Name              string
	Category          string
	Quality           string
	Size              string
	UnitType          string
	Quantity          inventory.Quantity
	SellingPriceCents int64
	LineTotalCents    int64
}

// Document is everything printed on one invoice.
type Document struct {
	Shop          Shop
	Channel       string
	BillNumber    string
	IssuedAt      time.Time
	CustomerName  string
	CustomerPhone string
	Address       []string
	PaymentMode   string
	Status        string
	Lines         []Line
	SubtotalCents int64
	DiscountCents int64
	TotalCents    int64
}

func linesFrom(items []domain.SaleLine) ([]Line, int64) {
	lines := make([]Line, 0, len(items))
	var subtotal int64
	for _, item := range items {
		lines = append(lines, Line{
			Name:              item.Name,
			Category:          item.Category,
			Quality:           item.Quality,
			Size:              item.Size,
			UnitType:          item.UnitType,
			Quantity:          item.Quantity,
			SellingPriceCents: item.SellingPriceCents,
			LineTotalCents:    item.LineTotalCents,
		})
		subtotal += item.LineTotalCents
	}
	return lines, subtotal
}

func FromOfflineSale(shop Shop, sale domain.OfflineSale, loc *time.Location) Document {
	lines, subtotal := linesFrom(sale.Items)
	if sale.SubtotalCents > 0 {
		subtotal = sale.SubtotalCents
	}
	name := sale.CustomerName
	if name == "" {
		name = domain.WalkInCustomer
	}
	return Document{
		Shop:          shop,
		Channel:       domain.ChannelOffline,
		BillNumber:    sale.BillNumber,
		IssuedAt:      sale.CreatedAt.In(loc),
		CustomerName:  name,
		CustomerPhone: sale.CustomerPhone,
		PaymentMode:   sale.PaymentMode,
		Lines:         lines,
		SubtotalCents: subtotal,
		DiscountCents: sale.DiscountCents,
		TotalCents:    sale.TotalCents,
	}
}

func FromOrder(shop Shop, order domain.Order, loc *time.Location) Document {
	lines, subtotal := linesFrom(order.Items)
	addr := order.ShippingAddress
	address := []string{addr.AddressLine1}
	if addr.AddressLine2 != "" {
		address = append(address, addr.AddressLine2)
	}
	address = append(address, fmt.Sprintf("%s, %s - %s", addr.City, addr.State, addr.Pincode))
	name := addr.FullName
	if name == "" {
		name = order.Username
	}
	return Document{
		Shop:          shop,
		Channel:       domain.ChannelOnline,
		BillNumber:    xid.Short(order.ID),
		IssuedAt:      order.CreatedAt.In(loc),
		CustomerName:  name,
		CustomerPhone: addr.Phone,
		Address:       address,
		PaymentMode:   order.PaymentMethod,
		Status:        order.Status,
		Lines:         lines,
		SubtotalCents: subtotal,
		TotalCents:    order.TotalCents,
	}
}

// HTML renders doc as a standalone printable page.
func HTML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", doc.BillNumber, err)
	}
	return buf.Bytes(), nil
}

// Money formats cents with two decimals, e.g. 123456 -> "1234.56".
func Money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func formatQuantity(q inventory.Quantity, unitType string) string {
	if unitType == domain.UnitMeter {
		return q.String() + " m"
	}
	return q.Decimal().String()
}

// Renderer turns a rendered HTML invoice into the downloadable payload.
type Renderer interface {
	Render(ctx context.Context, html []byte) (Payload, error)
}

type Payload struct {
	ContentType string
	Body        []byte
}

// HTMLRenderer returns the page as is; it serves deployments without a
// PDF conversion service.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(_ context.Context, html []byte) (Payload, error) {
	return Payload{ContentType: "text/html; charset=utf-8", Body: html}, nil
}
