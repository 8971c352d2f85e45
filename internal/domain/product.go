package domain

import "greennets/backend/internal/inventory"

func (p Product) IsMeter() bool {
	return p.UnitType == UnitMeter
}

// AvailablePieces is the whole-unit stock of a piece product. Meter products
// report zero.
func (p Product) AvailablePieces() int {
	if p.IsMeter() {
		return 0
	}
	return p.Stock
}

// AvailableLength is the total length of a meter product.
func (p Product) AvailableLength() inventory.Quantity {
	if !p.IsMeter() || p.Meter == nil {
		return 0
	}
	return p.Meter.Available()
}

// Available is the stock in the product's own unit.
func (p Product) Available() inventory.Quantity {
	if p.IsMeter() {
		return p.AvailableLength()
	}
	return inventory.Pieces(p.Stock)
}

func (p *Product) RefreshActive() {
	if p.IsMeter() {
		p.Active = p.Meter != nil && p.Meter.InStock()
		return
	}
	p.Active = p.Stock > 0
}

// CatalogUnitPriceCents is the price of one sold unit: a meter for meter
// products priced per meter, otherwise the base price.
func (p Product) CatalogUnitPriceCents() int64 {
	if p.IsMeter() && p.PricePerMeterCents > 0 {
		return p.PricePerMeterCents
	}
	return p.PriceCents
}

// LowStock reports stock at or below threshold units. A meter product is
// low once less than one sealed bundle worth of length is left.
func (p Product) LowStock(threshold int) bool {
	if p.IsMeter() {
		if p.Meter == nil {
			return true
		}
		return p.Meter.Available() < p.Meter.BundleLength()
	}
	return p.Stock <= threshold
}

func (p Product) Clone() Product {
	if p.Meter != nil {
		m := p.Meter.Clone()
		p.Meter = &m
	}
	if p.ShadePercentage != nil {
		v := *p.ShadePercentage
		p.ShadePercentage = &v
	}
	return p
}

// Snapshot freezes the catalog fields of p into a sale line.
func (p Product) Snapshot(sellingPriceCents int64, qty inventory.Quantity) SaleLine {
	return SaleLine{
		ProductID:         p.ID,
		Name:              p.Name,
		Category:          p.Category,
		Quality:           p.Quality,
		Size:              p.Size,
		UnitType:          p.UnitType,
		PriceCents:        p.PriceCents,
		SellingPriceCents: sellingPriceCents,
		Quantity:          qty,
		LineTotalCents:    qty.Amount(sellingPriceCents),
	}
}

func (o Order) Clone() Order {
	o.Items = append([]SaleLine(nil), o.Items...)
	return o
}

func (s OfflineSale) Clone() OfflineSale {
	s.Items = append([]SaleLine(nil), s.Items...)
	return s
}
