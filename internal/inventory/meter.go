package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidLength     = errors.New("invalid length")
	ErrInvalidMeterStock = errors.New("invalid meter stock")
)

type AllocationSource string

const (
	SourceOpenPiece AllocationSource = "open_piece"
	SourceBundle    AllocationSource = "bundle"
)

// Allocation describes one cut taken from a MeterStock.
type Allocation struct {
	Source AllocationSource `json:"source"`
	// PieceIndex is the position of the consumed open piece, or -1 when a
	// bundle was opened.
	PieceIndex int      `json:"pieceIndex"`
	Cut        Quantity `json:"cut"`
	// Leftover is what remains of the source after the cut. Zero means the
	// piece was used up or the bundle was cut exactly.
	Leftover Quantity `json:"leftover"`
}

// MeterStock is the inventory of a product sold by length: sealed bundles of
// a fixed length plus the leftover pieces of bundles already cut.
//
// Every open piece p satisfies 0 < p < bundleLength. Allocate and AddBundles
// are the only mutators.
type MeterStock struct {
	bundleLength Quantity
	bundleStock  int
	openPieces   []Quantity
}

func NewMeterStock(bundleLength Quantity, bundleStock int, openPieces []Quantity) (MeterStock, error) {
	if bundleLength <= 0 {
		return MeterStock{}, fmt.Errorf("%w: bundle length must be positive", ErrInvalidMeterStock)
	}
	if bundleStock < 0 {
		return MeterStock{}, fmt.Errorf("%w: bundle stock must not be negative", ErrInvalidMeterStock)
	}
	pieces := make([]Quantity, 0, len(openPieces))
	for i, p := range openPieces {
		if p <= 0 || p >= bundleLength {
			return MeterStock{}, fmt.Errorf("%w: open piece %d (%s) must be between 0 and %s", ErrInvalidMeterStock, i, p, bundleLength)
		}
		pieces = append(pieces, p)
	}
	return MeterStock{bundleLength: bundleLength, bundleStock: bundleStock, openPieces: pieces}, nil
}

func (m MeterStock) BundleLength() Quantity { return m.bundleLength }
func (m MeterStock) BundleStock() int       { return m.bundleStock }

func (m MeterStock) OpenPieces() []Quantity {
	return append([]Quantity(nil), m.openPieces...)
}

// Available is the total length in stock.
func (m MeterStock) Available() Quantity {
	total := Quantity(m.bundleStock) * m.bundleLength
	for _, p := range m.openPieces {
		total += p
	}
	return total
}

func (m MeterStock) InStock() bool {
	return m.bundleStock > 0 || len(m.openPieces) > 0
}

func (m MeterStock) Clone() MeterStock {
	m.openPieces = m.OpenPieces()
	return m
}

// Allocate cuts required from the stock. The first open piece long enough
// is used; when none is, one fresh bundle is opened and its remainder is
// appended as a new open piece. A single cut never combines sources, so a
// request can fail even when Available() covers it (two 10m pieces cannot
// serve 15m once the bundles are gone). The stock is left untouched on error.
// Open pieces are copied before being changed, so copies of a MeterStock
// never observe each other's cuts.
func (m *MeterStock) Allocate(required Quantity) (Allocation, error) {
	if required <= 0 {
		return Allocation{}, fmt.Errorf("%w: %s", ErrInvalidLength, required)
	}

	for i, p := range m.openPieces {
		if p < required {
			continue
		}
		rest := p - required
		pieces := m.OpenPieces()
		if rest == 0 {
			pieces = append(pieces[:i], pieces[i+1:]...)
		} else {
			pieces[i] = rest
		}
		m.openPieces = pieces
		return Allocation{Source: SourceOpenPiece, PieceIndex: i, Cut: required, Leftover: rest}, nil
	}

	if m.bundleStock == 0 || required > m.bundleLength {
		return Allocation{}, fmt.Errorf("%w: cannot cut %s from %d bundles of %s and %d open pieces",
			ErrInsufficientStock, required, m.bundleStock, m.bundleLength, len(m.openPieces))
	}
	m.bundleStock--
	leftover := m.bundleLength - required
	if leftover > 0 {
		m.openPieces = append(m.OpenPieces(), leftover)
	}
	return Allocation{Source: SourceBundle, PieceIndex: -1, Cut: required, Leftover: leftover}, nil
}

// AddBundles restocks sealed bundles.
func (m *MeterStock) AddBundles(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: bundles to add must be positive", ErrInvalidQuantity)
	}
	m.bundleStock += n
	return nil
}

type meterStockJSON struct {
	BundleLength Quantity   `json:"bundleLength"`
	BundleStock  int        `json:"bundleStock"`
	OpenPieces   []Quantity `json:"openPieces"`
}

func (m MeterStock) MarshalJSON() ([]byte, error) {
	pieces := m.openPieces
	if pieces == nil {
		pieces = []Quantity{}
	}
	return json.Marshal(meterStockJSON{BundleLength: m.bundleLength, BundleStock: m.bundleStock, OpenPieces: pieces})
}

func (m *MeterStock) UnmarshalJSON(data []byte) error {
	var raw meterStockJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	stock, err := NewMeterStock(raw.BundleLength, raw.BundleStock, raw.OpenPieces)
	if err != nil {
		return err
	}
	*m = stock
	return nil
}

// DeductPieces removes qty whole pieces from stock and returns the new count.
func DeductPieces(stock int, qty Quantity) (int, error) {
	if qty <= 0 || !qty.IsWhole() {
		return stock, fmt.Errorf("%w: %s pieces", ErrInvalidQuantity, qty)
	}
	n := qty.WholeUnits()
	if n > stock {
		return stock, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, n, stock)
	}
	return stock - n, nil
}
