package inventory

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meters(values ...float64) []Quantity {
	out := make([]Quantity, 0, len(values))
	for _, v := range values {
		out = append(out, QuantityFromFloat(v))
	}
	return out
}

func mustStock(t *testing.T, bundleLength float64, bundles int, pieces ...float64) MeterStock {
	t.Helper()
	stock, err := NewMeterStock(QuantityFromFloat(bundleLength), bundles, meters(pieces...))
	require.NoError(t, err)
	return stock
}

func TestAllocateUsesFirstPieceThatFits(t *testing.T) {
	stock := mustStock(t, 50, 2, 5, 20)

	alloc, err := stock.Allocate(QuantityFromFloat(12))
	require.NoError(t, err)

	assert.Equal(t, SourceOpenPiece, alloc.Source)
	assert.Equal(t, 1, alloc.PieceIndex)
	assert.Equal(t, meters(5, 8), stock.OpenPieces())
	assert.Equal(t, 2, stock.BundleStock())
}

func TestAllocateFirstFitIsNotBestFit(t *testing.T) {
	stock := mustStock(t, 50, 0, 30, 12)

	_, err := stock.Allocate(QuantityFromFloat(12))
	require.NoError(t, err)

	assert.Equal(t, meters(18, 12), stock.OpenPieces())
}

func TestAllocateOpensBundleWhenNoPieceFits(t *testing.T) {
	stock := mustStock(t, 50, 1)

	alloc, err := stock.Allocate(QuantityFromFloat(30))
	require.NoError(t, err)

	assert.Equal(t, SourceBundle, alloc.Source)
	assert.Equal(t, -1, alloc.PieceIndex)
	assert.Equal(t, 0, stock.BundleStock())
	assert.Equal(t, meters(20), stock.OpenPieces())
}

func TestAllocateWholeBundleLeavesNoPiece(t *testing.T) {
	stock := mustStock(t, 50, 2)

	_, err := stock.Allocate(QuantityFromFloat(50))
	require.NoError(t, err)

	assert.Equal(t, 1, stock.BundleStock())
	assert.Empty(t, stock.OpenPieces())
}

func TestAllocateExactPieceRemovesIt(t *testing.T) {
	stock := mustStock(t, 50, 1, 7.5, 12.3)

	_, err := stock.Allocate(QuantityFromFloat(7.5))
	require.NoError(t, err)

	assert.Equal(t, meters(12.3), stock.OpenPieces())
	assert.Equal(t, 1, stock.BundleStock())
}

func TestAllocateExhaustedStock(t *testing.T) {
	stock := mustStock(t, 50, 0)

	_, err := stock.Allocate(Tenth)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAllocateNeverCombinesPieces(t *testing.T) {
	stock := mustStock(t, 50, 1, 10, 10)

	alloc, err := stock.Allocate(QuantityFromFloat(15))
	require.NoError(t, err)
	assert.Equal(t, SourceBundle, alloc.Source)
	assert.Equal(t, meters(10, 10, 35), stock.OpenPieces())

	// 20m in stock, but no single source holds 15m.
	stock = mustStock(t, 50, 0, 10, 10)
	before := stock.OpenPieces()
	_, err = stock.Allocate(QuantityFromFloat(15))
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, before, stock.OpenPieces())
}

func TestAllocateRejectsNonPositiveLength(t *testing.T) {
	stock := mustStock(t, 50, 1)

	_, err := stock.Allocate(0)
	require.ErrorIs(t, err, ErrInvalidLength)
	_, err = stock.Allocate(-Tenth)
	require.ErrorIs(t, err, ErrInvalidLength)
	assert.Equal(t, 1, stock.BundleStock())
}

func TestAllocateDoesNotLeakIntoCopies(t *testing.T) {
	original := mustStock(t, 50, 1, 20)
	working := original

	_, err := working.Allocate(QuantityFromFloat(5))
	require.NoError(t, err)

	assert.Equal(t, meters(20), original.OpenPieces())
	assert.Equal(t, meters(15), working.OpenPieces())
}

func TestAllocateConservesLength(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	stock := mustStock(t, 50, 40, 3.3, 17.9)
	bundleLength := stock.BundleLength()

	for i := 0; i < 500; i++ {
		required := Quantity(rng.Intn(600) + 1)
		before := stock.Available()
		_, err := stock.Allocate(required)
		if errors.Is(err, ErrInsufficientStock) {
			assert.Equal(t, before, stock.Available())
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, before-required, stock.Available())
		for _, p := range stock.OpenPieces() {
			assert.Greater(t, p, Quantity(0))
			assert.Less(t, p, bundleLength)
		}
	}
}

func TestNewMeterStockValidatesPieces(t *testing.T) {
	_, err := NewMeterStock(QuantityFromFloat(50), 1, meters(50))
	require.ErrorIs(t, err, ErrInvalidMeterStock)
	_, err = NewMeterStock(QuantityFromFloat(50), 1, []Quantity{0})
	require.ErrorIs(t, err, ErrInvalidMeterStock)
	_, err = NewMeterStock(0, 1, nil)
	require.ErrorIs(t, err, ErrInvalidMeterStock)
	_, err = NewMeterStock(QuantityFromFloat(50), -1, nil)
	require.ErrorIs(t, err, ErrInvalidMeterStock)
}

func TestMeterStockJSON(t *testing.T) {
	stock := mustStock(t, 50, 3, 12.3, 4)

	raw, err := json.Marshal(stock)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bundleLength":50,"bundleStock":3,"openPieces":[12.3,4]}`, string(raw))

	var decoded MeterStock
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, stock.Available(), decoded.Available())

	err = json.Unmarshal([]byte(`{"bundleLength":50,"bundleStock":1,"openPieces":[60]}`), &decoded)
	require.ErrorIs(t, err, ErrInvalidMeterStock)
}

func TestQuantityRoundsToTenths(t *testing.T) {
	assert.Equal(t, Quantity(123), QuantityFromFloat(12.34))
	assert.Equal(t, Quantity(124), QuantityFromFloat(12.36))

	var q Quantity
	require.NoError(t, json.Unmarshal([]byte(`2.25`), &q))
	assert.Equal(t, Quantity(23), q)
	assert.Equal(t, "2.3", q.String())

	parsed, err := ParseQuantity("0.1")
	require.NoError(t, err)
	assert.Equal(t, Tenth, parsed)
	_, err = ParseQuantity("ten")
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestQuantityAmountRoundsToCent(t *testing.T) {
	assert.Equal(t, int64(369), QuantityFromFloat(12.3).Amount(30))
	assert.Equal(t, int64(3), QuantityFromFloat(0.1).Amount(25))
	assert.Equal(t, int64(1500), Pieces(3).Amount(500))
}

func TestDeductPieces(t *testing.T) {
	left, err := DeductPieces(5, Pieces(2))
	require.NoError(t, err)
	assert.Equal(t, 3, left)

	_, err = DeductPieces(5, Pieces(6))
	require.ErrorIs(t, err, ErrInsufficientStock)
	_, err = DeductPieces(5, QuantityFromFloat(1.5))
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = DeductPieces(5, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}
