package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-kart/internal/domain/catalog"
)

// MaxExponent bounds the decimal exponent of an accepted quantity in either
// direction. Comparing decimals rescales both to the smaller exponent.
const MaxExponent = 18

// ValidQuantity reports whether q is positive and within MaxExponent.
func ValidQuantity(q decimal.Decimal) bool {
	exp := q.Exponent()
	return q.IsPositive() && exp <= MaxExponent && exp >= -MaxExponent
}

// PriceFor returns the vendor's price for quantity of unit.
func PriceFor(v *catalog.Vendor, unit string, quantity decimal.Decimal) (decimal.Decimal, error) {
	if !ValidQuantity(quantity) {
		return decimal.Zero, ErrInvalidQuantity
	}
	price, ok := v.UnitPrices[unit]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrUnknownUnit, "vendor %s has no price for %q", v.ID, unit)
	}
	return price.Mul(quantity), nil
}

// AddToCart appends a line for quantity of unit from the product's vendor and
// deducts the quantity from that vendor's stock in p. Either both happen or
// neither does. It returns the new state and the vendor's remaining stock.
//
// p must be the caller's own copy of the product. Callers sharing p between
// goroutines must serialize calls per vendor.
func AddToCart(
	s State,
	p *catalog.Product,
	vendorID, unit string,
	quantity decimal.Decimal,
) (State, decimal.Decimal, error) {
	v := p.Vendor(vendorID)
	if v == nil {
		return s, decimal.Zero, errors.Wrapf(ErrVendorNotFound, "product %s vendor %s", p.ID, vendorID)
	}

	if !ValidQuantity(quantity) {
		return s, v.Stock, ErrInvalidQuantity
	}
	if quantity.GreaterThan(v.Stock) {
		return s, v.Stock, errors.Wrapf(ErrOutOfStock, "requested %s, %s available", quantity, v.Stock)
	}
	unitPrice, err := PriceFor(v, unit, decimal.NewFromInt(1))
	if err != nil {
		return s, v.Stock, err
	}

	next := State{lines: make([]Line, len(s.lines), len(s.lines)+1)}
	copy(next.lines, s.lines)
	next.lines = append(next.lines, Line{
		ProductID: p.ID,
		VendorID:  v.ID,
		Unit:      unit,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	})
	v.Stock = v.Stock.Sub(quantity)

	return next, v.Stock, nil
}

// RemoveLine returns s without the line at index. Deducted stock is not
// restored.
func RemoveLine(s State, index int) (State, error) {
	if index < 0 || index >= len(s.lines) {
		return s, errors.Wrapf(ErrIndexOutOfRange, "index %d, %d lines", index, len(s.lines))
	}
	next := State{lines: make([]Line, 0, len(s.lines)-1)}
	next.lines = append(next.lines, s.lines[:index]...)
	next.lines = append(next.lines, s.lines[index+1:]...)
	return next, nil
}

// Summarize computes item count and total from scratch.
func Summarize(s State) Summary {
	sum := Summary{ItemCount: decimal.Zero, TotalAmount: decimal.Zero}
	for _, l := range s.lines {
		sum.ItemCount = sum.ItemCount.Add(l.Quantity)
		sum.TotalAmount = sum.TotalAmount.Add(l.Subtotal())
	}
	return sum
}
