// Package cart prices vendor offers and maintains a shopper's cart lines.
//
// Every function here is pure with respect to its State argument: a new State
// is returned and the input is left untouched. The only mutation is the stock
// deduction AddToCart applies to the caller's product copy.
package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownUnit is returned when a vendor has no price for the unit.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrInvalidQuantity is returned for a quantity that is zero, negative or
	// out of range.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrVendorNotFound is returned when the product has no vendor with the ID.
	ErrVendorNotFound = errors.New("vendor not found")
	// ErrOutOfStock is returned when the quantity exceeds the vendor's stock.
	ErrOutOfStock = errors.New("out of stock")
	// ErrIndexOutOfRange is returned by RemoveLine for an invalid index.
	ErrIndexOutOfRange = errors.New("cart line index out of range")
)

// Line is one confirmed purchase intent. Lines are never edited in place.
type Line struct {
	ProductID string
	VendorID  string
	Unit      string
	Quantity  decimal.Decimal
	// UnitPrice is the vendor's price for Unit when the line was added.
	UnitPrice decimal.Decimal
}

// Subtotal returns UnitPrice * Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(l.Quantity)
}

// State is an ordered list of lines; insertion order is display order.
type State struct {
	lines []Line
}

// NewState builds a State from existing lines.
func NewState(lines ...Line) State {
	return State{lines: append([]Line(nil), lines...)}
}

// Lines returns a copy of the cart lines.
func (s State) Lines() []Line {
	return append([]Line(nil), s.lines...)
}

// Len returns the number of lines.
func (s State) Len() int {
	return len(s.lines)
}

// Summary holds totals derived from a State.
type Summary struct {
	// ItemCount is the sum of line quantities, not the number of lines.
	ItemCount   decimal.Decimal
	TotalAmount decimal.Decimal
}

// Money formats an amount for display with two decimals. Amounts are
// truncated, never rounded; cart totals are kept exact.
func Money(amount decimal.Decimal) string {
	return amount.Truncate(2).StringFixed(2)
}
