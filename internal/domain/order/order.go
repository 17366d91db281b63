// Package order turns a session cart into a placed order.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a placed order. Money fields are truncated to cents, the same way
// cart totals are shown.
type Order struct {
	ID         string
	SessionID  string
	Items      []Item
	Subtotal   decimal.Decimal
	Discounts  decimal.Decimal
	Total      decimal.Decimal
	CouponCode string
	CreatedAt  time.Time
}

// Item is one purchased cart line.
type Item struct {
	ProductID string
	VendorID  string
	Unit      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
}
