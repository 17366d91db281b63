// Package coupon prices checkout discounts.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage off the cart subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
	// DiscountFreeLowest makes one unit of the cheapest line free.
	DiscountFreeLowest DiscountType = "free_lowest"
)

var (
	// ErrInvalidCoupon is returned for an unknown code or a cart below the
	// coupon's minimum quantity.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned outside the coupon's validity window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned once MaxUses is exhausted.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
)

// Rule is a stored coupon.
type Rule struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	// MinItems is the minimum total cart quantity, across all units.
	MinItems    decimal.Decimal
	Description string
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	MaxUses     int
	Uses        int
	// MaxDiscount caps the discount when positive.
	MaxDiscount decimal.Decimal
}

// Discount is the priced result of applying a Rule.
type Discount struct {
	Amount      decimal.Decimal
	Description string
}

// Item is one cart line as seen by discount rules.
type Item struct {
	ProductID string
	VendorID  string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
}

// Repository provides lookup and mutation of coupon rules.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	IncrementUses(ctx context.Context, code string) error
}
