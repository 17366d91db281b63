package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply prices rule against items. It returns ErrInvalidCoupon when the
// total quantity is below rule.MinItems.
func Apply(rule *Rule, items []Item) (Discount, error) {
	if rule.MinItems.IsPositive() && totalQuantity(items).LessThan(rule.MinItems) {
		return Discount{}, ErrInvalidCoupon
	}

	subtotal := Subtotal(items)

	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(rule.Value, subtotal)
	case DiscountFreeLowest:
		amount = lowestUnitPrice(items)
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	if rule.MaxDiscount.IsPositive() {
		amount = decimal.Min(amount, rule.MaxDiscount)
	}
	return Discount{
		Amount:      floorAtZero(amount).Round(2),
		Description: rule.Description,
	}, nil
}

// Subtotal returns the sum of price * quantity across items.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Price.Mul(item.Quantity))
	}
	return sum
}

func totalQuantity(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Quantity)
	}
	return total
}

// lowestUnitPrice returns the cheapest unit price, or zero for no items.
// Lines holding less than one unit are discounted by what they cost.
func lowestUnitPrice(items []Item) decimal.Decimal {
	if len(items) == 0 {
		return decimal.Zero
	}
	lowest := freeUnit(items[0])
	for _, item := range items[1:] {
		if p := freeUnit(item); p.LessThan(lowest) {
			lowest = p
		}
	}
	return lowest
}

func freeUnit(item Item) decimal.Decimal {
	if item.Quantity.LessThan(decimal.NewFromInt(1)) {
		return item.Price.Mul(item.Quantity)
	}
	return item.Price
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
