package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/vendor-kart/internal/domain/coupon"
	"github.com/xenking/vendor-kart/internal/domain/session"
)

// ErrEmptyCart is returned when checking out a cart with no lines.
var ErrEmptyCart = errors.New("cart is empty")

// Carts hands out a session's final cart and ends the session once the
// callback succeeds.
type Carts interface {
	Close(ctx context.Context, sessionID string, fn func(ctx context.Context, view session.CartView) error) error
}

// Service places orders.
type Service struct {
	carts   Carts
	coupons coupon.Validator
	orders  Repository
	now     func() time.Time
}

// NewService creates an order Service.
func NewService(carts Carts, coupons coupon.Validator, orders Repository) *Service {
	return &Service{
		carts:   carts,
		coupons: coupons,
		orders:  orders,
		now:     time.Now,
	}
}

// Checkout places an order for the session's cart, applying couponCode when
// set. The session ends only if the order is stored.
func (s *Service) Checkout(ctx context.Context, sessionID, couponCode string) (*Order, error) {
	var placed *Order
	err := s.carts.Close(ctx, sessionID, func(ctx context.Context, view session.CartView) error {
		if len(view.Lines) == 0 {
			return ErrEmptyCart
		}

		o, err := s.build(ctx, sessionID, view, couponCode)
		if err != nil {
			return err
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", placed.ID),
		zap.String("session_id", sessionID),
		zap.Int("items", len(placed.Items)),
		zap.Stringer("total", placed.Total),
	)
	return placed, nil
}

func (s *Service) build(ctx context.Context, sessionID string, view session.CartView, couponCode string) (*Order, error) {
	items := make([]Item, len(view.Lines))
	couponItems := make([]coupon.Item, len(view.Lines))
	for i, l := range view.Lines {
		items[i] = Item{
			ProductID: l.ProductID,
			VendorID:  l.VendorID,
			Unit:      l.Unit,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
		couponItems[i] = coupon.Item{
			ProductID: l.ProductID,
			VendorID:  l.VendorID,
			Price:     l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}

	subtotal := view.Summary.TotalAmount
	discount := decimal.Zero
	if couponCode != "" {
		d, err := s.coupons.Validate(ctx, couponCode, couponItems)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		discount = d.Amount
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return &Order{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Items:      items,
		Subtotal:   subtotal.Truncate(2),
		Discounts:  discount.Truncate(2),
		Total:      total.Truncate(2),
		CouponCode: couponCode,
		CreatedAt:  s.now().UTC(),
	}, nil
}
