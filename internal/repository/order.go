package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/vendor-kart/internal/domain/order"
)

const createOrderSQL = `INSERT INTO orders (id, session_id, items, subtotal, discounts, total, coupon_code, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create stores a new order with its items in a JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.SessionID, encodeOrderItems(o.Items),
		o.Subtotal, o.Discounts, o.Total, o.CouponCode, o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// encodeOrderItems renders items with decimals as JSON strings so no
// precision is lost.
func encodeOrderItems(items []order.Item) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, it := range items {
		e.Obj(func(e *jx.Encoder) {
			e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
			e.Field("vendor_id", func(e *jx.Encoder) { e.Str(it.VendorID) })
			e.Field("unit", func(e *jx.Encoder) { e.Str(it.Unit) })
			e.Field("quantity", func(e *jx.Encoder) { e.Str(it.Quantity.String()) })
			e.Field("unit_price", func(e *jx.Encoder) { e.Str(it.UnitPrice.String()) })
		})
	}
	e.ArrEnd()
	return e.Bytes()
}
