package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-kart/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_type, value, min_items, description,
		valid_from, valid_until, max_uses, uses, max_discount
		FROM coupons WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	// The limit is rechecked here so concurrent checkouts cannot exceed it.
	incrementCouponUsesSQL = `UPDATE coupons SET uses = uses + 1
		WHERE code = $1 AND (max_uses = 0 OR uses < max_uses)`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, value, min_items, description,
			valid_from, valid_until, max_uses, max_discount, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			min_items = EXCLUDED.min_items,
			description = EXCLUDED.description,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			max_uses = EXCLUDED.max_uses,
			max_discount = EXCLUDED.max_discount,
			active = TRUE`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon, ignoring case. It returns
// coupon.ErrInvalidCoupon when none matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &rule, nil
}

// IncrementUses records one use of the coupon. It returns
// coupon.ErrCouponUsageLimitReached when the limit was hit concurrently.
func (r *CouponRepository) IncrementUses(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, incrementCouponUsesSQL, code)
	if err != nil {
		return errors.Wrapf(err, "increment uses of coupon %q", code)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponUsageLimitReached
	}
	return nil
}

// Upsert creates or replaces a coupon, keeping its use count.
func (r *CouponRepository) Upsert(ctx context.Context, rule *coupon.Rule) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		rule.Code, string(rule.DiscountType), rule.Value, rule.MinItems, rule.Description,
		rule.ValidFrom, rule.ValidUntil, rule.MaxUses, rule.MaxDiscount,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", rule.Code)
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		discountType string
		validFrom    *time.Time
		validUntil   *time.Time
		maxUses      int32
		uses         int32
		minItems     decimal.Decimal
	)
	err := row.Scan(
		&rule.Code, &discountType, &rule.Value, &minItems, &rule.Description,
		&validFrom, &validUntil, &maxUses, &uses, &rule.MaxDiscount,
	)
	rule.DiscountType = coupon.DiscountType(discountType)
	rule.MinItems = minItems
	rule.ValidFrom = validFrom
	rule.ValidUntil = validUntil
	rule.MaxUses = int(maxUses)
	rule.Uses = int(uses)
	return rule, err
}
