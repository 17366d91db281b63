package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Validator prices a coupon code against cart items.
type Validator interface {
	Validate(ctx context.Context, code string, items []Item) (*Discount, error)
}

// RepoValidator validates codes stored in a Repository. A successful
// validation counts as one use of the coupon.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate checks the rule's window and usage limit, prices it against items
// and records the use.
func (v *RepoValidator) Validate(ctx context.Context, code string, items []Item) (*Discount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}

	rule, err := v.repo.FindByCode(ctx, code)
	switch {
	case errors.Is(err, ErrInvalidCoupon):
		return nil, ErrInvalidCoupon
	case err != nil:
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := checkWindow(rule, v.now()); err != nil {
		return nil, err
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}

	discount, err := Apply(rule, items)
	if err != nil {
		return nil, err
	}
	if err := v.repo.IncrementUses(ctx, rule.Code); err != nil {
		return nil, errors.Wrap(err, "increment coupon uses")
	}
	return &discount, nil
}

func checkWindow(rule *Rule, now time.Time) error {
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return ErrCouponExpired
	}
	return nil
}
