package couponingest

import (
	"context"
	"log/slog"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-kart/internal/domain/coupon"
)

// RuleSet assigns discount rules to ingested codes.
type RuleSet struct {
	// Known maps specific codes to their rules.
	Known map[string]coupon.Rule
	// Default applies to every other code.
	Default coupon.Rule
}

// DefaultRules are the partner promotions known at launch.
func DefaultRules() RuleSet {
	pct := func(v int64, desc string) coupon.Rule {
		return coupon.Rule{DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(v), Description: desc}
	}
	return RuleSet{
		Known: map[string]coupon.Rule{
			"FRESHKG10": pct(10, "Fresh produce: 10% off"),
			"MARKETDAY": pct(15, "Market day: 15% off"),
			"HAPPYHRS":  pct(18, "Happy Hours: 18% off"),
			"BUYGETON": {
				DiscountType: coupon.DiscountFreeLowest,
				MinItems:     decimal.NewFromInt(2),
				Description:  "Lowest priced unit free (2+ items)",
			},
			"DELIVER5": {
				DiscountType: coupon.DiscountFixed,
				Value:        decimal.NewFromInt(5),
				Description:  "5 off your basket",
			},
		},
		Default: pct(10, "Partner promo code: 10% off"),
	}
}

// For returns the rule for code.
func (rs RuleSet) For(code string) coupon.Rule {
	rule, ok := rs.Known[code]
	if !ok {
		rule = rs.Default
	}
	rule.Code = code
	return rule
}

// Store persists coupon rules.
type Store interface {
	Upsert(ctx context.Context, rule *coupon.Rule) error
}

// Write stores a rule for every code and returns how many were written.
func Write(ctx context.Context, store Store, rules RuleSet, codes []string, lg *slog.Logger) (int, error) {
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	for i, code := range codes {
		rule := rules.For(code)
		if err := store.Upsert(ctx, &rule); err != nil {
			return i, errors.Wrapf(err, "upsert coupon %s", code)
		}
		if (i+1)%1000 == 0 || i+1 == len(codes) {
			lg.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}
	return len(codes), nil
}
