package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-kart/internal/domain/auth"
	"github.com/xenking/vendor-kart/internal/domain/cart"
	"github.com/xenking/vendor-kart/internal/domain/order"
)

// Checkout serves POST /api/session/{sessionId}/checkout with an optional
// {"couponCode"} body. It requires an API key with the checkout scope.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r, auth.ScopeCheckout); err != nil {
		fail(w, r, err)
		return
	}

	var couponCode string
	err := readBody(r, true, func(d *jx.Decoder, key string) error {
		if key != "couponCode" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		v, err := d.Str()
		couponCode = strings.TrimSpace(v)
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	o, err := h.checkout.Checkout(r.Context(), r.PathValue("sessionId"), couponCode)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("sessionId", func(e *jx.Encoder) { e.Str(o.SessionID) })
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		encodeLineFields(e, it.ProductID, it.VendorID, it.Unit, it.Quantity.String(), it.UnitPrice, it.UnitPrice.Mul(it.Quantity))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.Field("subtotal", func(e *jx.Encoder) { e.Str(cart.Money(o.Subtotal)) })
	e.Field("discounts", func(e *jx.Encoder) { e.Str(cart.Money(o.Discounts)) })
	e.Field("total", func(e *jx.Encoder) { e.Str(cart.Money(o.Total)) })
	if o.CouponCode != "" {
		e.Field("couponCode", func(e *jx.Encoder) { e.Str(o.CouponCode) })
	}
	e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format(time.RFC3339)) })
	e.ObjEnd()
}

func encodeLineFields(e *jx.Encoder, productID, vendorID, unit, quantity string, unitPrice, subtotal decimal.Decimal) {
	e.Field("productId", func(e *jx.Encoder) { e.Str(productID) })
	e.Field("vendorId", func(e *jx.Encoder) { e.Str(vendorID) })
	e.Field("unit", func(e *jx.Encoder) { e.Str(unit) })
	e.Field("quantity", func(e *jx.Encoder) { e.Num(jx.Num(quantity)) })
	e.Field("unitPrice", func(e *jx.Encoder) { e.Str(cart.Money(unitPrice)) })
	e.Field("subtotal", func(e *jx.Encoder) { e.Str(cart.Money(subtotal)) })
}
