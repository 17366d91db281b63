package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/vendor-kart/internal/domain/cart"
	"github.com/xenking/vendor-kart/internal/domain/catalog"
)

// ListProducts serves GET /api/product?q=&sort=.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	order, err := sortParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	products, err := h.catalog.List(r.Context())
	if err != nil {
		fail(w, r, errors.Wrap(err, "list products"))
		return
	}
	products = catalog.Browse(products, r.URL.Query().Get("q"), order)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProducts(e, products) })
}

// GetProduct serves GET /api/product/{productId}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetByID(r.Context(), r.PathValue("productId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

// SessionProducts serves GET /api/session/{sessionId}/product, the session's
// snapshot with the stock left after cart additions.
func (h *Handler) SessionProducts(w http.ResponseWriter, r *http.Request) {
	order, err := sortParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	products, err := h.sessions.Products(r.Context(), r.PathValue("sessionId"), r.URL.Query().Get("q"), order)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProducts(e, products) })
}

func sortParam(r *http.Request) (catalog.SortOrder, error) {
	raw := r.URL.Query().Get("sort")
	order, ok := catalog.ParseSortOrder(raw)
	if !ok {
		return catalog.SortNone, badRequest("unknown sort order %q", raw)
	}
	return order, nil
}

func (h *Handler) imageURL(path string) string {
	if path == "" || h.imageBaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (h *Handler) encodeProducts(e *jx.Encoder, products []catalog.Product) {
	e.ArrStart()
	for i := range products {
		h.encodeProduct(e, &products[i])
	}
	e.ArrEnd()
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *catalog.Product) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
	e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
	if p.Description != "" {
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
	}
	if img := h.imageURL(p.Image); img != "" {
		e.Field("image", func(e *jx.Encoder) { e.Str(img) })
	}
	if price, ok := catalog.CheapestPrice(*p); ok {
		e.Field("cheapestPrice", func(e *jx.Encoder) { e.Str(cart.Money(price)) })
	}
	e.Field("purchasable", func(e *jx.Encoder) { e.Bool(p.Purchasable()) })
	e.FieldStart("vendors")
	e.ArrStart()
	for i := range p.Vendors {
		encodeVendor(e, &p.Vendors[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}

// encodeVendorFields writes the vendor fields shared by product and vendor option
// responses, leaving the object open.
func encodeVendorFields(e *jx.Encoder, v *catalog.Vendor) {
	e.Field("id", func(e *jx.Encoder) { e.Str(v.ID) })
	e.Field("name", func(e *jx.Encoder) { e.Str(v.Name) })
	e.FieldStart("prices")
	e.ObjStart()
	for _, unit := range v.Units() {
		e.Field(unit, func(e *jx.Encoder) { e.Str(cart.Money(v.UnitPrices[unit])) })
	}
	e.ObjEnd()
	e.Field("stock", func(e *jx.Encoder) { e.Num(jx.Num(v.Stock.String())) })
	if v.Location != nil {
		e.Field("lat", func(e *jx.Encoder) { e.Float64(v.Location.Latitude) })
		e.Field("lng", func(e *jx.Encoder) { e.Float64(v.Location.Longitude) })
	}
}

func encodeVendor(e *jx.Encoder, v *catalog.Vendor) {
	e.ObjStart()
	encodeVendorFields(e, v)
	e.ObjEnd()
}
