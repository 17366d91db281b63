package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/vendor-kart/internal/catalogjson"
	"github.com/xenking/vendor-kart/internal/domain/cart"
	"github.com/xenking/vendor-kart/internal/domain/geo"
	"github.com/xenking/vendor-kart/internal/domain/session"
)

// StartSession serves POST /api/session. The body {"lat","lng"} is
// optional; without it the server's default location applies.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var lat, lng *float64
	err := readBody(r, true, func(d *jx.Decoder, key string) error {
		switch key {
		case "lat", "lng":
			v, err := d.Float64()
			if err != nil {
				return err
			}
			if key == "lat" {
				lat = &v
			} else {
				lng = &v
			}
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if (lat == nil) != (lng == nil) {
		fail(w, r, badRequest("lat and lng must be given together"))
		return
	}

	var loc *geo.Coordinate
	if lat != nil {
		loc = &geo.Coordinate{Latitude: *lat, Longitude: *lng}
		if !loc.Valid() {
			fail(w, r, badRequest("location out of range"))
			return
		}
	}

	sess, err := h.sessions.Start(r.Context(), loc)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("id", func(e *jx.Encoder) { e.Str(sess.ID()) })
		if l := sess.Location(); l != nil {
			e.Field("lat", func(e *jx.Encoder) { e.Float64(l.Latitude) })
			e.Field("lng", func(e *jx.Encoder) { e.Float64(l.Longitude) })
		}
		e.ObjEnd()
	})
}

// EndSession serves DELETE /api/session/{sessionId}.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	if _, err := h.sessions.Get(id); err != nil {
		fail(w, r, err)
		return
	}
	h.sessions.End(id)
	w.WriteHeader(http.StatusNoContent)
}

// VendorOptions serves GET /api/session/{sessionId}/product/{productId}/vendors.
func (h *Handler) VendorOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.sessions.VendorOptions(r.Context(), r.PathValue("sessionId"), r.PathValue("productId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range options {
			o := &options[i]
			e.ObjStart()
			encodeVendorFields(e, &o.Vendor)
			e.FieldStart("units")
			e.ArrStart()
			for _, u := range o.Units {
				e.Str(u)
			}
			e.ArrEnd()
			if o.HasPrice {
				e.Field("price", func(e *jx.Encoder) { e.Str(cart.Money(o.Price)) })
			}
			if o.DistanceKm != nil {
				e.Field("distanceKm", func(e *jx.Encoder) { e.Float64(*o.DistanceKm) })
			}
			e.Field("nearest", func(e *jx.Encoder) { e.Bool(o.Nearest) })
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// GetCart serves GET /api/session/{sessionId}/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.Cart(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeCartFields(e, view)
		e.ObjEnd()
	})
}

// AddToCart serves POST /api/session/{sessionId}/cart with body
// {"productId","vendorId","unit","quantity"}. Quantity may be a number or a
// decimal string.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req session.AddRequest
	err := readBody(r, false, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			req.ProductID, err = d.Str()
		case "vendorId":
			req.VendorID, err = d.Str()
		case "unit":
			req.Unit, err = d.Str()
		case "quantity":
			req.Quantity, err = catalogjson.DecodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if req.ProductID == "" || req.VendorID == "" || req.Unit == "" {
		fail(w, r, badRequest("productId, vendorId and unit are required"))
		return
	}

	res, err := h.sessions.AddToCart(r.Context(), r.PathValue("sessionId"), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeCartFields(e, res.Cart)
		e.Field("vendorStock", func(e *jx.Encoder) { e.Num(jx.Num(res.Stock.String())) })
		e.ObjEnd()
	})
}

// RemoveLine serves DELETE /api/session/{sessionId}/cart/{index}.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		fail(w, r, badRequest("invalid cart line index %q", raw))
		return
	}
	view, err := h.sessions.RemoveLine(r.Context(), r.PathValue("sessionId"), index)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeCartFields(e, view)
		e.ObjEnd()
	})
}

func encodeCartFields(e *jx.Encoder, view session.CartView) {
	e.FieldStart("lines")
	e.ArrStart()
	for i, l := range view.Lines {
		e.ObjStart()
		e.Field("index", func(e *jx.Encoder) { e.Int(i) })
		encodeLineFields(e, l.ProductID, l.VendorID, l.Unit, l.Quantity.String(), l.UnitPrice, l.Subtotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.Field("itemCount", func(e *jx.Encoder) { e.Num(jx.Num(view.Summary.ItemCount.String())) })
	e.Field("total", func(e *jx.Encoder) { e.Str(cart.Money(view.Summary.TotalAmount)) })
}
