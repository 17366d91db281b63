package catalogjson

import (
	"slices"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-kart/internal/domain/catalog"
)

// EncodePrices writes a {"unit": price} object with units in sorted order.
func EncodePrices(e *jx.Encoder, prices map[string]decimal.Decimal) {
	units := make([]string, 0, len(prices))
	for unit := range prices {
		units = append(units, unit)
	}
	slices.Sort(units)

	e.ObjStart()
	for _, unit := range units {
		e.FieldStart(unit)
		e.Num(jx.Num(prices[unit].String()))
	}
	e.ObjEnd()
}

// MarshalPrices returns prices as a JSON object.
func MarshalPrices(prices map[string]decimal.Decimal) []byte {
	var e jx.Encoder
	EncodePrices(&e, prices)
	return e.Bytes()
}

// EncodeProducts writes products in their normalized form.
func EncodeProducts(e *jx.Encoder, products []catalog.Product) {
	e.ArrStart()
	for i := range products {
		EncodeProduct(e, &products[i])
	}
	e.ArrEnd()
}

// EncodeProduct writes one product in its normalized form.
func EncodeProduct(e *jx.Encoder, p *catalog.Product) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
	e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
	if p.Description != "" {
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
	}
	if p.Image != "" {
		e.Field("image", func(e *jx.Encoder) { e.Str(p.Image) })
	}
	e.FieldStart("vendors")
	e.ArrStart()
	for i := range p.Vendors {
		v := &p.Vendors[i]
		e.ObjStart()
		e.Field("id", func(e *jx.Encoder) { e.Str(v.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(v.Name) })
		e.FieldStart("prices")
		EncodePrices(e, v.UnitPrices)
		e.Field("stock", func(e *jx.Encoder) { e.Num(jx.Num(v.Stock.String())) })
		if v.Location != nil {
			e.Field("lat", func(e *jx.Encoder) { e.Float64(v.Location.Latitude) })
			e.Field("lng", func(e *jx.Encoder) { e.Float64(v.Location.Longitude) })
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
