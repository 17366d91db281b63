// Package catalog holds the products and vendors a shopper can buy from.
package catalog

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-kart/internal/domain/geo"
)

// PrimaryUnit is the unit used to compare vendor prices across products.
const PrimaryUnit = "pcs"

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item offered by one or more vendors.
type Product struct {
	ID          string
	Name        string
	Description string
	Image       string
	Vendors     []Vendor
}

// Vendor sells a product at per-unit prices from a finite stock.
type Vendor struct {
	ID   string
	Name string
	// UnitPrices maps a unit symbol such as "pcs" or "kg" to its price.
	UnitPrices map[string]decimal.Decimal
	// Location is nil when the vendor has no known position.
	Location *geo.Coordinate
	Stock    decimal.Decimal
}

// Vendor returns a pointer to the vendor with the given ID, or nil.
func (p *Product) Vendor(id string) *Vendor {
	for i := range p.Vendors {
		if p.Vendors[i].ID == id {
			return &p.Vendors[i]
		}
	}
	return nil
}

// Purchasable reports whether the product has at least one vendor.
func (p *Product) Purchasable() bool {
	return len(p.Vendors) > 0
}

// Units returns the vendor's unit symbols with PrimaryUnit first and the rest
// in lexical order.
func (v *Vendor) Units() []string {
	units := make([]string, 0, len(v.UnitPrices))
	if _, ok := v.UnitPrices[PrimaryUnit]; ok {
		units = append(units, PrimaryUnit)
	}
	rest := make([]string, 0, len(v.UnitPrices))
	for u := range v.UnitPrices {
		if u != PrimaryUnit {
			rest = append(rest, u)
		}
	}
	slices.Sort(rest)
	return append(units, rest...)
}

// Repository is the catalog source. Implementations return fresh values on
// every call; callers may mutate what they receive.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}

// Clone deep-copies products so stock changes on the copy never reach the
// source slice.
func Clone(products []Product) []Product {
	out := make([]Product, len(products))
	for i, p := range products {
		out[i] = p
		out[i].Vendors = make([]Vendor, len(p.Vendors))
		for j, v := range p.Vendors {
			cv := v
			if v.UnitPrices != nil {
				cv.UnitPrices = make(map[string]decimal.Decimal, len(v.UnitPrices))
				for u, price := range v.UnitPrices {
					cv.UnitPrices[u] = price
				}
			}
			if v.Location != nil {
				loc := *v.Location
				cv.Location = &loc
			}
			out[i].Vendors[j] = cv
		}
	}
	return out
}
