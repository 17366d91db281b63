package catalog

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// SortOrder selects how SortByCheapestVendor orders products.
type SortOrder string

const (
	SortNone      SortOrder = ""
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
)

// ParseSortOrder validates a sort order coming from a query string.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case SortNone, SortPriceAsc, SortPriceDesc:
		return o, true
	default:
		return SortNone, false
	}
}

// CheapestPrice returns the lowest PrimaryUnit price across the product's
// vendors. ok is false when no vendor offers the unit.
func CheapestPrice(p Product) (price decimal.Decimal, ok bool) {
	for _, v := range p.Vendors {
		vp, has := v.UnitPrices[PrimaryUnit]
		if !has {
			continue
		}
		if !ok || vp.LessThan(price) {
			price = vp
			ok = true
		}
	}
	return price, ok
}

// SortByCheapestVendor returns a new slice ordered by CheapestPrice. Products
// without a price sort last in both directions. Equal keys keep input order.
func SortByCheapestVendor(products []Product, ascending bool) []Product {
	out := slices.Clone(products)
	slices.SortStableFunc(out, func(a, b Product) int {
		pa, okA := CheapestPrice(a)
		pb, okB := CheapestPrice(b)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		if ascending {
			return pa.Cmp(pb)
		}
		return pb.Cmp(pa)
	})
	return out
}

// Search returns products whose name or description contains query,
// ignoring case. A blank query returns products unchanged.
func Search(products []Product, query string) []Product {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return products
	}
	var out []Product
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p)
		}
	}
	return out
}

// Browse applies Search and then the requested sort order.
func Browse(products []Product, query string, order SortOrder) []Product {
	out := Search(products, query)
	switch order {
	case SortPriceAsc:
		return SortByCheapestVendor(out, true)
	case SortPriceDesc:
		return SortByCheapestVendor(out, false)
	default:
		return out
	}
}
