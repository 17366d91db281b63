package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/vendor-kart/internal/domain/geo"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func productWithPrices(id string, prices ...string) Product {
	p := Product{ID: id, Name: "Product " + id}
	for i, price := range prices {
		p.Vendors = append(p.Vendors, Vendor{
			ID:         id + "-v" + string(rune('0'+i)),
			UnitPrices: map[string]decimal.Decimal{PrimaryUnit: d(price)},
			Stock:      decimal.NewFromInt(10),
		})
	}
	return p
}

func ids(products []Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestSortByCheapestVendor(t *testing.T) {
	input := []Product{
		productWithPrices("mango", "30", "25"),
		productWithPrices("apple", "10"),
		productWithPrices("kale", "50", "45.5"),
		productWithPrices("orange", "12", "40"),
	}

	asc := SortByCheapestVendor(input, true)
	desc := SortByCheapestVendor(input, false)

	assert.Equal(t, []string{"apple", "orange", "mango", "kale"}, ids(asc))
	assert.Equal(t, []string{"kale", "mango", "orange", "apple"}, ids(desc))
	assert.Equal(t, []string{"mango", "apple", "kale", "orange"}, ids(input), "input must not be reordered")
}

func TestSortByCheapestVendor_ReversedWhenKeysDistinct(t *testing.T) {
	input := []Product{
		productWithPrices("a", "3"),
		productWithPrices("b", "1"),
		productWithPrices("c", "2"),
		productWithPrices("d", "5"),
	}

	asc := ids(SortByCheapestVendor(input, true))
	desc := ids(SortByCheapestVendor(input, false))

	reversed := make([]string, len(desc))
	for i, id := range desc {
		reversed[len(desc)-1-i] = id
	}
	assert.Equal(t, asc, reversed)
}

func TestSortByCheapestVendor_UnpricedSortLast(t *testing.T) {
	kgOnly := Product{ID: "kg-only", Vendors: []Vendor{{
		ID:         "v1",
		UnitPrices: map[string]decimal.Decimal{"kg": d("1")},
	}}}
	input := []Product{
		{ID: "no-vendors"},
		productWithPrices("b", "9"),
		kgOnly,
		productWithPrices("a", "4"),
	}

	assert.Equal(t, []string{"a", "b", "no-vendors", "kg-only"}, ids(SortByCheapestVendor(input, true)))
	assert.Equal(t, []string{"b", "a", "no-vendors", "kg-only"}, ids(SortByCheapestVendor(input, false)))
}

func TestSortByCheapestVendor_StableTies(t *testing.T) {
	input := []Product{
		productWithPrices("first", "5"),
		productWithPrices("second", "5"),
		productWithPrices("third", "5"),
	}
	assert.Equal(t, []string{"first", "second", "third"}, ids(SortByCheapestVendor(input, true)))
	assert.Equal(t, []string{"first", "second", "third"}, ids(SortByCheapestVendor(input, false)))
}

func TestSearch(t *testing.T) {
	products := []Product{
		{ID: "1", Name: "Sukuma Wiki", Description: "Fresh collard greens"},
		{ID: "2", Name: "Tomatoes", Description: "Ripe and red"},
		{ID: "3", Name: "Green Apples"},
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "blank returns all", query: "  ", want: []string{"1", "2", "3"}},
		{name: "matches name case-insensitively", query: "TOMATO", want: []string{"2"}},
		{name: "matches description", query: "collard", want: []string{"1"}},
		{name: "matches both fields", query: "green", want: []string{"1", "3"}},
		{name: "no match", query: "durian", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Search(products, tt.query)))
		})
	}
}

func TestBrowse(t *testing.T) {
	products := []Product{
		productWithPrices("x1", "8"),
		productWithPrices("y", "1"),
		productWithPrices("x2", "3"),
	}
	products[0].Name = "Box large"
	products[2].Name = "Box small"

	assert.Equal(t, []string{"x2", "x1"}, ids(Browse(products, "box", SortPriceAsc)))
	assert.Equal(t, []string{"x1", "x2"}, ids(Browse(products, "box", SortNone)))
}

func TestParseSortOrder(t *testing.T) {
	o, ok := ParseSortOrder(" Price_Desc ")
	require.True(t, ok)
	assert.Equal(t, SortPriceDesc, o)

	_, ok = ParseSortOrder("alphabetical")
	assert.False(t, ok)
}

func TestClone(t *testing.T) {
	src := []Product{{
		ID: "p1",
		Vendors: []Vendor{{
			ID:         "v1",
			UnitPrices: map[string]decimal.Decimal{"pcs": d("10")},
			Location:   &geo.Coordinate{Latitude: 1, Longitude: 2},
			Stock:      decimal.NewFromInt(3),
		}},
	}}

	cp := Clone(src)
	cp[0].Vendors[0].Stock = decimal.Zero
	cp[0].Vendors[0].UnitPrices["pcs"] = d("99")
	cp[0].Vendors[0].Location.Latitude = 50

	assert.True(t, decimal.NewFromInt(3).Equal(src[0].Vendors[0].Stock))
	assert.True(t, d("10").Equal(src[0].Vendors[0].UnitPrices["pcs"]))
	assert.InDelta(t, 1.0, src[0].Vendors[0].Location.Latitude, 0)
}

func TestVendorUnits(t *testing.T) {
	v := Vendor{UnitPrices: map[string]decimal.Decimal{"kg": d("1"), "bunch": d("2"), "pcs": d("3")}}
	assert.Equal(t, []string{"pcs", "bunch", "kg"}, v.Units())
}

func TestProductVendor(t *testing.T) {
	p := productWithPrices("p", "1", "2")
	require.NotNil(t, p.Vendor("p-v1"))
	assert.Nil(t, p.Vendor("missing"))

	p.Vendor("p-v0").Stock = decimal.Zero
	assert.True(t, p.Vendors[0].Stock.IsZero(), "Vendor must return a pointer into the slice")
}
