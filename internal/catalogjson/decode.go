// Package catalogjson reads and writes the catalog JSON document shared by
// the json-server catalog source, seed files and the vendors.prices column.
//
// Input is normalized while decoding: a vendor's single "price" becomes a
// price for catalog.PrimaryUnit, a missing vendor id is derived from the
// product id and vendor position, a missing stock takes Options.DefaultStock,
// and a location is kept only when both coordinates are present.
package catalogjson

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-kart/internal/domain/catalog"
	"github.com/xenking/vendor-kart/internal/domain/geo"
)

// Options control normalization.
type Options struct {
	// DefaultStock is used for vendors that do not report stock.
	DefaultStock decimal.Decimal
}

// VendorID returns the identifier given to the vendor at index of a product
// when the source has none.
func VendorID(productID string, index int) string {
	return productID + "-v" + strconv.Itoa(index)
}

// DecodeCatalog reads either a bare product array or a document with a
// top-level "products" array.
func DecodeCatalog(d *jx.Decoder, opts Options) ([]catalog.Product, error) {
	if d.Next() != jx.Object {
		return DecodeProducts(d, opts)
	}
	var (
		products []catalog.Product
		found    bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "products" {
			return d.Skip()
		}
		found = true
		var err error
		products, err = DecodeProducts(d, opts)
		return err
	}); err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New(`no "products" array`)
	}
	return products, nil
}

// DecodeProducts reads a JSON array of products.
func DecodeProducts(d *jx.Decoder, opts Options) ([]catalog.Product, error) {
	products := make([]catalog.Product, 0)
	i := 0
	if err := d.Arr(func(d *jx.Decoder) error {
		p, err := DecodeProduct(d, opts)
		if err != nil {
			return errors.Wrapf(err, "product %d", i)
		}
		products = append(products, p)
		i++
		return nil
	}); err != nil {
		return nil, err
	}
	return products, nil
}

// DecodeProduct reads a single product object.
func DecodeProduct(d *jx.Decoder, opts Options) (catalog.Product, error) {
	var (
		p       catalog.Product
		vendors []rawVendor
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = decodeID(d)
		case "name":
			p.Name, err = decodeOptionalStr(d)
		case "description":
			p.Description, err = decodeOptionalStr(d)
		case "image":
			p.Image, err = decodeImage(d)
		case "vendors":
			err = d.Arr(func(d *jx.Decoder) error {
				v, err := decodeVendor(d)
				if err != nil {
					return errors.Wrapf(err, "vendor %d", len(vendors))
				}
				vendors = append(vendors, v)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "%q", key)
		}
		return nil
	}); err != nil {
		return catalog.Product{}, err
	}

	if p.ID == "" {
		return catalog.Product{}, errors.New("missing id")
	}
	p.Vendors = make([]catalog.Vendor, len(vendors))
	for i, rv := range vendors {
		v, err := rv.normalize(p.ID, i, opts)
		if err != nil {
			return catalog.Product{}, errors.Wrapf(err, "vendor %d", i)
		}
		p.Vendors[i] = v
	}
	return p, nil
}

type rawVendor struct {
	id       string
	name     string
	prices   map[string]decimal.Decimal
	price    *decimal.Decimal
	stock    *decimal.Decimal
	lat, lng *float64
}

func (rv rawVendor) normalize(productID string, index int, opts Options) (catalog.Vendor, error) {
	v := catalog.Vendor{
		ID:         rv.id,
		Name:       rv.name,
		UnitPrices: rv.prices,
		Stock:      opts.DefaultStock,
	}
	if v.ID == "" {
		v.ID = VendorID(productID, index)
	}
	if v.UnitPrices == nil {
		v.UnitPrices = make(map[string]decimal.Decimal, 1)
	}
	if rv.price != nil {
		if _, ok := v.UnitPrices[catalog.PrimaryUnit]; !ok {
			v.UnitPrices[catalog.PrimaryUnit] = *rv.price
		}
	}
	for unit, price := range v.UnitPrices {
		if price.IsNegative() {
			return catalog.Vendor{}, errors.Errorf("negative price for unit %q", unit)
		}
	}
	if rv.stock != nil {
		v.Stock = *rv.stock
	}
	if v.Stock.IsNegative() {
		return catalog.Vendor{}, errors.Errorf("negative stock %s", v.Stock)
	}
	if rv.lat != nil && rv.lng != nil {
		loc := geo.Coordinate{Latitude: *rv.lat, Longitude: *rv.lng}
		if loc.Valid() {
			v.Location = &loc
		}
	}
	return v, nil
}

func decodeVendor(d *jx.Decoder) (rawVendor, error) {
	var v rawVendor
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			v.id, err = decodeID(d)
		case "name":
			v.name, err = decodeOptionalStr(d)
		case "prices":
			v.prices, err = decodePriceMap(d)
		case "price":
			v.price, err = decodeOptionalDecimal(d)
		case "stock":
			v.stock, err = decodeOptionalDecimal(d)
		case "lat", "latitude":
			v.lat, err = decodeOptionalFloat(d)
		case "lng", "lon", "longitude":
			v.lng, err = decodeOptionalFloat(d)
		case "location":
			err = decodeLocation(d, &v)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "%q", key)
		}
		return nil
	})
	return v, err
}

func decodeLocation(d *jx.Decoder, v *rawVendor) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "lat", "latitude":
			v.lat, err = decodeOptionalFloat(d)
		case "lng", "lon", "longitude":
			v.lng, err = decodeOptionalFloat(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

// DecodePrices reads a {"unit": price} object.
func DecodePrices(data []byte) (map[string]decimal.Decimal, error) {
	prices, err := decodePriceMap(jx.DecodeBytes(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode prices")
	}
	if prices == nil {
		prices = make(map[string]decimal.Decimal)
	}
	return prices, nil
}

func decodePriceMap(d *jx.Decoder) (map[string]decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	prices := make(map[string]decimal.Decimal)
	err := d.Obj(func(d *jx.Decoder, unit string) error {
		price, err := DecodeDecimal(d)
		if err != nil {
			return errors.Wrapf(err, "unit %q", unit)
		}
		unit = strings.TrimSpace(unit)
		if unit == "" {
			return errors.New("empty unit")
		}
		prices[unit] = price
		return nil
	})
	return prices, err
}

// Limits on decoded decimals. Arithmetic on a decimal with a huge exponent
// allocates one digit per unit of exponent.
const (
	maxNumberLen = 64
	maxExponent  = 18
)

// errNumberRange is returned for numbers outside the decimal limits.
var errNumberRange = errors.New("number out of range")

// DecodeDecimal reads a JSON number or numeric string. Numbers longer than
// 64 characters or with an exponent beyond ±18 are rejected.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return parseDecimal(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return parseDecimal(strings.TrimSpace(s))
	default:
		return decimal.Decimal{}, errors.Errorf("expected number, got %s", d.Next())
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if len(s) > maxNumberLen {
		return decimal.Decimal{}, errNumberRange
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if exp := v.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Decimal{}, errNumberRange
	}
	return v, nil
}

func decodeOptionalDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := DecodeDecimal(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeOptionalFloat(d *jx.Decoder) (*float64, error) {
	if d.Next() != jx.Number {
		return nil, d.Skip()
	}
	f, err := d.Float64()
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func decodeOptionalStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeID accepts string and numeric identifiers.
func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		s, err := d.Str()
		return strings.TrimSpace(s), err
	}
}

// decodeImage accepts a URL string or an object of renditions, preferring
// the thumbnail.
func decodeImage(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Object:
		var image, fallback string
		err := d.Obj(func(d *jx.Decoder, key string) error {
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			if key == "thumbnail" {
				image = s
			} else if fallback == "" {
				fallback = s
			}
			return nil
		})
		if image == "" {
			image = fallback
		}
		return image, err
	default:
		return "", d.Skip()
	}
}
