package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-kart/internal/catalogjson"
	"github.com/xenking/vendor-kart/internal/domain/catalog"
	"github.com/xenking/vendor-kart/internal/domain/geo"
)

const (
	catalogSelect = `SELECT p.id, p.name, p.description, p.image,
		v.id, v.name, v.prices, v.stock, v.lat, v.lng
		FROM products p
		LEFT JOIN vendors v ON v.product_id = p.id`

	listCatalogSQL = catalogSelect + ` ORDER BY p.id, v.position, v.id`

	getCatalogProductSQL = catalogSelect + ` WHERE p.id = $1 ORDER BY v.position, v.id`

	upsertProductSQL = `INSERT INTO products (id, name, description, image)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			image = EXCLUDED.image`

	deleteStaleVendorsSQL = `DELETE FROM vendors WHERE product_id = $1 AND NOT (id = ANY($2))`

	upsertVendorSQL = `INSERT INTO vendors (product_id, id, position, name, prices, stock, lat, lng)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (product_id, id) DO UPDATE SET
			position = EXCLUDED.position,
			name = EXCLUDED.name,
			prices = EXCLUDED.prices,
			stock = EXCLUDED.stock,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository over the products and
// vendors tables.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// List returns every product with its vendors, ordered by product ID.
func (r *CatalogRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listCatalogSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list catalog")
	}
	collected, err := pgx.CollectRows(rows, scanCatalogRow)
	if err != nil {
		return nil, errors.Wrap(err, "list catalog")
	}
	return groupCatalogRows(collected)
}

// GetByID returns one product with its vendors.
func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getCatalogProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	collected, err := pgx.CollectRows(rows, scanCatalogRow)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	products, err := groupCatalogRows(collected)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, catalog.ErrNotFound
	}
	return &products[0], nil
}

// Upsert writes products and replaces their vendor lists in one transaction.
func (r *CatalogRepository) Upsert(ctx context.Context, products []catalog.Product) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		for i := range products {
			if err := upsertProduct(ctx, tx, &products[i]); err != nil {
				return errors.Wrapf(err, "upsert product %q", products[i].ID)
			}
		}
		return nil
	})
}

func upsertProduct(ctx context.Context, tx pgx.Tx, p *catalog.Product) error {
	if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Description, p.Image); err != nil {
		return err
	}

	ids := make([]string, len(p.Vendors))
	batch := &pgx.Batch{}
	for i := range p.Vendors {
		v := &p.Vendors[i]
		ids[i] = v.ID
		var lat, lng *float64
		if v.Location != nil {
			lat, lng = &v.Location.Latitude, &v.Location.Longitude
		}
		batch.Queue(upsertVendorSQL,
			p.ID, v.ID, i, v.Name, catalogjson.MarshalPrices(v.UnitPrices), v.Stock, lat, lng,
		)
	}
	if _, err := tx.Exec(ctx, deleteStaleVendorsSQL, p.ID, ids); err != nil {
		return errors.Wrap(err, "delete stale vendors")
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert vendors")
	}
	return nil
}

type catalogRow struct {
	product    catalog.Product
	vendorID   *string
	vendorName *string
	prices     []byte
	stock      *decimal.Decimal
	lat, lng   *float64
}

func scanCatalogRow(row pgx.CollectableRow) (catalogRow, error) {
	var r catalogRow
	err := row.Scan(
		&r.product.ID, &r.product.Name, &r.product.Description, &r.product.Image,
		&r.vendorID, &r.vendorName, &r.prices, &r.stock, &r.lat, &r.lng,
	)
	return r, err
}

// groupCatalogRows folds joined rows, which arrive grouped by product, into
// products.
func groupCatalogRows(rows []catalogRow) ([]catalog.Product, error) {
	products := make([]catalog.Product, 0)
	for _, r := range rows {
		if n := len(products); n == 0 || products[n-1].ID != r.product.ID {
			p := r.product
			p.Vendors = nil
			products = append(products, p)
		}
		if r.vendorID == nil {
			continue
		}

		prices, err := catalogjson.DecodePrices(r.prices)
		if err != nil {
			return nil, errors.Wrapf(err, "vendor %q of product %q", *r.vendorID, r.product.ID)
		}
		v := catalog.Vendor{
			ID:         *r.vendorID,
			UnitPrices: prices,
		}
		if r.vendorName != nil {
			v.Name = *r.vendorName
		}
		if r.stock != nil {
			v.Stock = *r.stock
		}
		if r.lat != nil && r.lng != nil {
			v.Location = &geo.Coordinate{Latitude: *r.lat, Longitude: *r.lng}
		}

		last := &products[len(products)-1]
		last.Vendors = append(last.Vendors, v)
	}
	return products, nil
}
