package session

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/vendor-kart/internal/domain/cart"
	"github.com/xenking/vendor-kart/internal/domain/catalog"
	"github.com/xenking/vendor-kart/internal/domain/geo"
)

const instrumentationName = "github.com/xenking/vendor-kart/internal/domain/session"

// AddRequest is a shopper's confirmed add-to-cart choice.
type AddRequest struct {
	ProductID string
	VendorID  string
	Unit      string
	Quantity  decimal.Decimal
}

// AddResult is the cart after a successful addition and the vendor's
// remaining session stock.
type AddResult struct {
	Cart  CartView
	Stock decimal.Decimal
}

// VendorOption describes one vendor of a product as shown to the shopper.
type VendorOption struct {
	Vendor catalog.Vendor
	Units  []string
	// Price is the PrimaryUnit price; HasPrice is false when the vendor does
	// not sell by that unit.
	Price    decimal.Decimal
	HasPrice bool
	// DistanceKm is nil when either side has no location.
	DistanceKm *float64
	Nearest    bool
}

// Service runs shopper sessions against a catalog source.
type Service struct {
	catalog catalog.Repository
	locator geo.Locator
	store   *Store
	now     func() time.Time

	tracer   trace.Tracer
	started  metric.Int64Counter
	adds     metric.Int64Counter
	removals metric.Int64Counter
}

// NewService creates a session Service. locator supplies a fallback shopper
// position when Start is called without one and may be nil.
func NewService(
	repo catalog.Repository,
	store *Store,
	locator geo.Locator,
	mp metric.MeterProvider,
	tp trace.TracerProvider,
) (*Service, error) {
	if locator == nil {
		locator = geo.StaticLocator{}
	}
	meter := mp.Meter(instrumentationName)

	started, err := meter.Int64Counter("kart.session.started",
		metric.WithDescription("Sessions started"))
	if err != nil {
		return nil, errors.Wrap(err, "sessions counter")
	}
	adds, err := meter.Int64Counter("kart.cart.add",
		metric.WithDescription("Add-to-cart attempts by result"))
	if err != nil {
		return nil, errors.Wrap(err, "adds counter")
	}
	removals, err := meter.Int64Counter("kart.cart.remove",
		metric.WithDescription("Cart line removals"))
	if err != nil {
		return nil, errors.Wrap(err, "removals counter")
	}

	return &Service{
		catalog:  repo,
		locator:  locator,
		store:    store,
		now:      time.Now,
		tracer:   tp.Tracer(instrumentationName),
		started:  started,
		adds:     adds,
		removals: removals,
	}, nil
}

// Start snapshots the catalog into a new session. When location is nil the
// locator is asked; a locator failure only disables distance information.
func (s *Service) Start(ctx context.Context, location *geo.Coordinate) (_ *Session, rerr error) {
	ctx, span := s.tracer.Start(ctx, "session.Start")
	defer endSpan(span, &rerr)

	lg := zctx.From(ctx)
	if location == nil {
		loc, err := s.locator.Locate(ctx)
		if err != nil {
			lg.Warn("Shopper location unavailable", zap.Error(err))
		} else {
			location = loc
		}
	}
	if location != nil && !location.Valid() {
		lg.Warn("Ignoring out of range shopper location",
			zap.Float64("lat", location.Latitude),
			zap.Float64("lng", location.Longitude),
		)
		location = nil
	}

	products, err := s.catalog.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}

	sess := newSession(uuid.New().String(), location, catalog.Clone(products), s.now())
	s.store.put(sess)
	s.started.Add(ctx, 1, metric.WithAttributes(attribute.Bool("located", location != nil)))
	span.SetAttributes(attribute.String("session.id", sess.id), attribute.Int("catalog.size", len(products)))

	lg.Debug("Session started",
		zap.String("session_id", sess.id),
		zap.Int("products", len(products)),
		zap.Bool("located", location != nil),
	)
	return sess, nil
}

// Get returns a live session.
func (s *Service) Get(id string) (*Session, error) {
	return s.store.Get(id)
}

// Products lists the session's catalog filtered by query and sorted by order.
func (s *Service) Products(ctx context.Context, id, query string, order catalog.SortOrder) ([]catalog.Product, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return catalog.Browse(sess.Products(), query, order), nil
}

// VendorOptions lists a product's vendors with prices, stock and, when the
// shopper position is known, distances and the nearest vendor.
func (s *Service) VendorOptions(ctx context.Context, id, productID string) ([]VendorOption, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	p, err := sess.Product(productID)
	if err != nil {
		return nil, err
	}

	options := make([]VendorOption, len(p.Vendors))
	candidates := make([]geo.Candidate, len(p.Vendors))
	origin := sess.Location()
	for i, v := range p.Vendors {
		price, ok := v.UnitPrices[catalog.PrimaryUnit]
		options[i] = VendorOption{
			Vendor:   v,
			Units:    v.Units(),
			Price:    price,
			HasPrice: ok,
		}
		candidates[i] = geo.Candidate{ID: v.ID, Location: v.Location}
		if origin != nil && v.Location != nil {
			dist := geo.DistanceKm(*origin, *v.Location)
			options[i].DistanceKm = &dist
		}
	}

	if origin != nil {
		if nearest, _, ok := geo.Nearest(*origin, candidates); ok {
			for i := range options {
				if options[i].Vendor.ID == nearest {
					options[i].Nearest = true
					break
				}
			}
		}
	}
	return options, nil
}

// AddToCart applies an add-to-cart request to the session.
func (s *Service) AddToCart(ctx context.Context, id string, req AddRequest) (_ AddResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "session.AddToCart", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("product.id", req.ProductID),
		attribute.String("vendor.id", req.VendorID),
		attribute.String("unit", req.Unit),
	))
	defer endSpan(span, &rerr)

	sess, err := s.store.Get(id)
	if err != nil {
		return AddResult{}, err
	}

	view, stock, err := sess.AddToCart(req.ProductID, req.VendorID, req.Unit, req.Quantity, s.now())
	s.adds.Add(ctx, 1, metric.WithAttributes(attribute.String("result", addResult(err))))
	if err != nil {
		zctx.From(ctx).Debug("Add to cart rejected",
			zap.String("session_id", id),
			zap.String("product_id", req.ProductID),
			zap.String("vendor_id", req.VendorID),
			zap.Error(err),
		)
		return AddResult{}, err
	}
	return AddResult{Cart: view, Stock: stock}, nil
}

// RemoveLine removes the cart line at index.
func (s *Service) RemoveLine(ctx context.Context, id string, index int) (CartView, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return CartView{}, err
	}
	view, err := sess.RemoveLine(index, s.now())
	if err != nil {
		return CartView{}, err
	}
	s.removals.Add(ctx, 1)
	return view, nil
}

// Cart returns the session's cart.
func (s *Service) Cart(_ context.Context, id string) (CartView, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return CartView{}, err
	}
	return sess.Cart(s.now())
}

// Close hands the final cart to fn and ends the session if fn succeeds.
// Cart changes wait until fn returns.
func (s *Service) Close(ctx context.Context, id string, fn func(ctx context.Context, view CartView) error) error {
	sess, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if err := sess.close(func(view CartView) error { return fn(ctx, view) }); err != nil {
		return err
	}
	s.store.Delete(id)
	return nil
}

// End discards a session and its cart.
func (s *Service) End(id string) {
	s.store.Delete(id)
}

func addResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, cart.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, cart.ErrUnknownUnit):
		return "unknown_unit"
	case errors.Is(err, cart.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, cart.ErrVendorNotFound):
		return "vendor_not_found"
	case errors.Is(err, catalog.ErrNotFound):
		return "product_not_found"
	case errors.Is(err, ErrNotFound):
		return "session_not_found"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}
