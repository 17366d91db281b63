// Package session keeps a shopper's catalog snapshot and cart for the length
// of a visit. Stock deducted by cart additions lives only in the snapshot.
package session

import (
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-kart/internal/domain/cart"
	"github.com/xenking/vendor-kart/internal/domain/catalog"
	"github.com/xenking/vendor-kart/internal/domain/geo"
)

// ErrNotFound is returned for an unknown, expired or closed session.
var ErrNotFound = errors.New("session not found")

type vendorKey struct {
	product int
	vendor  int
}

// Session is one shopper's visit.
//
// Lock order: a vendor lock is always taken before mu. Vendor locks guard the
// Stock field of their vendor; mu guards the cart, closed and lastSeen.
type Session struct {
	id       string
	location *geo.Coordinate

	// products is fixed after creation except for vendor Stock.
	products []catalog.Product
	byID     map[string]int
	vendors  map[vendorKey]*sync.Mutex

	mu       sync.Mutex
	cart     cart.State
	closed   bool
	lastSeen time.Time
}

func newSession(id string, location *geo.Coordinate, products []catalog.Product, now time.Time) *Session {
	s := &Session{
		id:       id,
		location: location,
		products: products,
		byID:     make(map[string]int, len(products)),
		vendors:  make(map[vendorKey]*sync.Mutex),
		lastSeen: now,
	}
	for i, p := range products {
		s.byID[p.ID] = i
		for j := range p.Vendors {
			s.vendors[vendorKey{i, j}] = new(sync.Mutex)
		}
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Location returns the shopper position, or nil when unknown.
func (s *Session) Location() *geo.Coordinate {
	if s.location == nil {
		return nil
	}
	loc := *s.location
	return &loc
}

// CartView is a consistent read of the cart.
type CartView struct {
	Lines   []cart.Line
	Summary cart.Summary
}

func (s *Session) product(id string) (int, error) {
	i, ok := s.byID[id]
	if !ok {
		return 0, errors.Wrapf(catalog.ErrNotFound, "product %s", id)
	}
	return i, nil
}

// Products returns a copy of the snapshot with current stock levels.
func (s *Session) Products() []catalog.Product {
	out := make([]catalog.Product, len(s.products))
	for i := range s.products {
		out[i] = s.productCopy(i)
	}
	return out
}

// Product returns a copy of one product with current stock levels.
func (s *Session) Product(id string) (catalog.Product, error) {
	i, err := s.product(id)
	if err != nil {
		return catalog.Product{}, err
	}
	return s.productCopy(i), nil
}

func (s *Session) productCopy(i int) catalog.Product {
	p := s.products[i]
	vendors := make([]catalog.Vendor, len(p.Vendors))
	for j := range p.Vendors {
		mu := s.vendors[vendorKey{i, j}]
		mu.Lock()
		vendors[j] = p.Vendors[j]
		mu.Unlock()
	}
	p.Vendors = vendors
	return catalog.Clone([]catalog.Product{p})[0]
}

// AddToCart adds quantity of unit from the vendor to the cart and deducts it
// from the vendor's session stock. It returns the cart and the vendor's
// remaining stock.
func (s *Session) AddToCart(productID, vendorID, unit string, quantity decimal.Decimal, now time.Time) (CartView, decimal.Decimal, error) {
	pi, err := s.product(productID)
	if err != nil {
		return CartView{}, decimal.Zero, err
	}
	p := &s.products[pi]

	vi := -1
	for j := range p.Vendors {
		if p.Vendors[j].ID == vendorID {
			vi = j
			break
		}
	}
	if vi >= 0 {
		vmu := s.vendors[vendorKey{pi, vi}]
		vmu.Lock()
		defer vmu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return CartView{}, decimal.Zero, ErrNotFound
	}
	s.lastSeen = now

	next, stock, err := cart.AddToCart(s.cart, p, vendorID, unit, quantity)
	if err != nil {
		return s.viewLocked(), stock, err
	}
	s.cart = next
	return s.viewLocked(), stock, nil
}

// RemoveLine drops the cart line at index. Stock is not restored.
func (s *Session) RemoveLine(index int, now time.Time) (CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return CartView{}, ErrNotFound
	}
	s.lastSeen = now

	next, err := cart.RemoveLine(s.cart, index)
	if err != nil {
		return s.viewLocked(), err
	}
	s.cart = next
	return s.viewLocked(), nil
}

// Cart returns the current cart.
func (s *Session) Cart(now time.Time) (CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return CartView{}, ErrNotFound
	}
	s.lastSeen = now
	return s.viewLocked(), nil
}

// close runs fn with the final cart while holding the cart lock and closes
// the session when fn succeeds.
func (s *Session) close(fn func(CartView) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotFound
	}
	if err := fn(s.viewLocked()); err != nil {
		return err
	}
	s.closed = true
	return nil
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func (s *Session) viewLocked() CartView {
	return CartView{
		Lines:   s.cart.Lines(),
		Summary: cart.Summarize(s.cart),
	}
}
