package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/vendor-kart/internal/domain/auth"
	"github.com/xenking/vendor-kart/internal/domain/catalog"
	"github.com/xenking/vendor-kart/internal/domain/coupon"
	"github.com/xenking/vendor-kart/internal/domain/geo"
	"github.com/xenking/vendor-kart/internal/domain/order"
	"github.com/xenking/vendor-kart/internal/domain/session"
)

// --- Mock implementations ---

type staticCatalog []catalog.Product

func (c staticCatalog) List(context.Context) ([]catalog.Product, error) {
	return catalog.Clone(c), nil
}

func (c staticCatalog) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	for _, p := range catalog.Clone(c) {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, catalog.ErrNotFound
}

type mockCouponValidator struct {
	discount decimal.Decimal
	err      error
}

func (m *mockCouponValidator) Validate(context.Context, string, []coupon.Item) (*coupon.Discount, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &coupon.Discount{Amount: m.discount}, nil
}

type mockOrderRepo struct {
	orders []*order.Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.orders = append(m.orders, o)
	return nil
}

type mockKeys map[string]*auth.APIKeyInfo

func (m mockKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m[hash]
	if !ok {
		return nil, errors.New("no rows")
	}
	return info, nil
}

// --- Helpers ---

const testKey = "secret-key"

var testPepper = []byte("pepper")

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testCatalog() staticCatalog {
	return staticCatalog{
		{
			ID:    "tomatoes",
			Name:  "Tomatoes",
			Image: "img/tomatoes.jpg",
			Vendors: []catalog.Vendor{
				{
					ID:         "mama-mboga",
					Name:       "Mama Mboga",
					UnitPrices: map[string]decimal.Decimal{"pcs": d("15"), "kg": d("120.50")},
					Stock:      d("10"),
					Location:   &geo.Coordinate{Latitude: -1.2921, Longitude: 36.8219},
				},
				{
					ID:         "wakulima",
					Name:       "Wakulima Market",
					UnitPrices: map[string]decimal.Decimal{"pcs": d("12")},
					Stock:      d("100"),
					Location:   &geo.Coordinate{Latitude: -1.2833, Longitude: 36.8333},
				},
			},
		},
		{
			ID:   "onions",
			Name: "Red Onions",
			Vendors: []catalog.Vendor{
				{
					ID:         "onions-v0",
					Name:       "Gikomba",
					UnitPrices: map[string]decimal.Decimal{"pcs": d("5")},
					Stock:      d("3"),
				},
			},
		},
	}
}

type testEnv struct {
	server  *httptest.Server
	coupons *mockCouponValidator
	orders  *mockOrderRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	products := testCatalog()
	sessions, err := session.NewService(products, session.NewStore(time.Hour), nil,
		metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
	require.NoError(t, err)

	env := &testEnv{
		coupons: &mockCouponValidator{},
		orders:  &mockOrderRepo{},
	}
	keys := mockKeys{
		auth.HashKey(testPepper, testKey): {
			ID:      "key-1",
			Name:    "storefront",
			KeyHash: auth.HashKey(testPepper, testKey),
			Scopes:  []string{auth.ScopeCheckout},
		},
	}

	h := NewHandler(
		HandlerConfig{ImageBaseURL: "https://cdn.example.com/"},
		products,
		sessions,
		order.NewService(sessions, env.coupons, env.orders),
		auth.NewAuthenticator(keys, testPepper),
	)
	mux := http.NewServeMux()
	h.Register(mux)

	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)
	return env
}

// do sends a request and decodes the JSON response into maps, slices,
// strings and bools. Numbers are kept as their literal text.
func (env *testEnv) do(t *testing.T, method, path, body string, header ...string) (int, any) {
	t.Helper()

	req, err := http.NewRequest(method, env.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	v, err := decodeAny(jx.Decode(resp.Body, 1024))
	require.NoError(t, err)
	return resp.StatusCode, v
}

func decodeAny(d *jx.Decoder) (any, error) {
	switch d.Next() {
	case jx.Object:
		m := map[string]any{}
		err := d.Obj(func(d *jx.Decoder, key string) error {
			v, err := decodeAny(d)
			m[key] = v
			return err
		})
		return m, err
	case jx.Array:
		var a []any
		err := d.Arr(func(d *jx.Decoder) error {
			v, err := decodeAny(d)
			a = append(a, v)
			return err
		})
		return a, err
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		return n.String(), err
	case jx.Bool:
		return d.Bool()
	case jx.Null:
		return nil, d.Null()
	default:
		return nil, errors.Errorf("unexpected %s", d.Next())
	}
}

func obj(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "expected object, got %T", v)
	return m
}

func arr(t *testing.T, v any) []any {
	t.Helper()
	a, ok := v.([]any)
	require.True(t, ok, "expected array, got %T", v)
	return a
}

func distance(t *testing.T, v any) float64 {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "expected number, got %T", v)
	f, err := strconv.ParseFloat(s, 64)
	require.NoError(t, err)
	return f
}

func (env *testEnv) startSession(t *testing.T, body string) string {
	t.Helper()
	code, v := env.do(t, http.MethodPost, "/api/session", body)
	require.Equal(t, http.StatusCreated, code)
	id, _ := obj(t, v)["id"].(string)
	require.NotEmpty(t, id)
	return id
}

// --- Tests ---

func TestListProducts(t *testing.T) {
	env := newTestEnv(t)

	t.Run("sorted by cheapest vendor", func(t *testing.T) {
		code, v := env.do(t, http.MethodGet, "/api/product?sort=price_asc", "")
		require.Equal(t, http.StatusOK, code)

		products := arr(t, v)
		require.Len(t, products, 2)
		assert.Equal(t, "onions", obj(t, products[0])["id"])
		assert.Equal(t, "5.00", obj(t, products[0])["cheapestPrice"])
		assert.Equal(t, "tomatoes", obj(t, products[1])["id"])
		assert.Equal(t, "12.00", obj(t, products[1])["cheapestPrice"])
	})

	t.Run("search", func(t *testing.T) {
		code, v := env.do(t, http.MethodGet, "/api/product?q=TOMA", "")
		require.Equal(t, http.StatusOK, code)

		products := arr(t, v)
		require.Len(t, products, 1)
		p := obj(t, products[0])
		assert.Equal(t, "https://cdn.example.com/img/tomatoes.jpg", p["image"])
		assert.Equal(t, true, p["purchasable"])

		vendor := obj(t, arr(t, p["vendors"])[0])
		assert.Equal(t, map[string]any{"pcs": "15.00", "kg": "120.50"}, vendor["prices"])
		assert.Equal(t, "10", vendor["stock"])
	})

	t.Run("unknown sort", func(t *testing.T) {
		code, v := env.do(t, http.MethodGet, "/api/product?sort=random", "")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "400", obj(t, v)["code"])
	})
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)

	code, v := env.do(t, http.MethodGet, "/api/product/onions", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Red Onions", obj(t, v)["name"])

	code, v = env.do(t, http.MethodGet, "/api/product/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, map[string]any{"code": "404", "message": "product not found"}, v)
}

func TestStartSession(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "no body", body: "", wantCode: http.StatusCreated},
		{name: "with location", body: `{"lat":-1.29,"lng":36.82}`, wantCode: http.StatusCreated},
		{name: "only lat", body: `{"lat":-1.29}`, wantCode: http.StatusBadRequest},
		{name: "out of range", body: `{"lat":91,"lng":0}`, wantCode: http.StatusBadRequest},
		{name: "malformed", body: `{"lat":`, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := env.do(t, http.MethodPost, "/api/session", tt.body)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestVendorOptions(t *testing.T) {
	env := newTestEnv(t)
	id := env.startSession(t, `{"lat":-1.2921,"lng":36.8219}`)

	code, v := env.do(t, http.MethodGet, "/api/session/"+id+"/product/tomatoes/vendors", "")
	require.Equal(t, http.StatusOK, code)

	options := arr(t, v)
	require.Len(t, options, 2)

	first := obj(t, options[0])
	assert.Equal(t, "mama-mboga", first["id"])
	assert.Equal(t, []any{"pcs", "kg"}, first["units"])
	assert.Equal(t, "15.00", first["price"])
	assert.InDelta(t, 0, distance(t, first["distanceKm"]), 1e-9)
	assert.Equal(t, true, first["nearest"])

	second := obj(t, options[1])
	assert.Equal(t, false, second["nearest"])
	assert.InDelta(t, 1.60, distance(t, second["distanceKm"]), 0.01)

	t.Run("without location", func(t *testing.T) {
		id := env.startSession(t, "")
		code, v := env.do(t, http.MethodGet, "/api/session/"+id+"/product/onions/vendors", "")
		require.Equal(t, http.StatusOK, code)
		opt := obj(t, arr(t, v)[0])
		assert.NotContains(t, opt, "distanceKm")
		assert.Equal(t, false, opt["nearest"])
	})
}

func TestCartFlow(t *testing.T) {
	env := newTestEnv(t)
	id := env.startSession(t, "")
	cartPath := "/api/session/" + id + "/cart"

	code, v := env.do(t, http.MethodPost, cartPath,
		`{"productId":"tomatoes","vendorId":"mama-mboga","unit":"pcs","quantity":4}`)
	require.Equal(t, http.StatusOK, code)
	body := obj(t, v)
	assert.Equal(t, "60.00", body["total"])
	assert.Equal(t, "4", body["itemCount"])
	assert.Equal(t, "6", body["vendorStock"])

	code, v = env.do(t, http.MethodPost, cartPath,
		`{"productId":"tomatoes","vendorId":"mama-mboga","unit":"kg","quantity":"0.5"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "120.25", obj(t, v)["total"])

	code, v = env.do(t, http.MethodGet, cartPath, "")
	require.Equal(t, http.StatusOK, code)
	lines := arr(t, obj(t, v)["lines"])
	require.Len(t, lines, 2)
	assert.Equal(t, map[string]any{
		"index":     "1",
		"productId": "tomatoes",
		"vendorId":  "mama-mboga",
		"unit":      "kg",
		"quantity":  "0.5",
		"unitPrice": "120.50",
		"subtotal":  "60.25",
	}, lines[1])

	// Session stock reflects the additions; the catalog does not.
	code, v = env.do(t, http.MethodGet, "/api/session/"+id+"/product?q=tomatoes", "")
	require.Equal(t, http.StatusOK, code)
	vendor := obj(t, arr(t, obj(t, arr(t, v)[0])["vendors"])[0])
	assert.Equal(t, "5.5", vendor["stock"])

	code, v = env.do(t, http.MethodGet, "/api/product/tomatoes", "")
	require.Equal(t, http.StatusOK, code)
	vendor = obj(t, arr(t, obj(t, v)["vendors"])[0])
	assert.Equal(t, "10", vendor["stock"])

	code, v = env.do(t, http.MethodDelete, cartPath+"/0", "")
	require.Equal(t, http.StatusOK, code)
	body = obj(t, v)
	assert.Len(t, arr(t, body["lines"]), 1)
	assert.Equal(t, "60.25", body["total"])
	assert.Equal(t, "0.5", body["itemCount"])

	code, _ = env.do(t, http.MethodDelete, cartPath+"/5", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodDelete, cartPath+"/first", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAddToCartErrors(t *testing.T) {
	env := newTestEnv(t)
	id := env.startSession(t, "")

	tests := []struct {
		name        string
		session     string
		body        string
		wantCode    int
		wantMessage string
	}{
		{
			name:        "unknown unit",
			body:        `{"productId":"tomatoes","vendorId":"wakulima","unit":"kg","quantity":1}`,
			wantCode:    http.StatusUnprocessableEntity,
			wantMessage: "unknown unit",
		},
		{
			name:        "zero quantity",
			body:        `{"productId":"tomatoes","vendorId":"wakulima","unit":"pcs","quantity":0}`,
			wantCode:    http.StatusUnprocessableEntity,
			wantMessage: "quantity must be greater than 0",
		},
		{
			name:        "missing quantity",
			body:        `{"productId":"tomatoes","vendorId":"wakulima","unit":"pcs"}`,
			wantCode:    http.StatusUnprocessableEntity,
			wantMessage: "quantity must be greater than 0",
		},
		{
			name:        "unknown vendor",
			body:        `{"productId":"tomatoes","vendorId":"nobody","unit":"pcs","quantity":1}`,
			wantCode:    http.StatusUnprocessableEntity,
			wantMessage: "vendor not found",
		},
		{
			name:        "out of stock",
			body:        `{"productId":"onions","vendorId":"onions-v0","unit":"pcs","quantity":4}`,
			wantCode:    http.StatusUnprocessableEntity,
			wantMessage: "out of stock",
		},
		{
			name:        "unknown product",
			body:        `{"productId":"kale","vendorId":"x","unit":"pcs","quantity":1}`,
			wantCode:    http.StatusNotFound,
			wantMessage: "product not found",
		},
		{
			name:        "unknown session",
			session:     "00000000-0000-0000-0000-000000000000",
			body:        `{"productId":"onions","vendorId":"onions-v0","unit":"pcs","quantity":1}`,
			wantCode:    http.StatusNotFound,
			wantMessage: "session not found",
		},
		{
			name:     "missing fields",
			body:     `{"quantity":1}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed",
			body:     `[1,2]`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "huge quantity exponent",
			body:     `{"productId":"tomatoes","vendorId":"wakulima","unit":"pcs","quantity":1e200000000}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "huge quantity exponent string",
			body:     `{"productId":"tomatoes","vendorId":"wakulima","unit":"pcs","quantity":"1e-200000000"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:        "stock checked before unit",
			body:        `{"productId":"tomatoes","vendorId":"wakulima","unit":"kg","quantity":101}`,
			wantCode:    http.StatusUnprocessableEntity,
			wantMessage: "out of stock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sid := id
			if tt.session != "" {
				sid = tt.session
			}
			code, v := env.do(t, http.MethodPost, "/api/session/"+sid+"/cart", tt.body)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, obj(t, v)["message"])
			}
		})
	}

	// None of the failures touched the cart.
	code, v := env.do(t, http.MethodGet, "/api/session/"+id+"/cart", "")
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, obj(t, v)["lines"])
	assert.Equal(t, "0.00", obj(t, v)["total"])
}

func TestCheckout(t *testing.T) {
	fill := func(t *testing.T, env *testEnv) string {
		id := env.startSession(t, "")
		code, _ := env.do(t, http.MethodPost, "/api/session/"+id+"/cart",
			`{"productId":"tomatoes","vendorId":"wakulima","unit":"pcs","quantity":3}`)
		require.Equal(t, http.StatusOK, code)
		return id
	}

	t.Run("requires api key", func(t *testing.T) {
		env := newTestEnv(t)
		id := fill(t, env)

		code, _ := env.do(t, http.MethodPost, "/api/session/"+id+"/checkout", "")
		assert.Equal(t, http.StatusUnauthorized, code)

		code, v := env.do(t, http.MethodPost, "/api/session/"+id+"/checkout", "", APIKeyHeader, "wrong")
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "unauthorized", obj(t, v)["message"])
		assert.Empty(t, env.orders.orders)
	})

	t.Run("empty cart", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.startSession(t, "")

		code, v := env.do(t, http.MethodPost, "/api/session/"+id+"/checkout", "", APIKeyHeader, testKey)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, "cart is empty", obj(t, v)["message"])
	})

	t.Run("with coupon", func(t *testing.T) {
		env := newTestEnv(t)
		env.coupons.discount = d("3.6")
		id := fill(t, env)

		code, v := env.do(t, http.MethodPost, "/api/session/"+id+"/checkout",
			`{"couponCode":" HAPPYHOURS "}`, APIKeyHeader, testKey)
		require.Equal(t, http.StatusCreated, code)

		body := obj(t, v)
		assert.Equal(t, id, body["sessionId"])
		assert.Equal(t, "36.00", body["subtotal"])
		assert.Equal(t, "3.60", body["discounts"])
		assert.Equal(t, "32.40", body["total"])
		assert.Equal(t, "HAPPYHOURS", body["couponCode"])
		assert.Len(t, arr(t, body["items"]), 1)

		require.Len(t, env.orders.orders, 1)
		assert.Equal(t, body["id"], env.orders.orders[0].ID)

		// The session is gone after checkout.
		code, _ = env.do(t, http.MethodGet, "/api/session/"+id+"/cart", "")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("invalid coupon keeps session", func(t *testing.T) {
		env := newTestEnv(t)
		env.coupons.err = coupon.ErrCouponExpired
		id := fill(t, env)

		code, v := env.do(t, http.MethodPost, "/api/session/"+id+"/checkout",
			`{"couponCode":"OLD"}`, APIKeyHeader, testKey)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, "coupon expired", obj(t, v)["message"])

		code, _ = env.do(t, http.MethodGet, "/api/session/"+id+"/cart", "")
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("null coupon", func(t *testing.T) {
		env := newTestEnv(t)
		env.coupons.err = coupon.ErrInvalidCoupon
		id := fill(t, env)

		code, v := env.do(t, http.MethodPost, "/api/session/"+id+"/checkout",
			`{"couponCode":null}`, APIKeyHeader, testKey)
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, "36.00", obj(t, v)["total"])
		assert.NotContains(t, obj(t, v), "couponCode")
	})
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.startSession(t, "")

	code, _ := env.do(t, http.MethodDelete, "/api/session/"+id, "")
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = env.do(t, http.MethodDelete, "/api/session/"+id, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{err: badRequest("x"), code: http.StatusBadRequest},
		{err: errors.Wrap(auth.ErrUnauthorized, "lookup"), code: http.StatusUnauthorized},
		{err: errors.Wrap(session.ErrNotFound, "get"), code: http.StatusNotFound},
		{err: errors.Wrap(coupon.ErrCouponUsageLimitReached, "validate coupon"), code: http.StatusUnprocessableEntity},
		{err: order.ErrEmptyCart, code: http.StatusUnprocessableEntity},
		{err: errors.New("connection reset"), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			code, msg := errorStatus(tt.err)
			assert.Equal(t, tt.code, code)
			assert.NotContains(t, msg, "connection reset")
		})
	}
}
