// Package handler serves the storefront HTTP API.
package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/vendor-kart/internal/domain/auth"
	"github.com/xenking/vendor-kart/internal/domain/cart"
	"github.com/xenking/vendor-kart/internal/domain/catalog"
	"github.com/xenking/vendor-kart/internal/domain/coupon"
	"github.com/xenking/vendor-kart/internal/domain/order"
	"github.com/xenking/vendor-kart/internal/domain/session"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
}

// Checkout places orders for session carts.
type Checkout interface {
	Checkout(ctx context.Context, sessionID, couponCode string) (*order.Order, error)
}

// KeyAuthenticator resolves a raw API key for a scope.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, key, scope string) (*auth.APIKeyInfo, error)
}

// Handler serves the catalog, session, cart and checkout routes.
type Handler struct {
	catalog      catalog.Repository
	sessions     *session.Service
	checkout     Checkout
	keys         KeyAuthenticator
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	products catalog.Repository,
	sessions *session.Service,
	checkout Checkout,
	keys KeyAuthenticator,
) *Handler {
	return &Handler{
		catalog:      products,
		sessions:     sessions,
		checkout:     checkout,
		keys:         keys,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/product", h.ListProducts)
	mux.HandleFunc("GET /api/product/{productId}", h.GetProduct)
	mux.HandleFunc("POST /api/session", h.StartSession)
	mux.HandleFunc("DELETE /api/session/{sessionId}", h.EndSession)
	mux.HandleFunc("GET /api/session/{sessionId}/product", h.SessionProducts)
	mux.HandleFunc("GET /api/session/{sessionId}/product/{productId}/vendors", h.VendorOptions)
	mux.HandleFunc("GET /api/session/{sessionId}/cart", h.GetCart)
	mux.HandleFunc("POST /api/session/{sessionId}/cart", h.AddToCart)
	mux.HandleFunc("DELETE /api/session/{sessionId}/cart/{index}", h.RemoveLine)
	mux.HandleFunc("POST /api/session/{sessionId}/checkout", h.Checkout)
}

// requestError is client input that could not be parsed.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// readBody decodes a JSON object body with fn. An empty body is allowed when
// optional is set.
func readBody(r *http.Request, optional bool, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read body: %s", err)
	}
	if len(data) == 0 && optional {
		return nil
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		return badRequest("invalid json: %s", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// fail maps a domain error to its HTTP status. Unknown errors are logged and
// reported as 500 without detail.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	code, message := errorStatus(err)
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, code, message)
}

func errorStatus(err error) (int, string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, reqErr.msg
	}
	if errors.Is(err, auth.ErrUnauthorized) {
		return http.StatusUnauthorized, auth.ErrUnauthorized.Error()
	}
	for _, target := range []error{
		session.ErrNotFound,
		catalog.ErrNotFound,
		cart.ErrIndexOutOfRange,
	} {
		if errors.Is(err, target) {
			return http.StatusNotFound, target.Error()
		}
	}
	for _, target := range []error{
		cart.ErrUnknownUnit,
		cart.ErrInvalidQuantity,
		cart.ErrVendorNotFound,
		cart.ErrOutOfStock,
		order.ErrEmptyCart,
		coupon.ErrInvalidCoupon,
		coupon.ErrCouponExpired,
		coupon.ErrCouponUsageLimitReached,
	} {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity, target.Error()
		}
	}
	return http.StatusInternalServerError, "internal error"
}
