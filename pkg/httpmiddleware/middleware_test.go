package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mark("outer"), mark("middle"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "middle", "inner"}, calls)
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/product/{productId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":404}`))
	})
	h := Wrap(mux, InjectLogger(zap.New(core)), RequestID(), LogRequests())

	req := httptest.NewRequest(http.MethodGet, "/api/product/durian", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	entries := logs.FilterMessage("Request rejected").All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "GET /api/product/{productId}", fields["route"])
	assert.Equal(t, "/api/product/durian", fields["path"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
	assert.EqualValues(t, len(`{"code":404}`), fields["bytes"])
	assert.Equal(t, "req-1", fields["request_id"])
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{name: "reuses valid id", incoming: "abc-123", reuse: true},
		{name: "generates when missing", incoming: ""},
		{name: "rejects control characters", incoming: "bad\x01id"},
		{name: "rejects oversized", incoming: strings.Repeat("a", 129)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			assert.Equal(t, got, seen)
			if tt.reuse {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.Len(t, got, 36)
			}
		})
	}

	assert.Empty(t, RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := Wrap(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		InjectLogger(zap.New(core)),
		Recovery(),
	)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/session", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"message":"internal error"}`, w.Body.String())
	assert.Equal(t, "close", w.Header().Get("Connection"))
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestRecovery_AbortHandler(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestInjectLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := InjectLogger(zap.New(core))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("hello")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, logs.FilterMessage("hello").Len())
}

func TestCORS(t *testing.T) {
	storefront := CORSConfig{
		AllowOrigins:  []string{"https://Shop.example.com"},
		AllowHeaders:  []string{"Content-Type", "api_key"},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        600,
	}

	tests := []struct {
		name        string
		cfg         CORSConfig
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantHeaders map[string]string
		wantVary    bool
	}{
		{
			name:       "allowed origin echoes configured spelling",
			cfg:        storefront,
			method:     http.MethodGet,
			origin:     "https://shop.example.com",
			wantStatus: http.StatusOK,
			wantOrigin: "https://Shop.example.com",
			wantHeaders: map[string]string{
				"Access-Control-Expose-Headers": RequestIDHeader,
			},
			wantVary: true,
		},
		{
			name:       "disallowed origin gets no headers",
			cfg:        storefront,
			method:     http.MethodGet,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusOK,
			wantVary:   true,
		},
		{
			name:       "preflight",
			cfg:        storefront,
			method:     http.MethodOptions,
			origin:     "https://shop.example.com",
			preflight:  true,
			wantStatus: http.StatusNoContent,
			wantOrigin: "https://Shop.example.com",
			wantHeaders: map[string]string{
				"Access-Control-Allow-Methods": "GET, POST, DELETE, OPTIONS",
				"Access-Control-Allow-Headers": "Content-Type, api_key",
				"Access-Control-Max-Age":       "600",
			},
			wantVary: true,
		},
		{
			name:       "preflight from disallowed origin",
			cfg:        storefront,
			method:     http.MethodOptions,
			origin:     "https://evil.example.com",
			preflight:  true,
			wantStatus: http.StatusNoContent,
			wantVary:   true,
		},
		{
			name:       "wildcard",
			cfg:        CORSConfig{AllowOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     "https://any.example.com",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:       "wildcard with credentials echoes origin",
			cfg:        CORSConfig{AllowCredentials: true},
			method:     http.MethodGet,
			origin:     "https://any.example.com",
			wantStatus: http.StatusOK,
			wantOrigin: "https://any.example.com",
			wantHeaders: map[string]string{
				"Access-Control-Allow-Credentials": "true",
			},
			wantVary: true,
		},
		{
			name:       "no origin passes through",
			cfg:        storefront,
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
			wantVary:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(tt.cfg)(okHandler())

			req := httptest.NewRequest(tt.method, "/api/product", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			for k, v := range tt.wantHeaders {
				assert.Equal(t, v, w.Header().Get(k), k)
			}
			assert.Equal(t, tt.wantVary, contains(w.Header().Values("Vary"), "Origin"))
		})
	}
}

func TestCORS_EchoesRequestedHeaders(t *testing.T) {
	h := CORS(CORSConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/session", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type, api_key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "content-type, api_key", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Empty(t, w.Header().Get("Access-Control-Max-Age"))
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
