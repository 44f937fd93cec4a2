package httpmiddleware

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestWrap_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, calls)
}

func TestCorrelationID(t *testing.T) {
	var seen string
	h := CorrelationID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFromContext(r.Context())
	}))

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "Correlation", headers: map[string]string{"X-Correlation-ID": "abc-123"}, want: "abc-123"},
		{name: "RequestID", headers: map[string]string{"X-Request-ID": "req-1"}, want: "req-1"},
		{name: "CorrelationWins", headers: map[string]string{"X-Correlation-ID": "c", "X-Request-ID": "r"}, want: "c"},
		{name: "TooLong", headers: map[string]string{"X-Correlation-ID": strings.Repeat("a", 129)}},
		{name: "NonPrintable", headers: map[string]string{"X-Correlation-ID": "bad\x01id"}},
		{name: "Missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			got := w.Header().Get(CorrelationIDHeader)
			assert.Equal(t, got, seen)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
				return
			}
			assert.Len(t, got, 36, "generated UUID")
		})
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := Wrap(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		InjectLogger(zap.New(core)),
		CorrelationID(),
		Recovery(),
	)

	req := httptest.NewRequest(http.MethodGet, "/orders/ORD-1", nil)
	req.Header.Set(CorrelationIDHeader, "cid-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 500, body.StatusCode)
	assert.Equal(t, "/orders/ORD-1", body.Path)
	assert.Equal(t, http.MethodGet, body.Method)
	assert.Equal(t, "cid-1", body.CorrelationID)
	assert.Equal(t, "Internal server error", body.Message)
	assert.NotEmpty(t, body.Timestamp)
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestWriteError_Fields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/orders?x=1", nil)
	w := httptest.NewRecorder()
	WriteError(w, req, http.StatusBadRequest, "Validation failed",
		FieldError{Field: "postalCode", Message: "must be 5-10 characters"})

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "/orders?x=1", body.Path)
	assert.Equal(t, "N/A", body.CorrelationID)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "postalCode", body.Errors[0].Field)
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := chi.NewRouter()
	r.Use(InjectLogger(zap.New(core)), CorrelationID(), LogRequests())
	r.Get("/orders/{orderReference}", func(w http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("Handler")
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/ORD-1", nil)
	req.Header.Set(CorrelationIDHeader, "cid-2")
	r.ServeHTTP(httptest.NewRecorder(), req)

	for _, e := range logs.All() {
		assert.Equal(t, "cid-2", e.ContextMap()["correlation_id"], e.Message)
	}
	entries := logs.FilterMessage("Request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/orders/{orderReference}", fields["route"])
	assert.Equal(t, "/orders/ORD-1", fields["path"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
}

func TestLabeler(t *testing.T) {
	l := &otelhttp.Labeler{}
	r := chi.NewRouter()
	r.Use(Labeler())
	r.Patch("/orders/{orderReference}/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPatch, "/orders/ORD-1/status", nil)
	req = req.WithContext(otelhttp.ContextWithLabeler(req.Context(), l))
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, l.Get(), attribute.String("http.route", "/orders/{orderReference}/status"))
}

func TestCORS(t *testing.T) {
	h := CORS(CORSConfig{Origins: []string{"http://localhost:3000"}})(okHandler())

	t.Run("PreflightStatusUpdate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/orders/ORD-1/status", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.MethodPatch, w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("CartReadExposesCorrelationID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Expose-Headers")), "x-correlation-id")
	})

	t.Run("UnknownStorefront", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("CredentialsEchoOrigin", func(t *testing.T) {
		h := CORS(CORSConfig{Origins: []string{"*"}, AllowCredentials: true})(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set("Origin", "http://shop.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, "http://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req = req.WithContext(zctx.Base(req.Context(), zap.New(core)))
	w := httptest.NewRecorder()

	WriteJSON(w, req, http.StatusOK, map[string]float64{"subtotal": math.Inf(1)})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Internal server error", body.Message)
	assert.Equal(t, 1, logs.FilterMessage("Encode response").Len())
}

func TestClientIP(t *testing.T) {
	for _, tt := range []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "RemoteAddr", want: "192.0.2.1"},
		{name: "ForwardedFor", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, want: "203.0.113.7"},
		{name: "RealIP", headers: map[string]string{"X-Real-IP": "198.51.100.4"}, want: "198.51.100.4"},
		{name: "EmptyForwardedFor", headers: map[string]string{"X-Forwarded-For": " ", "X-Real-IP": "198.51.100.4"}, want: "198.51.100.4"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/payment/process", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
