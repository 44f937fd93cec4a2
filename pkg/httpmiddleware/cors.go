package httpmiddleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// CORSConfig lists the storefront origins allowed to call the API.
type CORSConfig struct {
	// Origins allowed to make cross-origin requests. Empty or "*" allows any.
	Origins []string
	// AllowCredentials lets browsers send cookies. With any-origin the
	// request origin is echoed, since browsers reject "*" with credentials.
	AllowCredentials bool
}

// CORS answers preflight requests for the checkout API and exposes the
// correlation ID header to browser clients.
func CORS(cfg CORSConfig) Middleware {
	opts := cors.Options{
		AllowedOrigins: cfg.Origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", CorrelationIDHeader, requestIDHeader},
		ExposedHeaders:   []string{CorrelationIDHeader, "Retry-After"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           86400,
	}
	if cfg.AllowCredentials && (len(cfg.Origins) == 0 || slices.Contains(cfg.Origins, "*")) {
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	}
	return cors.Handler(opts)
}
