// Package httpapi is the HTTP surface of a bidroom instance: room creation
// and joining, read-only room state, the catalog, the asset proxy, health and
// metrics. Live play happens over the gateway's WebSocket route, which is
// mounted on the same router.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/unrolled/secure"
)

// RouterConfig holds the options for NewRouter.
type RouterConfig struct {
	IsDevelopment bool
	// AllowedOrigins is a comma-separated list; empty or "*" allows all.
	AllowedOrigins  string
	RatePerMinute   int
	ProxyRatePerMin int
	MaxBodyBytes    int64
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		IsDevelopment:   true,
		AllowedOrigins:  "*",
		RatePerMinute:   600,
		ProxyRatePerMin: 120,
		MaxBodyBytes:    1 << 20,
	}
}

// Mounter adds routes that live outside this package, such as the gateway's
// WebSocket endpoint.
type Mounter interface {
	RegisterRoutes(r chi.Router)
}

// NewRouter returns the instance's router.
//
// Middleware order (outermost first): sentry, request id, real ip, access
// log, CORS, security headers. API routes are additionally rate limited and
// body capped; the proxy has its own, tighter limit.
func NewRouter(cfg RouterConfig, h *Handler, extra ...Mounter) *chi.Mux {
	sec := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		IsDevelopment:      cfg.IsDevelopment,
	})
	sentry := sentryhttp.New(sentryhttp.Options{Repanic: true})

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		sentry.Handle,
		middleware.RequestID,
		middleware.RealIP,
		hlog.NewHandler(log.Logger),
		hlog.RequestIDHandler("request_id", "X-Request-Id"),
		hlog.AccessHandler(accessLog),
		corsHandler(cfg.AllowedOrigins),
		sec.Handler,
	)

	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(
			httprate.LimitByIP(cfg.RatePerMinute, time.Minute),
			bodyLimit(cfg.MaxBodyBytes),
		)
		r.Post("/rooms", h.CreateRoom)
		r.Post("/rooms/{code}/join", h.JoinRoom)
		r.Get("/rooms/{code}/state", h.RoomState)
		r.Get("/catalog/modes", h.CatalogModes)
	})

	r.With(httprate.LimitByIP(cfg.ProxyRatePerMin, time.Minute)).Get("/proxy", h.Proxy)

	for _, m := range extra {
		m.RegisterRoutes(r)
	}
	return r
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

func corsHandler(allowed string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: parseOrigins(allowed),
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	})
	return c.Handler
}

func parseOrigins(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p := strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func bodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
