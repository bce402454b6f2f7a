// Package web provides the HTTP server and handlers for the portal.
package web

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"b24portal/internal/bitrix"
	"b24portal/internal/config"
	"b24portal/internal/contacts"
	"b24portal/internal/deals"
	"b24portal/internal/employees"
	"b24portal/internal/geomap"
	"b24portal/internal/logging"
	"b24portal/internal/qr"
)

// ContactImporter runs the upload pipeline. *contacts.Importer
// satisfies it.
type ContactImporter interface {
	Import(ctx context.Context, rows []contacts.Record) (contacts.Stats, error)
}

// ContactExporter collects filtered contacts. *contacts.Exporter
// satisfies it.
type ContactExporter interface {
	Collect(ctx context.Context, f contacts.ExportFilter) ([]contacts.Record, error)
}

// EmployeeDirectory serves the roster. *employees.Service satisfies it.
type EmployeeDirectory interface {
	Roster(ctx context.Context) ([]employees.Row, error)
	FetchActiveUsers(ctx context.Context) ([]bitrix.User, error)
	GenerateTestCalls(ctx context.Context, userIDs []int64, perUser int) error
}

// MapSource serves map pins. *geomap.Service satisfies it.
type MapSource interface {
	Companies(ctx context.Context) ([]geomap.Company, error)
}

// LinkService issues and resolves product links. *qr.Service
// satisfies it.
type LinkService interface {
	Issue(ctx context.Context, productID int64, createdBy string) (*qr.IssuedLink, error)
	Resolve(ctx context.Context, token uuid.UUID) (*qr.Link, qr.ProductInfo, error)
	PublicURL(token uuid.UUID) string
	QRFor(token uuid.UUID) (string, error)
}

// ProductSearch backs the autocomplete endpoint. *qr.Catalog
// satisfies it.
type ProductSearch interface {
	Search(ctx context.Context, query string) ([]qr.ProductInfo, error)
}

// DealDesk lists and creates deals. *deals.Service satisfies it.
type DealDesk interface {
	LoadManuals(ctx context.Context) (*deals.Manuals, error)
	TopDeals(ctx context.Context, m *deals.Manuals) ([]deals.Row, error)
	Create(ctx context.Context, d deals.NewDeal) (*bitrix.Deal, error)
}

// Services bundles everything the HTTP layer serves.
type Services struct {
	Importer  ContactImporter
	Exporter  ContactExporter
	Employees EmployeeDirectory
	Map       MapSource
	Links     LinkService
	Products  ProductSearch
	Deals     DealDesk
}

// Server is the portal HTTP server.
type Server struct {
	cfg      *config.Config
	services Services
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a configured server with all routes mounted.
func NewServer(cfg *config.Config, services Services) *Server {
	s := &Server{
		cfg:      cfg,
		services: services,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	s.router.Use(securityHeaders(s.cfg.Portal.FrameAncestors))

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Pages
	s.router.Get("/", s.handleIndex)
	s.router.Get("/employees", s.handleEmployeesPage)
	s.router.Get("/map", s.handleMapPage)
	s.router.Get("/deals", s.handleDealsPage)
	s.router.Get("/qr", s.handleQRPage)
	s.router.Get("/p/{token}", s.handlePublicProduct)

	// Contact exchange
	s.router.Post("/contacts/import", s.handleContactImport)
	s.router.Get("/contacts/export", s.handleContactExport)
	s.router.Post("/contacts/export", s.handleContactExport)

	// Telephony seeding
	s.router.Post("/employees/generate-calls", s.handleGenerateCalls)

	// Product links
	s.router.Post("/qr/links", s.handleCreateLink)
	s.router.Get("/qr/links/{token}", s.handleLinkDetail)

	// Deal creation
	s.router.Post("/deals", s.handleCreateDeal)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/employees", s.handleEmployeesData)
		r.Get("/map/companies", s.handleMapCompanies)
		r.Get("/products/search", s.handleProductSearch)
		r.Get("/deals", s.handleDealsData)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	logging.FromContext(context.Background()).Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds response hardening headers. The app runs inside
// the Bitrix24 iframe, so clickjacking protection uses a CSP
// frame-ancestors list instead of X-Frame-Options.
func securityHeaders(frameAncestors []string) func(http.Handler) http.Handler {
	ancestors := "*"
	if len(frameAncestors) > 0 {
		ancestors = strings.Join(frameAncestors, " ")
	}
	csp := "default-src 'self'; script-src 'self' 'unsafe-inline' https://api-maps.yandex.ru; " +
		"style-src 'self' 'unsafe-inline'; img-src * data:; connect-src *; " +
		"frame-ancestors " + ancestors

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Content-Security-Policy", csp)
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1,
			lastReset: time.Now(),
		}
		return true
	}

	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = realIP
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
