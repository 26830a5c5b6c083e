// Package http exposes the engine as a JSON API. Authentication lives
// upstream; the owner identity arrives in the X-Owner-ID header.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"envelope/internal/cache"
	"envelope/internal/core"
	"envelope/internal/middleware/ratelimit"
	"envelope/internal/middleware/security"
	"envelope/internal/middleware/trace"
	"envelope/internal/services"
)

type Server struct {
	http.Server

	jars      *services.JarService
	budgets   *services.BudgetService
	recurring *services.RecurringProcessor

	reportCache  *cache.LRUCache[core.BudgetReport]
	cacheManager *cache.Manager
	limiter      *ratelimit.Limiter

	shutdownOnce sync.Once
}

// Options tunes the server; zero values get defaults.
type Options struct {
	Addr      string
	CacheTTL  time.Duration
	CacheSize int
}

// NewServer wires routes and middleware, returning a ready-to-run
// server.
func NewServer(opts Options, jars *services.JarService, budgets *services.BudgetService, recurring *services.RecurringProcessor) *Server {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}

	s := &Server{
		jars:         jars,
		budgets:      budgets,
		recurring:    recurring,
		reportCache:  cache.NewLRUCache[core.BudgetReport](opts.CacheSize, opts.CacheTTL),
		cacheManager: cache.NewManager(),
		limiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}
	s.cacheManager.Register(s.reportCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /budgets", s.handleGetBudgets)
	mux.HandleFunc("PUT /budgets/limit", s.handleSetOverallLimit)

	mux.HandleFunc("GET /jars", s.handleListJars)
	mux.HandleFunc("POST /jars", s.handleCreateJar)
	mux.HandleFunc("PUT /jars/{id}", s.handleUpdateJar)
	mux.HandleFunc("DELETE /jars/{id}", s.handleDeactivateJar)

	mux.HandleFunc("POST /incomes", s.handleCreateIncome)

	mux.HandleFunc("GET /transfers", s.handleListTransfers)
	mux.HandleFunc("POST /transfers", s.handleCreateTransfer)

	mux.HandleFunc("GET /categories", s.handleListCategories)
	mux.HandleFunc("POST /categories", s.handleCreateCategory)
	mux.HandleFunc("PUT /categories/{id}/limit", s.handleSetCategoryLimit)

	mux.HandleFunc("GET /recurring-expenses", s.handleListRecurring)
	mux.HandleFunc("POST /recurring-expenses", s.handleCreateRecurring)
	mux.HandleFunc("PUT /recurring-expenses/{id}", s.handleUpdateRecurring)
	mux.HandleFunc("DELETE /recurring-expenses/{id}", s.handleDeactivateRecurring)
	mux.HandleFunc("POST /recurring-expenses/{id}/create-expense", s.handleCreateExpenseNow)

	mux.HandleFunc("POST /cron/run", s.handleCronRun)

	traceMw := trace.NewMiddleware(extractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = mux
	handler = s.mutationRateLimit(handler)
	handler = traceMw.Middleware(handler)
	handler = headers.Middleware(handler)

	s.Server = http.Server{
		Addr:    opts.Addr,
		Handler: handler,
	}
	return s
}

// mutationRateLimit applies the per-IP limiter to writes only; reads
// stay cheap and unthrottled.
func (s *Server) mutationRateLimit(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(extractClientIP, nil)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

// extractClientIP resolves the client address, trusting proxy headers
// first.
func extractClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// Shutdown stops the HTTP server and the background cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
