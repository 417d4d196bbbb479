package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"hardline/internal/cache"
	"hardline/internal/core"
	applog "hardline/internal/log"
	"hardline/internal/middleware/ratelimit"
	"hardline/internal/middleware/security"
	"hardline/internal/middleware/trace"
	"hardline/internal/ports"
	"hardline/internal/services"
)

const (
	summaryCacheSize = 500
	summaryCacheTTL  = 30 * time.Second
)

type ownerContextKey struct{}

// Options configures a Server.
type Options struct {
	Addr               string
	Store              ports.Store
	Processor          *services.AutoDebitProcessor
	ManualCharger      *services.ManualCharger
	Ready              func(context.Context) error
	Logger             *applog.Logger
	Location           *time.Location
	RateLimitPerMinute int
	Now                func() time.Time

	// Operators may start a scheduler run over HTTP. None means nobody can.
	Operators []uuid.UUID
}

type Server struct {
	http.Server

	store     ports.Store
	processor *services.AutoDebitProcessor
	manual    *services.ManualCharger
	ready     func(context.Context) error
	loc       *time.Location
	now       func() time.Time
	operators map[uuid.UUID]struct{}

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	// Month summaries keyed by "owner|YYYY-MM".
	summaryCache *cache.LRUCache[core.MonthSummary]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// Shutdown must be called to stop its background cleanup.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	detector := security.NewDetector()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		store:     opts.Store,
		processor: opts.Processor,
		manual:    opts.ManualCharger,
		ready:     opts.Ready,
		loc:       opts.Location,
		now:       opts.Now,
		operators: make(map[uuid.UUID]struct{}, len(opts.Operators)),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		detector:     detector,
		tracer:       trace.NewMiddleware(detector.ExtractClientIP),
		summaryCache: cache.NewLRUCache[core.MonthSummary](summaryCacheSize, summaryCacheTTL),
		cacheManager: cache.NewManager(),
	}
	for _, id := range opts.Operators {
		s.operators[id] = struct{}{}
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(time.Minute)

	s.Handler = s.routes(opts.Logger)
	return s
}

func (s *Server) routes(logger *applog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(s.tracer.Middleware)
	r.Use(applog.Middleware(logger))
	r.Use(applog.RequestIDMiddleware(trace.GetRequestID))
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("route not found").Write(w, r)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w, r)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			TooManyRequestsError("rate limit exceeded, retry later").Write(w, r)
		}))
		r.Use(requireOwner)

		r.Route("/fixed-expenses", func(r chi.Router) {
			r.Get("/", s.handleListFixedExpenses)
			r.Post("/", s.handleCreateFixedExpense)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetFixedExpense)
				r.Put("/", s.handleUpdateFixedExpense)
				r.Delete("/", s.handleDeleteFixedExpense)
				r.Post("/manual-debit", s.handleManualDebit)
			})
		})

		r.Get("/ledger", s.handleListLedger)
		r.Get("/ledger/summary", s.handleLedgerSummary)

		r.With(s.requireOperator).Post("/auto-debit/run", s.handleRunAutoDebit)
	})

	return r
}

// requireOwner rejects requests without a valid X-User-ID and stores the
// owner in the request context.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := OwnerFromRequest(r)
		if err != nil {
			UnauthorizedError(err.Error()).Write(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), ownerContextKey{}, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireOperator lets through only owners configured as operators. It runs
// after requireOwner.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := ownerFromContext(r.Context())
		if _, ok := s.operators[owner]; !ok {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Operator route refused",
				applog.FieldOwnerID, owner,
				applog.FieldPath, r.URL.Path)
			ForbiddenError("operator access required").Write(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ownerFromContext(ctx context.Context) uuid.UUID {
	owner, _ := ctx.Value(ownerContextKey{}).(uuid.UUID)
	return owner
}

// invalidateSummaries drops cached summaries of owner, or of every owner when
// owner is uuid.Nil.
func (s *Server) invalidateSummaries(owner uuid.UUID) int {
	if owner == uuid.Nil {
		return s.summaryCache.DeletePrefix("")
	}
	return s.summaryCache.DeletePrefix(owner.String() + "|")
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w, r)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
				applog.FieldError, err)
			ServiceUnavailableError("not ready").Write(w, r)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w, r)
}
