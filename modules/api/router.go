package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/clubkit/handler"
	"github.com/dmitrymomot/clubkit/pkg/httpserver"
	"github.com/dmitrymomot/clubkit/pkg/logger"
)

// RouterOptions wires the services behind the API. Every service is
// required except Scenarios, which is only mounted when ScenariosEnabled.
type RouterOptions struct {
	Merchants     Merchants
	Catalog       Catalog
	Checkout      Checkout
	Subscriptions Subscriptions
	Scenarios     Scenarios
	Webhooks      WebhookParser
	Guard         Guard

	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	// Checks back GET /health/ready.
	Checks           []httpserver.Check
	ReadinessTimeout time.Duration
	ScenariosEnabled bool
}

type api struct {
	opts  RouterOptions
	log   *slog.Logger
	onErr handler.ErrorHandler[handler.Context]
}

// Router builds the chi router.
//
//	r := chi.NewRouter()
//	r.Mount("/", api.Router(api.RouterOptions{
//		Merchants:     merchants,
//		Catalog:       catalog,
//		Checkout:      checkout,
//		Subscriptions: subscriptions,
//		Webhooks:      stripeClient,
//		Guard:         debounce.New(rdb),
//	}))
func Router(opts RouterOptions) chi.Router {
	switch {
	case opts.Merchants == nil:
		panic("api: merchants service is required")
	case opts.Catalog == nil:
		panic("api: catalog is required")
	case opts.Checkout == nil:
		panic("api: checkout is required")
	case opts.Subscriptions == nil:
		panic("api: subscriptions service is required")
	case opts.Webhooks == nil:
		panic("api: webhook parser is required")
	case opts.Guard == nil:
		panic("api: debounce guard is required")
	case opts.ScenariosEnabled && opts.Scenarios == nil:
		panic("api: scenarios enabled without a runner")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	a := &api{
		opts:  opts,
		log:   log.With(logger.Component("api")),
		onErr: handler.NewErrorHandler(log, NewErrorMapper()),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, actorFromHeader, requestLogger(a.log), middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, opts.ReadinessTimeout, opts.Checks...))
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	r.Post("/webhooks/stripe", a.webhook())

	r.Route("/businesses", func(r chi.Router) {
		r.Post("/", a.createBusiness())
		r.Route("/{businessID}", func(r chi.Router) {
			r.Use(businessFromPath)
			r.Get("/", a.getBusiness())
			r.Post("/details", a.recordDetails())
			r.Post("/onboarding", a.startOnboarding())
			r.Post("/sync", a.syncAccount())
			r.Get("/next-action", a.nextAction())
			r.Get("/members/count", a.countMembers())

			r.Get("/memberships", a.listMemberships())
			r.Post("/memberships", a.createMembership())
			r.Post("/memberships/{membershipID}/plans", a.createPlan())
			r.Get("/plans/{planID}/prices", a.listPrices())
			r.Post("/plans/{planID}/prices", a.enqueuePrice())
			r.Post("/checkout", a.checkout())

			r.Get("/subscriptions", a.listSubscriptions())
			r.Get("/subscriptions/{subscriptionID}", a.getSubscription())
			r.Post("/subscriptions/{subscriptionID}/{action}", a.subscriptionAction())
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/subscriptions/sync", a.syncSubscriptions())
		r.Post("/accounts/sync", a.syncAccounts())
		r.Post("/prices/drain", a.drainPrices())
		r.Post("/scenarios/{type}/run", a.runScenario())
	})

	return r
}

// actorFromHeader trusts X-Actor-ID as set by the authenticating proxy.
func actorFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get("X-Actor-ID"); actor != "" {
			r = r.WithContext(logger.WithActorID(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

func businessFromPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chi.URLParam(r, "businessID"); id != "" {
			r = r.WithContext(logger.WithBusinessID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAttrs(r.Context(), slog.LevelDebug, "request",
				logger.RequestID(middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
