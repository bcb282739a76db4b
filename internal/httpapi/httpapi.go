// Package httpapi exposes the auction services as a JSON API over chi.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/pregao/internal/auction"
	"github.com/jensholdgaard/pregao/internal/bidding"
	"github.com/jensholdgaard/pregao/internal/conversion"
	"github.com/jensholdgaard/pregao/internal/health"
	"github.com/jensholdgaard/pregao/internal/lineitem"
	"github.com/jensholdgaard/pregao/internal/requests"
	"github.com/jensholdgaard/pregao/internal/roster"
	"github.com/jensholdgaard/pregao/internal/rules"
)

// maxBody caps request bodies at 1 MiB.
const maxBody = 1 << 20

// Services are the operations the API serves.
type Services struct {
	Rules       *rules.Manager
	Auctions    *auction.Manager
	Roster      *roster.Manager
	LineItems   *lineitem.Manager
	Bids        *bidding.Engine
	Requests    *requests.Manager
	Conversions *conversion.Manager
}

// Handler serves the API.
type Handler struct {
	svc    Services
	logger *slog.Logger
}

// NewHandler returns a new Handler.
func NewHandler(svc Services, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Options configure the router built by Router.
type Options struct {
	RequestTimeout time.Duration
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Router returns the full HTTP handler: health endpoints plus /api, wrapped
// in otelhttp.
func (h *Handler) Router(hc *health.Handler, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	if hc != nil {
		hc.Mount(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/rule-sets", func(r chi.Router) {
			r.Post("/", h.createRuleSet)
			r.Get("/", h.listRuleSets)
			r.Get("/active", h.activeRuleSet)
			r.Get("/{id}", h.getRuleSet)
		})

		r.Route("/auctions", func(r chi.Router) {
			r.Post("/", h.createAuction)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getAuction)
				r.Put("/authorize", h.authorizeAuction)
				r.Put("/cancel", h.cancelAuction)
				r.Put("/reject", h.rejectAuction)

				r.Post("/participants", h.addParticipant)
				r.Get("/participants", h.listParticipants)

				r.Post("/line-items", h.addLineItem)
				r.Get("/line-items", h.listLineItems)
				r.Get("/line-items/{lineItemId}/winning-bid", h.lineItemWinner)

				r.Post("/bids", h.submitBid)
				r.Get("/bids", h.listBids)
				r.Get("/winning-bid", h.auctionWinner)

				r.Post("/conversions", h.extendAuction)
				r.Get("/conversions", h.listConversions)

				r.Get("/events", h.listEvents)
			})
		})

		r.Get("/participants/{id}", h.getParticipant)

		r.Get("/line-items/{id}", h.getLineItem)
		r.Patch("/line-items/{id}", h.updateLineItem)
		r.Delete("/line-items/{id}", h.deleteLineItem)

		r.Post("/conversions", h.convertRequests)

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.createRequest)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getRequest)
				r.Put("/approve", h.approveRequest)
				r.Put("/reject", h.rejectRequest)
				r.Post("/line-items", h.addRequestLineItem)
				r.Get("/line-items", h.listRequestLineItems)
				r.Post("/participants", h.addRequestParticipant)
				r.Get("/participants", h.listRequestParticipants)
			})
		})
	})

	var otelOpts []otelhttp.Option
	if opts.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}
	if opts.MeterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(opts.MeterProvider))
	}
	otelOpts = append(otelOpts, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return r.Method + " " + r.URL.Path
	}))
	return otelhttp.NewHandler(r, "pregaod", otelOpts...)
}
