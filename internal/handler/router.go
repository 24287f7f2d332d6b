package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/efreitasn/venue/internal/auth"
	"github.com/efreitasn/venue/internal/metrics"
	"github.com/efreitasn/venue/internal/service"
)

// Services are the application services the REST adapter exposes.
type Services struct {
	Coordinator *service.Coordinator
	Query       *service.QueryService
	Webhooks    *service.WebhookService
}

// NewRouter creates a chi router with all routes registered, request logging
// and caller resolution middleware, wrapped in CORS handling for the given
// origins. Request bodies are only read once the caller is authorized.
func NewRouter(svc Services, m *metrics.Metrics, corsOrigins []string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger, m))
	r.Use(resolveCaller)

	marketH := NewMarketHandler(svc.Coordinator, svc.Query)
	accntH := NewAccntHandler(svc.Coordinator, svc.Query)
	webhookH := NewWebhookHandler(svc.Webhooks)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	// Reference data.
	r.Get("/refdata/instrs", marketH.ListInstruments)
	r.Get("/refdata/instrs/{instr}", marketH.GetInstrument)

	// Markets.
	r.Get("/markets", marketH.List)
	r.Get("/markets/{instr}", marketH.ListByInstr)
	r.Get("/markets/{instr}/{settl_date}", marketH.Get)
	r.Post("/markets", marketH.Create)
	r.Post("/markets/{instr}", marketH.Create)
	r.Post("/markets/{instr}/{settl_date}", marketH.Create)
	r.Put("/markets/{instr}/{settl_date}", marketH.Update)

	r.Route("/accnt", func(r chi.Router) {
		r.Get("/", accntH.GetAccount)

		r.Get("/orders", accntH.ListOrders)
		r.Get("/orders/{instr}", accntH.ListOrders)
		r.Get("/orders/{instr}/{settl_date}", accntH.ListOrders)
		r.Get("/orders/{instr}/{settl_date}/{id}", accntH.GetOrder)
		r.Post("/orders", accntH.PlaceOrder)
		r.Post("/orders/{instr}", accntH.PlaceOrder)
		r.Post("/orders/{instr}/{settl_date}", accntH.PlaceOrder)
		r.Put("/orders/{instr}/{settl_date}", accntH.ReviseOrders)
		r.Put("/orders/{instr}/{settl_date}/{ids}", accntH.ReviseOrders)
		r.Delete("/orders/{instr}/{settl_date}/{ids}", accntH.CancelOrders)

		r.Get("/trades", accntH.ListTrades)
		r.Get("/trades/{instr}", accntH.ListTrades)
		r.Get("/trades/{instr}/{settl_date}", accntH.ListTrades)
		r.Get("/trades/{instr}/{settl_date}/{id}", accntH.GetTrade)
		r.Post("/trades", accntH.CreateTrade)
		r.Post("/trades/{instr}", accntH.CreateTrade)
		r.Post("/trades/{instr}/{settl_date}", accntH.CreateTrade)
		r.Delete("/trades/{instr}/{settl_date}/{ids}", accntH.AckTrades)

		r.Get("/execs", accntH.ListExecs)

		r.Get("/posns", accntH.ListPositions)
		r.Get("/posns/{instr}", accntH.ListPositions)
		r.Get("/posns/{instr}/{settl_date}", accntH.GetPosition)

		r.Post("/webhooks", webhookH.Upsert)
		r.Get("/webhooks", webhookH.List)
		r.Delete("/webhooks/{id}", webhookH.Delete)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Content-Type", headerAccount, headerPermissions},
	})
	return c.Handler(r)
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog, and records it in m.
func requestLogging(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			took := time.Since(start)
			m.ObserveHTTP(r.Method, ww.status, took)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("accnt", r.Header.Get(headerAccount)),
				slog.Int("status", ww.status),
				slog.Duration("duration", took),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

const (
	headerAccount     = "X-Account"
	headerPermissions = "X-Permissions"
)

// resolveCaller reads the account and permission headers set by whatever
// authenticates requests in front of the venue.
func resolveCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perm, err := auth.ParsePerm(r.Header.Get(headerPermissions))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		caller := auth.Caller{
			Accnt: strings.TrimSpace(r.Header.Get(headerAccount)),
			Perm:  perm,
		}
		next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
	})
}

// authorized resolves the caller and checks it against need, writing the
// error response when it fails. Handlers call it before reading the body.
func authorized(w http.ResponseWriter, r *http.Request, need auth.Perm) (auth.Caller, bool) {
	caller := auth.FromContext(r.Context())
	if err := auth.Authorize(caller, need); err != nil {
		writeDomainError(w, err)
		return caller, false
	}
	return caller, true
}
