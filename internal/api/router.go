package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewRouter mounts every gateway route. The returned mux can be extended by
// the caller, e.g. with the websocket endpoint.
func NewRouter(s *Service) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestLogger(s.log))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)
		r.Get("/version", s.HandleVersion)
		r.Get("/params", s.HandleParams)
		r.Get("/stats", s.HandleStats)
		r.Get("/fee", s.HandleFee)
		r.Get("/balances/{token}/{account}", s.HandleBalance)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.HandleCampaigns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleCampaign)
				r.Get("/backers", s.HandleBackers)
				r.Get("/refund-stats", s.HandleRefundStats)
				r.Get("/status", s.HandleCampaignStatus)
				r.Get("/donations/{donor}", s.HandleDonation)
				r.Get("/can-refund/{donor}", s.HandleCanRefund)
				r.Get("/events", s.HandleCampaignEvents)
			})
		})

		r.Get("/events", s.HandleEvents)
		r.Get("/logs", s.HandleLogs)
		r.Get("/peers", s.HandlePeers)

		r.Route("/backups", func(r chi.Router) {
			r.Get("/", s.HandleBackupsList)
			r.Post("/", s.HandleCreateBackup)
			r.Get("/export", s.HandleExportSnapshot)
		})

		r.Get("/docs", s.HandleDocsList)
		r.Get("/docs/{name}", s.HandleDoc)
	})

	return r
}

func requestLogger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			l.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("http request")
		})
	}
}
