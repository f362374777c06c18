package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

// RouterConfig wires handlers and middleware into the API router.
type RouterConfig struct {
	Auth         *AuthHandler
	Reservations *ReservationHandler
	Directory    *DirectoryHandler
	Admin        *AdminHandler
	Sessions     SessionResolver
	Users        ActiveUserLookup
	OTPLimiter   *IPRateLimiter
	Logger       *slog.Logger
	Middleware   []func(http.Handler) http.Handler
}

// NewRouter builds the chi router serving the JSON API.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responder.writeJSON(req.Context(), w, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		responder.writeJSON(req.Context(), w, http.StatusMethodNotAllowed, errorResponse{Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		responder.writeOK(req.Context(), w)
	})

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Group(func(r chi.Router) {
				if cfg.OTPLimiter != nil {
					r.Use(RateLimit(cfg.OTPLimiter))
				}
				r.Post("/auth/request-otp", cfg.Auth.RequestOTP)
				r.Post("/auth/verify-otp", cfg.Auth.VerifyOTP)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(RequireSession(cfg.Sessions, cfg.Users, logger))

			if cfg.Auth != nil {
				r.Post("/auth/logout", cfg.Auth.Logout)
				r.Get("/me", cfg.Auth.Me)
			}
			if cfg.Directory != nil {
				r.Get("/users", cfg.Directory.ListUsers)
				r.Get("/desks", cfg.Directory.ListDesks)
			}
			if cfg.Reservations != nil {
				r.Get("/reservations", cfg.Reservations.List)
				r.Post("/reservations", cfg.Reservations.Create)
				r.Patch("/reservations/{reservationID}", cfg.Reservations.Update)
				r.Delete("/reservations/{reservationID}", cfg.Reservations.Cancel)
				r.Put("/named-desk/absences", cfg.Reservations.UpsertAbsence)
			}
			if cfg.Admin != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Post("/users", cfg.Admin.UpsertUser)
					r.Post("/desks", cfg.Admin.UpsertDesk)
					r.Post("/force-cancel", cfg.Admin.ForceCancel)
					r.Get("/stats", cfg.Admin.Stats)
				})
			}
		})
	})

	return r
}
