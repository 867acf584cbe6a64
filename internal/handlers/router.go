package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/imbroke/backend/internal/config"
	"github.com/imbroke/backend/internal/metrics"
	mW "github.com/imbroke/backend/internal/middleware"
	"github.com/imbroke/backend/internal/services"
	httpSwagger "github.com/swaggo/http-swagger"
)

// AuthEndpoints is implemented by services.AuthService, which serves its
// routes directly.
type AuthEndpoints interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
	GetCurrentUser(w http.ResponseWriter, r *http.Request)
	GetUserByID(w http.ResponseWriter, r *http.Request)
}

// Dependencies wires the router to the service layer.
type Dependencies struct {
	Auth      AuthEndpoints
	Rooms     RoomManager
	Invites   Inviter
	Transfers Transferer
	Ledger    LedgerReader
	Summaries Summarizer

	// RequireAuth rejects requests without a valid bearer token.
	RequireAuth func(http.Handler) http.Handler
	// RateLimit is optional.
	RateLimit func(http.Handler) http.Handler
	// Ready reports dependency health for /health. Optional.
	Ready func(r *http.Request) error
}

func NewRouter(cfg config.ServerConfig, deps Dependencies) http.Handler {
	roomHandler := NewRoomHandler(deps.Rooms, deps.Invites)
	transferHandler := NewTransferHandler(deps.Transfers, deps.Ledger)
	summaryHandler := NewSummaryHandler(deps.Summaries)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mW.SecurityHeaders)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	r.Use(metrics.InstrumentHandler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(r); err != nil {
				services.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		services.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", metrics.Handler())
	if cfg.SwaggerURL != "" {
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(cfg.SwaggerURL)))
	}

	r.Route("/api", func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit)
		}

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("App is Working"))
		})

		// Public endpoints
		r.Post("/user/register", deps.Auth.Register)
		r.Post("/user/login", deps.Auth.Login)
		r.Get("/user/{id}", deps.Auth.GetUserByID)
		r.Get("/room", roomHandler.ListRooms)
		r.Get("/room/{id}", roomHandler.GetRoom)
		r.Get("/room/{id}/summary", summaryHandler.RoomSummary)
		r.Post("/room/summary", summaryHandler.UserRoomSummary)
		r.Get("/ranking", summaryHandler.Ranking)

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(deps.RequireAuth)

			r.Post("/user/logout", deps.Auth.Logout)
			r.Get("/getuser", deps.Auth.GetCurrentUser)

			r.Post("/createroom", roomHandler.CreateRoom)
			r.Post("/room/user/join", roomHandler.JoinRoom)
			r.Post("/room/user/leave", roomHandler.LeaveRoom)
			r.Delete("/room/close", roomHandler.CloseRoom)
			r.Post("/room/{id}/invite", roomHandler.CreateInvite)
			r.Post("/room/invite/accept", roomHandler.AcceptInvite)

			r.Post("/transfer", transferHandler.Transfer)
			r.Get("/transfer/logs/user/{userId}", transferHandler.ListLogs)
			r.Patch("/transfer/logs/{logId}/read", transferHandler.MarkLogRead)
			r.Patch("/transfer/logs/user/{userId}/read-all", transferHandler.MarkAllLogsRead)
		})
	})

	return r
}
