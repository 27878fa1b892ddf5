package routes

import (
	"net/http"

	"github.com/Dosada05/debate-arena/handlers"
	"github.com/Dosada05/debate-arena/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handlers struct {
	Queue     *handlers.QueueHandler
	Match     *handlers.MatchHandler
	Rating    *handlers.RatingHandler
	WebSocket *handlers.WebSocketHandler
}

func InitRoutes(h Handlers, jwtSecret string) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Route("/queue", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/", h.Queue.Join)
		r.Delete("/", h.Queue.Leave)
		r.Post("/heartbeat", h.Queue.Heartbeat)
	})

	router.Route("/matches", func(r chi.Router) {
		// Просмотр матча публичный, сабмит раундов — только участник.
		r.Get("/{matchID}", h.Match.Get)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/{matchID}/rounds", h.Match.SubmitRound)
		})
	})

	router.Route("/players", func(r chi.Router) {
		r.Get("/{playerID}/profile", h.Rating.Profile)
		r.Get("/{playerID}/history", h.Rating.History)
	})
	router.Get("/leaderboard", h.Rating.Leaderboard)

	router.Route("/ws", func(r chi.Router) {
		r.Get("/matches/{matchID}", h.WebSocket.ServeMatch)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/me", h.WebSocket.ServePlayer)
		})
	})

	return router
}
