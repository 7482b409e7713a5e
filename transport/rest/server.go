package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

type Server struct {
	logger   *slog.Logger
	manager  gameManager
	validate *validator.Validate

	clientOrigin string
	router       *chi.Mux
	srv          *http.Server
}

func New(logger *slog.Logger, manager gameManager, clientOrigin string) *Server {
	server := &Server{
		logger:   logger.With("component", "rest"),
		manager:  manager,
		validate: validator.New(),

		clientOrigin: clientOrigin,
		router:       chi.NewRouter(),
	}

	server.routes()

	return server
}

func (that *Server) routes() {
	that.router.Use(chimw.RequestID)
	that.router.Use(chimw.RealIP)
	that.router.Use(chimw.Recoverer)
	that.router.Use(chimw.Timeout(10 * time.Second))
	that.router.Use(that.cors)

	that.router.Get("/ping", that.PingHandler)

	that.router.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)
		r.Use(that.withSession)

		r.Post("/session", that.handleSession)
		r.Get("/game", that.handleGetGame)
		r.Post("/game/cards/{position}/select", that.handleSelectCard)
		r.Post("/game/reset", that.handleReset)
		r.Put("/settings/cheat-mode", that.handleCheatMode)
	})

	that.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found: " + r.URL.Path})
	})
}

func (that *Server) Handler() http.Handler {
	return that.router
}

// Start - blocks until the server stops; a Shutdown is not reported as an error.
func (that *Server) Start(port string) error {
	that.srv = &http.Server{
		Addr:         ":" + port,
		Handler:      that.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	if err := that.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) Shutdown(ctx context.Context) error {
	if that.srv == nil {
		return nil
	}

	if err := that.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors - credentialed CORS for the single browser origin, so the session cookie travels.
func (that *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", that.clientOrigin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
