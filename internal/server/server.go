package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/bcrypt"
)

// Config del control API. TokenHash es el hash bcrypt del bearer token;
// vacío desactiva la autenticación.
type Config struct {
	Addr           string
	TokenHash      string
	AllowedOrigins []string
}

// Router monta las rutas del control API.
func Router(h *Handler, cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if cfg.TokenHash != "" {
			r.Use(tokenAuth(cfg.TokenHash))
		}
		r.Get("/profiles", h.ListProfiles)
		r.Route("/profiles/{id}", func(r chi.Router) {
			r.Post("/start", h.Start)
			r.Post("/stop", h.Stop)
			r.Get("/status", h.Status)
			r.Get("/trackers", h.Trackers)
			r.Post("/trackers", h.CreateTracker)
			r.Patch("/trackers/{symbol}", h.UpdateTracker)
			r.Delete("/trackers/{symbol}", h.DeleteTracker)
			r.Get("/metrics", h.Metrics)
			r.Get("/ledger", h.Ledger)
			r.Post("/ledger", h.AppendLedger)
			r.Get("/cycles", h.Cycles)
		})
	})
	return r
}

// tokenAuth exige "Authorization: Bearer <token>" cuyo bcrypt coincida con hash.
func tokenAuth(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeMessage(w, http.StatusUnauthorized, "authorization header required")
				return
			}
			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
				writeMessage(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Serve escucha en cfg.Addr hasta que ctx se cancele y entonces hace un
// shutdown ordenado.
func Serve(ctx context.Context, cfg Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", cfg.Addr, "auth", cfg.TokenHash != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server.Serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server.Serve: shutdown: %w", err)
	}
	slog.Info("server: stopped")
	return nil
}
