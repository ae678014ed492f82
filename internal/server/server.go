// Package server provides HTTP server initialization and lifecycle
// management for the Mira API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/mira-notes/mira/internal/config"
	"github.com/mira-notes/mira/internal/reasoning"
	"github.com/mira-notes/mira/internal/sse"
	"github.com/mira-notes/mira/internal/tasks"
	"github.com/mira-notes/mira/web/handlers"
)

// Deps carries the wired services the server exposes.
type Deps struct {
	Engine      *reasoning.Engine
	Tasks       *tasks.Service
	Broadcaster *sse.Broadcaster
	Breaker     handlers.Breaker
	Queue       handlers.QueueLenGetter
}

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start initializes and starts the HTTP server. Returns the actual address
// being listened on (useful for testing with port 0). The server shuts
// down gracefully when ctx is canceled.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, error) {
	mux := http.NewServeMux()

	// Rate limiter (10 req/sec, burst of 20).
	rateLimiter := handlers.NewRateLimiter(10.0, 20)

	notesHandlers := handlers.NewNotesHandlers(deps.Engine, deps.Broadcaster)
	tasksHandlers := handlers.NewTasksHandlers(deps.Tasks)
	statsHandlers := handlers.NewStatsHandlers(deps.Engine, deps.Queue, deps.Breaker)

	// API routes (require auth in production mode).
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/v3/notes/enhance", notesHandlers.EnhanceNote)
	apiMux.HandleFunc("GET /api/v3/tasks", tasksHandlers.ListTasks)
	apiMux.HandleFunc("POST /api/v3/tasks", tasksHandlers.CreateTask)
	apiMux.HandleFunc("POST /api/v3/tasks/{id}/complete", tasksHandlers.CompleteTask)
	apiMux.HandleFunc("GET /api/v3/stats", statsHandlers.GetStats)
	apiMux.HandleFunc("POST /api/v3/admin/breaker", statsHandlers.PostBreaker)

	// Health endpoint, no auth required.
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","version":"3.0.0"}`))
	})

	// SSE endpoint is registered outside the auth-required prefix so
	// browsers can watch progress without carrying the API token.
	mux.HandleFunc("GET /api/v3/notes/{id}/events", notesHandlers.NoteEvents)

	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("ERROR: server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("ERROR: server shutdown error: %v", err)
		}
	}()

	return actualAddr, nil
}
