// ABOUTME: HTTP server wiring for the parley conversation service
// ABOUTME: Mounts the REST surface, the /cable subscription channel, and /health

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/store"
)

// Gateway is the HTTP boundary. Everything behind it is plain Go: the store,
// the authorization gate, and the message pipeline are injected at startup.
type Gateway struct {
	addr     string
	gate     *auth.Gate
	service  *conversation.Service
	registry *conversation.Registry
	logger   *slog.Logger

	httpServer *http.Server
}

// New creates a gateway listening on addr. Pass nil logger for default.
func New(addr string, gate *auth.Gate, service *conversation.Service, registry *conversation.Registry, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		addr:     addr,
		gate:     gate,
		service:  service,
		registry: registry,
		logger:   logger.With("component", "gateway"),
	}
	g.httpServer = &http.Server{
		Addr:              addr,
		Handler:           g.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Routes builds the HTTP handler. Exposed for tests.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.Handle("POST /authenticate", g.requireMediaType(http.HandlerFunc(g.handleAuthenticate)))
	mux.Handle("GET /conversations", g.requireMediaType(g.requireAuth(http.HandlerFunc(g.handleListConversations))))
	mux.Handle("POST /conversations", g.requireMediaType(g.requireAuth(http.HandlerFunc(g.handleStartConversation))))
	mux.Handle("GET /conversations/{id}", g.requireMediaType(g.requireAuth(http.HandlerFunc(g.handleGetConversation))))
	mux.Handle("POST /conversations/{id}", g.requireMediaType(g.requireAuth(http.HandlerFunc(g.handleAppendMessage))))
	mux.HandleFunc("GET /cable", g.handleCable)

	return mux
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", g.addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	g.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	g.service.Close()
	return nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requireMediaType rejects requests whose content negotiation does not match
// the JSON:API media type. Runs before authentication so a 415 never leaks
// credential validity.
func (g *Gateway) requireMediaType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !contentTypeMatches(r.Header.Get("Content-Type")) {
			writeError(w, http.StatusUnsupportedMediaType,
				"Unsupported Content-Type",
				fmt.Sprintf("Unsupported Content-Type header: %s", r.Header.Get("Content-Type")))
			return
		}
		if !acceptsMediaType(r.Header.Get("Accept")) {
			writeError(w, http.StatusUnsupportedMediaType,
				"Unsupported Accept header",
				fmt.Sprintf("Unsupported Accept header: %s", r.Header.Get("Accept")))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth resolves the bearer credential and attaches the user to the
// request context. No store mutation happens on the rejected path.
func (g *Gateway) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := bearerCredential(r)
		if credential == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "No token provided")
			return
		}

		user, err := g.gate.Resolve(r.Context(), credential)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token")
				return
			}
			g.logger.Error("credential resolution failed", "error", err)
			writeDomainError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

// bearerCredential extracts the credential from the Authorization header.
// The "Bearer " prefix is optional; the raw header value is accepted too.
func bearerCredential(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return header
}

// requestUser returns the user attached by requireAuth. Handlers behind the
// middleware can rely on it being present.
func requestUser(r *http.Request) *store.User {
	return auth.UserFromContext(r.Context())
}
