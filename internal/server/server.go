// Package server exposes the HTTP API: video and shopping thumbnail job
// queues, SNS account linking and publishing, and the bundled frontend.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wavalabs/builder/internal/platform/config"
	"github.com/wavalabs/builder/internal/platform/timeouts"
	"github.com/wavalabs/builder/internal/services/shopping"
	"github.com/wavalabs/builder/internal/services/sns"
	"github.com/wavalabs/builder/internal/services/video"
)

// RunnerFactory builds a shopping pipeline runner for one job's credentials.
// It returns nil when the keys are insufficient for the real pipeline, which
// routes the job to the mock.
type RunnerFactory func(geminiKey, replicateToken, naverClientID, naverClientSecret string) shopping.Runner

// Config carries everything the HTTP layer needs.
type Config struct {
	App           config.App
	VideoQueue    *video.Queue
	ShoppingQueue *shopping.Queue
	BuildRunner   RunnerFactory
	SNS           *sns.Service
	StateSigner   *sns.StateSigner
}

// Server hosts the HTTP API and frontend.
type Server struct {
	cfg        Config
	httpServer *http.Server
}

// New validates config and constructs the server.
func New(cfg Config) (*Server, error) {
	if cfg.VideoQueue == nil {
		return nil, errors.New("video queue is required")
	}
	if cfg.ShoppingQueue == nil {
		return nil, errors.New("shopping queue is required")
	}
	s := &Server{cfg: cfg}
	s.httpServer = &http.Server{
		Addr:              cfg.App.Addr(),
		Handler:           withCORS(withTracing(s.routes())),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return s, nil
}

// Handler returns the composed HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe serves HTTP traffic until context cancellation or server
// failure.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	log.Printf("wava server listening at http://%s", s.httpServer.Addr)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close closes open server resources.
func (s *Server) Close() {
	if s == nil || s.httpServer == nil {
		return
	}
	_ = s.httpServer.Close()
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleFrontend)
	mux.HandleFunc("GET /index.html", s.handleFrontend)
	mux.HandleFunc("GET /shopping", s.handleFrontend)

	mux.HandleFunc("POST /api/video/jobs", s.handleVideoCreate)
	mux.HandleFunc("GET /api/video/jobs/{jobID}", s.handleVideoGet)

	mux.HandleFunc("POST /api/shopping/thumbnail/jobs", s.handleShoppingCreate)
	mux.HandleFunc("GET /api/shopping/thumbnail/jobs/{jobID}", s.handleShoppingGet)
	mux.HandleFunc("GET /api/shopping/thumbnail/jobs/{jobID}/result", s.handleShoppingResult)

	mux.HandleFunc("GET /api/sns/connections", s.handleSNSConnections)
	mux.HandleFunc("GET /api/sns/auth/{platform}", s.handleSNSAuth)
	mux.HandleFunc("GET /api/sns/callback/{platform}", s.handleSNSCallback)
	mux.HandleFunc("POST /api/sns/disconnect/{connectionID}", s.handleSNSDisconnect)
	mux.HandleFunc("POST /api/sns/post", s.handleSNSPost)
	mux.HandleFunc("GET /api/sns/schedule", s.handleScheduleList)
	mux.HandleFunc("POST /api/sns/schedule", s.handleScheduleAdd)
	mux.HandleFunc("DELETE /api/sns/schedule/{itemID}", s.handleScheduleDelete)
	mux.HandleFunc("GET /api/sns/schedule/suggested-times", s.handleSuggestedTimes)
	mux.HandleFunc("GET /api/sns/insights", s.handleInsightsAll)
	mux.HandleFunc("POST /api/sns/insights/report", s.handleInsightsReport)
	mux.HandleFunc("GET /api/sns/insights/{connectionID}", s.handleInsights)
	mux.HandleFunc("GET /api/sns/posts", s.handleSNSPosts)
	mux.HandleFunc("GET /api/sns/comments", s.handleSNSComments)
	mux.HandleFunc("POST /api/sns/comments/reply", s.handleCommentReply)
	mux.HandleFunc("POST /api/sns/comments/ai-reply", s.handleCommentAIReply)
	mux.HandleFunc("POST /api/sns/comments/ai-private-reply", s.handleCommentAIPrivateReply)

	return mux
}

// withCORS allows any origin. The frontend may be opened from file://,
// which sends Origin "null", so that is treated like any other origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Expose-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withTracing(next http.Handler) http.Handler {
	tracer := otel.Tracer("wava/server")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// baseURL reconstructs the externally visible origin of the request.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
