package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/taskforge-ai/taskforge/internal/agent"
	"github.com/taskforge-ai/taskforge/internal/config"
	"github.com/taskforge-ai/taskforge/internal/decompose"
	"github.com/taskforge-ai/taskforge/internal/dispatch"
	"github.com/taskforge-ai/taskforge/internal/eventbus"
	"github.com/taskforge-ai/taskforge/internal/pushnotification"
	"github.com/taskforge-ai/taskforge/internal/task"
	"github.com/taskforge-ai/taskforge/pkg/cerr"
	"github.com/taskforge-ai/taskforge/pkg/clog"
)

type Server struct {
	server *http.Server

	env         *config.Env
	engine      *decompose.Engine
	registry    *agent.Registry
	dispatcher  *dispatch.Dispatcher
	taskRepo    task.Repository
	pushService *pushnotification.Service
	bus         *eventbus.Bus
}

func NewServer(
	env *config.Env,
	engine *decompose.Engine,
	registry *agent.Registry,
	dispatcher *dispatch.Dispatcher,
	taskRepo task.Repository,
	pushService *pushnotification.Service,
	bus *eventbus.Bus,
) *Server {
	return &Server{
		env:         env,
		engine:      engine,
		registry:    registry,
		dispatcher:  dispatcher,
		taskRepo:    taskRepo,
		pushService: pushService,
		bus:         bus,
	}
}

// streamingPath reports whether the request holds a long-lived connection
// whose access log line would only appear at disconnect.
func streamingPath(r *http.Request) bool {
	p := r.URL.Path
	return p == "/api/events" || strings.HasSuffix(p, "/stream") || strings.HasSuffix(p, "/ws")
}

// ListenAndServe starts the HTTP server. The provided context is the base
// context for all incoming requests, so cancelling it also cancels the SSE
// and websocket streams and shutdown does not wait for them.
func (s *Server) ListenAndServe(ctx context.Context) error {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(clog.WithChiFilter(func(r *http.Request) bool {
				return !streamingPath(r)
			})),
		)

		// Streaming endpoints write directly and skip the JSON renderer.
		r.Get("/events", s.handleEvents)
		r.Get("/agents/{agentID}/stream", s.handleAgentStream)
		r.Get("/agents/{agentID}/ws", s.handleAgentWS)

		r.Group(func(r chi.Router) {
			r.Use(cerr.NewJSONResponseChiMiddleware())

			r.Post("/decompose", s.handleDecompose)
			r.Get("/tasks", s.handleListTasks)
			r.Get("/tasks/{taskID}", s.handleGetTask)
			r.Patch("/tasks/{taskID}", s.handleUpdateTaskStatus)

			r.Post("/agents", s.handleRegisterAgent)
			r.Get("/agents", s.handleListAgents)
			r.Get("/agents/{agentID}", s.handleGetAgent)
			r.Delete("/agents/{agentID}", s.handleUnregisterAgent)
			r.Post("/agents/{agentID}/heartbeat", s.handleHeartbeat)
			r.Post("/agents/{agentID}/tasks", s.handleEnqueueTask)
			r.Get("/agents/{agentID}/tasks", s.handlePollTasks)
			r.Delete("/agents/{agentID}/tasks/{assignmentID}", s.handleRemoveAssignment)

			r.Post("/dispatch", s.handleDispatch)

			r.Get("/push/vapid-key", s.handleVAPIDKey)
			r.Post("/push/subscriptions", s.handleRegisterPush)
			r.Delete("/push/subscriptions", s.handleUnregisterPush)
			r.Delete("/push/subscriptions/{subscriptionID}", s.handleDeletePushSubscription)
			r.Post("/push/test", s.handleTestPush)

			r.NotFound(func(w http.ResponseWriter, r *http.Request) {
				cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
			})
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)

	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health stays unauthenticated for load balancer probes.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.Header.Get("Authorization")
			if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
				apiKey = apiKey[7:]
			}
		}
		if apiKey != s.env.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
