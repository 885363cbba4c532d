package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/obahamonde/cloudantic/interfaces/http/rest/handlers"
	"github.com/obahamonde/cloudantic/interfaces/http/rest/middleware"
	"github.com/obahamonde/cloudantic/internal/chat"
	"github.com/obahamonde/cloudantic/internal/observability"
	"github.com/obahamonde/cloudantic/internal/service/content"
	"github.com/obahamonde/cloudantic/internal/store"
)

// Router creates and configures the HTTP router
type Router struct {
	content    content.Service
	keyedStore store.KeyedStore
	bridge     *chat.Bridge
	metrics    *observability.Collector
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	contentService content.Service,
	keyedStore store.KeyedStore,
	bridge *chat.Bridge,
	metrics *observability.Collector,
	logger *zap.Logger,
) *Router {
	return &Router{
		content:    contentService,
		keyedStore: keyedStore,
		bridge:     bridge,
		metrics:    metrics,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", rt.healthCheck)
	if rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		postHandler := handlers.NewPostHandler(rt.content, rt.logger)
		r.Post("/post", postHandler.CreatePost)
		r.Get("/post/{user}", postHandler.ListPosts)
		r.Delete("/post/{user}", postHandler.DeletePost)
		r.Get("/namespace/{user}", postHandler.ListNamespaces)

		userHandler := handlers.NewUserHandler(rt.content, rt.logger)
		r.Post("/user", userHandler.ImportUser)
		r.Get("/user/{sub}", userHandler.GetUser)

		uploadHandler := handlers.NewUploadHandler(rt.content, rt.logger)
		r.Post("/upload", uploadHandler.CreateUpload)
		r.Get("/upload/{user}", uploadHandler.ListUploads)

		chatHandler := handlers.NewChatHandler(rt.keyedStore, rt.bridge, rt.logger)
		r.Get("/chat/{user}", chatHandler.Stream)
		r.Get("/chatlist/{user}", chatHandler.History)
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
