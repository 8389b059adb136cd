package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nanato/wp-github-updates/internal/activity"
	"github.com/nanato/wp-github-updates/internal/config"
	"github.com/nanato/wp-github-updates/internal/download"
	"github.com/nanato/wp-github-updates/internal/observe"
	"github.com/nanato/wp-github-updates/internal/store"
	"github.com/nanato/wp-github-updates/internal/wordpress"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	LogFieldRequestID   = "requestId"
	LogFieldHTTPRequest = "httpRequest"
)

type Options struct {
	Store     store.Store
	Hook      *activity.Hook
	Mirror    *download.Mirror
	Observer  observe.Observer
	Activator wordpress.Activator
}

type Server struct {
	router           chi.Router
	log              *logrus.Logger
	store            store.Store
	hook             *activity.Hook
	mirror           *download.Mirror
	observer         observe.Observer
	activator        wordpress.Activator
	config           *config.ServerConfig
	cache            *cache.Cache
	installSemaphore *semaphore.Weighted
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"service": "wp-github-updates",
		"stage":   s.config.Stage,
		"version": s.config.Version,
	})
}

func New(log *logrus.Logger, serverCfg *config.ServerConfig, opts Options) *Server {
	router := chi.NewRouter()
	server := &Server{
		router:           router,
		log:              log,
		store:            opts.Store,
		hook:             opts.Hook,
		mirror:           opts.Mirror,
		observer:         opts.Observer,
		activator:        opts.Activator,
		config:           serverCfg,
		cache:            cache.New(5*time.Minute, 10*time.Minute),
		installSemaphore: semaphore.NewWeighted(1),
	}
	if server.observer == nil {
		server.observer = observe.Logger(log)
	}
	if server.activator == nil {
		server.activator = serverCfg.Activator()
	}
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(server.logMiddleware)
	router.Use(server.recoverMiddleware)

	router.Use(middleware.Timeout(5 * time.Minute))

	router.NotFound(server.notFoundHandler)
	router.MethodNotAllowed(server.methodNotAllowedHandler)

	router.Get("/", server.indexHandler)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(server.authMiddleware)

		r.Get("/connection", server.testConnection)
		r.Get("/settings", server.getSettings)
		r.Put("/settings", server.updateSettings)

		r.Get("/repositories", server.listRepositories)
		r.Post("/repositories", server.addRepository)
		r.Delete("/repositories/{index}", server.removeRepository)

		r.Get("/search", server.searchRepositories)
		r.Get("/lookup/{owner}/{repo}", server.lookupRepository)
		r.Get("/releases/{owner}/{repo}", server.listReleases)
		r.Post("/install", server.installPackage)

		r.Post("/updates/plugins", server.checkPluginUpdates)
		r.Post("/updates/themes", server.checkThemeUpdates)
		r.With(server.cacheMiddleware).Group(func(r chi.Router) {
			r.Get("/info/plugins/{slug}", server.pluginInfo)
			r.Get("/info/themes/{slug}", server.themeInfo)
		})
		r.Post("/packages", server.preDownload)

		r.Get("/logs", server.listLogs)
		r.Delete("/logs", server.clearLogs)
	})

	return server
}
