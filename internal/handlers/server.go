package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"magnetd/internal/config"
	"magnetd/internal/core"
	"magnetd/internal/utils"
	"magnetd/internal/websocket"
)

type Server struct {
	config     *config.Config
	manager    *core.Manager
	hub        *websocket.Hub
	logger     *utils.Logger
	httpServer *http.Server
	apiHandler *APIHandler
}

func NewServer(cfg *config.Config, manager *core.Manager, hub *websocket.Hub, logger *utils.Logger) *Server {
	return &Server{
		config:     cfg,
		manager:    manager,
		hub:        hub,
		logger:     logger,
		apiHandler: NewAPIHandler(manager, logger),
	}
}

// Router builds the full route table. Split out from Start so tests can mount
// it on a httptest server.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	// The file route must be registered before the {id} routes so that
	// "file/..." is never captured as a download id.
	api.HandleFunc("/download/file/{path:.*}", s.apiHandler.DownloadFile).Methods("GET")
	api.HandleFunc("/download", s.apiHandler.StartDownload).Methods("POST", "OPTIONS")
	api.HandleFunc("/download/{id}", s.apiHandler.CancelDownload).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/download/{id}/pause", s.apiHandler.PauseDownload).Methods("GET")
	api.HandleFunc("/download/{id}/resume", s.apiHandler.ResumeDownload).Methods("GET")
	api.HandleFunc("/downloads", s.apiHandler.GetDownloads).Methods("GET")
	api.HandleFunc("/files", s.apiHandler.GetFiles).Methods("GET")
	api.HandleFunc("/history", s.apiHandler.GetHistory).Methods("GET")

	router.HandleFunc("/health", s.apiHandler.HealthCheck).Methods("GET")
	router.HandleFunc("/ws", s.hub.HandleWebSocket)

	// Web UI (if present)
	if s.config.App.StaticDir != "" {
		if _, err := os.Stat(s.config.App.StaticDir); err == nil {
			router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.App.StaticDir)))
		} else {
			s.logger.Warn("Static directory %s not found, UI disabled", s.config.App.StaticDir)
		}
	}

	return router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.App.Port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("Starting server on port %d", s.config.App.Port)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware allows browser UIs served from another origin to call the
// API. Preflight requests are answered directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
