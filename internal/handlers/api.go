package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"magnetd/internal/core"
	"magnetd/internal/database/models"
	"magnetd/internal/engine"
	"magnetd/internal/utils"
)

type APIHandler struct {
	manager *core.Manager
	logger  *utils.Logger
}

func NewAPIHandler(manager *core.Manager, logger *utils.Logger) *APIHandler {
	return &APIHandler{manager: manager, logger: logger}
}

// A helper function to respond with JSON
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to respond with a control-operation failure
func respondFailure(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]interface{}{"success": false, "message": message})
}

// statusFromError maps the error taxonomy onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrInvalidMagnet):
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}

// StartDownload hands a magnet link to the download manager.
func (h *APIHandler) StartDownload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MagnetLink string `json:"magnet_link"`
		SavePath   string `json:"save_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.MagnetLink) == "" {
		respondFailure(w, http.StatusBadRequest, "magnet_link is required")
		return
	}

	id, err := h.manager.StartDownload(r.Context(), req.MagnetLink, req.SavePath)
	if err != nil {
		h.logger.Warn("Failed to start download: %v", err)
		respondFailure(w, statusFromError(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id,
		"message": "Download started",
	})
}

// GetDownloads returns the latest cached snapshot per active download.
func (h *APIHandler) GetDownloads(w http.ResponseWriter, r *http.Request) {
	snapshots := h.manager.Snapshots()
	if snapshots == nil {
		snapshots = []core.Snapshot{}
	}
	respondJSON(w, http.StatusOK, snapshots)
}

// CancelDownload removes a download and deletes its data.
func (h *APIHandler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.CancelDownload(r.Context(), id); err != nil {
		respondFailure(w, statusFromError(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Download cancelled",
	})
}

// PauseDownload suspends a download.
func (h *APIHandler) PauseDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.PauseDownload(r.Context(), id); err != nil {
		respondFailure(w, statusFromError(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Download paused",
	})
}

// ResumeDownload resumes a paused download.
func (h *APIHandler) ResumeDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.ResumeDownload(r.Context(), id); err != nil {
		respondFailure(w, statusFromError(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Download resumed",
	})
}

// GetFiles lists everything in the download directory.
func (h *APIHandler) GetFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.manager.Files()
	if err != nil {
		h.logger.Error("Failed to list files: %v", err)
		respondFailure(w, http.StatusInternalServerError, "Failed to list files")
		return
	}
	if files == nil {
		files = []core.FileInfo{}
	}
	respondJSON(w, http.StatusOK, files)
}

// DownloadFile serves a file from the download directory.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	relPath := mux.Vars(r)["path"]
	fullPath, err := h.manager.FilePath(relPath)
	if err != nil {
		respondFailure(w, http.StatusNotFound, "File not found")
		return
	}

	filename := utils.SanitizeFilename(filepath.Base(fullPath))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, fullPath)
}

// GetHistory returns the most recent rows from the download history.
func (h *APIHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondFailure(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	history, err := h.manager.History(limit)
	if err != nil {
		h.logger.Error("Failed to fetch history: %v", err)
		respondFailure(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	if history == nil {
		history = []models.Download{}
	}
	respondJSON(w, http.StatusOK, history)
}

// HealthCheck reports service, engine and disk health.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.manager.Health()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":           health.Status,
		"engine":           health.Engine,
		"engine_available": health.EngineAvailable,
		"downloads_active": health.ActiveDownloads,
		"disk":             health.Disk,
	})
}
