package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BartekS5/caregap/internal/config"
	"github.com/BartekS5/caregap/internal/etl"
	"github.com/BartekS5/caregap/internal/preview"
	"github.com/BartekS5/caregap/internal/sheet"
	"github.com/BartekS5/caregap/pkg/logger"
	"github.com/BartekS5/caregap/pkg/models"
)

const maxUploadBytes = 10 << 20

// Handlers contains all HTTP handlers
type Handlers struct {
	systems  *config.Registry
	pipeline *etl.Pipeline
	executor *etl.Executor
	previews *preview.Cache
}

func NewHandlers(systems *config.Registry, pipeline *etl.Pipeline, executor *etl.Executor, previews *preview.Cache) *Handlers {
	return &Handlers{
		systems:  systems,
		pipeline: pipeline,
		executor: executor,
		previews: previews,
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "caregap",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

type systemInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handlers) ListSystems(w http.ResponseWriter, r *http.Request) {
	list := []systemInfo{}
	for _, id := range h.systems.IDs() {
		cfg, err := h.systems.Get(id)
		if err != nil {
			continue
		}
		list = append(list, systemInfo{ID: cfg.ID, Name: cfg.Name})
	}
	respond(w, http.StatusOK, list)
}

// CreatePreview takes a multipart upload: file, systemId and mode
// (merge when omitted).
func (h *Handlers) CreatePreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	systemID := r.FormValue("systemId")
	if systemID == "" {
		respondError(w, http.StatusBadRequest, "systemId is required")
		return
	}
	mode := models.ImportMode(r.FormValue("mode"))
	if mode == "" {
		mode = models.ModeMerge
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	s, err := sheet.ReadCSV(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.pipeline.Preview(r.Context(), etl.PreviewRequest{
		SystemID: systemID,
		Mode:     mode,
		Headers:  s.Headers,
		Rows:     s.Rows,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	respond(w, http.StatusCreated, entry)
}

func (h *Handlers) GetPreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "previewId")
	entry, ok := h.previews.Get(id)
	if !ok {
		writeErr(w, r, &etl.PreviewNotFoundError{ID: id})
		return
	}
	respond(w, http.StatusOK, entry)
}

type extendRequest struct {
	TTLMinutes int `json:"ttlMinutes"`
}

// ExtendPreview refreshes a live preview's expiry. An empty body uses the
// cache default TTL.
func (h *Handlers) ExtendPreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "previewId")

	var req extendRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if !h.previews.ExtendTTL(id, time.Duration(req.TTLMinutes)*time.Minute) {
		writeErr(w, r, &etl.PreviewNotFoundError{ID: id})
		return
	}
	entry, ok := h.previews.Get(id)
	if !ok {
		writeErr(w, r, &etl.PreviewNotFoundError{ID: id})
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"previewId": id,
		"expiresAt": entry.ExpiresAt,
	})
}

func (h *Handlers) DeletePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "previewId")
	respond(w, http.StatusOK, map[string]interface{}{
		"previewId": id,
		"deleted":   h.previews.Delete(id),
	})
}

// ExecutePreview commits a preview. A failed transaction answers 500 with
// the execution result so callers can tell nothing was written.
func (h *Handlers) ExecutePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "previewId")
	result, err := h.executor.Execute(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	respond(w, status, result)
}

func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.previews.Stats())
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, etl.ErrPreviewNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrPreviewInUse):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, config.ErrUnknownSystem),
		errors.Is(err, etl.ErrInvalidMode),
		errors.Is(err, etl.ErrMissingRequiredColumns):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.L().Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]string{"error": message})
}
