package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"speechcoach/pkg/analysis"
	"speechcoach/pkg/coach"
	"speechcoach/pkg/errors"
	"speechcoach/pkg/history"

	"github.com/sirupsen/logrus"
)

// maxAnalyzeBody bounds POST /api/analyze request bodies
const maxAnalyzeBody = 1 << 20

var exportContentTypes = map[string]string{
	"json": "application/json",
	"yaml": "application/yaml",
}

// SessionController is the practice-session surface exposed over HTTP
type SessionController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (history.Entry, error)
	Abort(ctx context.Context) error
	Status() coach.Status
}

// API serves the session and history endpoints
type API struct {
	logger     *logrus.Logger
	controller SessionController
	store      history.Store
}

// NewAPI creates the API handlers
func NewAPI(logger *logrus.Logger, controller SessionController, store history.Store) *API {
	return &API{
		logger:     logger,
		controller: controller,
		store:      store,
	}
}

// RegisterHandlers registers all API routes on mux
func (a *API) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/session", a.handleStatus)
	mux.HandleFunc("POST /api/session/start", a.handleStart)
	mux.HandleFunc("POST /api/session/stop", a.handleStop)
	mux.HandleFunc("POST /api/session/abort", a.handleAbort)

	mux.HandleFunc("GET /api/history", a.handleListHistory)
	mux.HandleFunc("GET /api/history/export", a.handleExportHistory)
	mux.HandleFunc("GET /api/history/{id}", a.handleGetEntry)
	mux.HandleFunc("DELETE /api/history/{id}", a.handleDeleteEntry)

	mux.HandleFunc("POST /api/analyze", a.handleAnalyze)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.controller.Status())
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	// the recording outlives this request
	if err := a.controller.Start(context.WithoutCancel(r.Context())); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.controller.Status())
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	entry, err := a.controller.Stop(context.WithoutCancel(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleAbort(w http.ResponseWriter, r *http.Request) {
	if err := a.controller.Abort(r.Context()); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.controller.Status())
}

func (a *API) handleListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := a.store.List(r.Context())
	if err != nil {
		a.writeError(w, r, errors.Wrap(err, "Failed to list history"))
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	exporter, err := history.NewExporter(format)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	entries, err := a.store.List(r.Context())
	if err != nil {
		a.writeError(w, r, errors.Wrap(err, "Failed to list history"))
		return
	}

	contentType := exportContentTypes[exporter.Extension()]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="history.`+exporter.Extension()+`"`)
	if err := exporter.Export(entries, w); err != nil {
		a.logger.WithError(err).Error("Failed to export history")
	}
}

func (a *API) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := a.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.store.Remove(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.logger.WithField("entry_id", id).Info("History entry deleted")
	w.WriteHeader(http.StatusNoContent)
}

type analyzeRequest struct {
	Text string `json:"text"`
}

// handleAnalyze accepts either {"text": "..."} or a plain text body
func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAnalyzeBody))
	if err != nil {
		a.writeError(w, r, errors.NewInvalidInput("request body too large or unreadable"))
		return
	}

	text := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req analyzeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			a.writeError(w, r, errors.NewInvalidInput("invalid JSON body", map[string]interface{}{"error": err.Error()}))
			return
		}
		text = req.Text
	}

	writeJSON(w, http.StatusOK, analysis.Analyze(text))
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"kind":   errors.Kind(err),
	}).Warn("HTTP error response sent")
	errors.WriteError(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
