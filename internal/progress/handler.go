package progress

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"hls-downloader/internal/platform/logger"
	"hls-downloader/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// Handler exposes download progress over HTTP using go-chi.
type Handler struct {
	tracker *Tracker
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler reading from tracker. m may be nil, in
// which case /metrics is not mounted.
func NewHandler(tracker *Tracker, log *slog.Logger, m *metrics.Metrics) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{tracker: tracker, log: log, metrics: m}
}

// Routes builds the status server router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(h.log))
	r.Use(metrics.RequestMiddleware(h.metrics))
	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			h.metrics.Handler(func() { h.metrics.SetActiveDownloads(h.tracker.ActiveCount()) }).ServeHTTP(w, r)
		})
	}
	r.Get("/progress", h.ListDownloads)
	r.Get("/progress/{download_id}/{rendition}", h.GetRendition)
	return r
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// ListDownloads handles GET /progress.
func (h *Handler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.tracker.Downloads())
}

// GetRendition handles GET /progress/{download_id}/{rendition}.
func (h *Handler) GetRendition(w http.ResponseWriter, r *http.Request) {
	id := DownloadID(chi.URLParam(r, "download_id"))
	rendition := Rendition(chi.URLParam(r, "rendition"))
	if id == "" || rendition == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	snap, ok := h.tracker.Snapshot(id, rendition)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, snap)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write progress response", slog.String("error", err.Error()))
	}
}
