// Package api implements the HTTP handlers for the recommender service.
//
// Routes:
//
//	POST /recommend            → rank jobs for a resume (JSON or text/plain body)
//	POST /admin/reload-index   → rebuild the index snapshot now
//	GET  /admin/index-status   → refresher and snapshot state
//	GET  /health               → liveness plus readiness flag
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"jobmate/recommender-service/internal/recommender"
	"jobmate/recommender-service/internal/refresher"
)

const (
	maxResumeBytes    = 1 << 20
	warmingRetryAfter = "30"
)

// Recommender answers recommendation queries.
type Recommender interface {
	Recommend(ctx context.Context, resumeText string) ([]recommender.Recommendation, error)
}

// Reloader controls and reports on the index refresher.
type Reloader interface {
	TriggerReload(ctx context.Context) error
	Status() refresher.Status
}

// Broadcaster forwards an admin reload to the other replicas.
type Broadcaster interface {
	RequestReload(ctx context.Context) error
}

// ─── Response types ───────────────────────────────────────────────────────────

// RecommendResponse is the body of a successful POST /recommend.
type RecommendResponse struct {
	Count           int                          `json:"count"`
	Recommendations []recommender.Recommendation `json:"recommendations"`
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	rec         Recommender
	reloader    Reloader
	broadcaster Broadcaster
	version     string
	logger      *zap.Logger
}

// NewHandler returns a configured Handler. broadcaster may be nil.
func NewHandler(rec Recommender, reloader Reloader, broadcaster Broadcaster, version string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{rec: rec, reloader: reloader, broadcaster: broadcaster, version: version, logger: logger}
}

// RegisterRoutes mounts all recommender-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/recommend", h.handleRecommend)
	mux.HandleFunc("/admin/reload-index", h.handleReload)
	mux.HandleFunc("/admin/index-status", h.handleStatus)
	mux.HandleFunc("/health", h.handleHealth)
}

// ─── Individual handlers ──────────────────────────────────────────────────────

// handleRecommend handles POST /recommend
func (h *Handler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	text, err := readResume(w, r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	recs, err := h.rec.Recommend(r.Context(), text)
	var ve *recommender.ValidationError
	switch {
	case err == nil:
	case errors.Is(err, recommender.ErrWarmingUp):
		w.Header().Set("Retry-After", warmingRetryAfter)
		jsonWrite(w, http.StatusServiceUnavailable, map[string]string{
			"status": "warming_up",
			"error":  recommender.WarmingUpMessage,
		})
		return
	case errors.As(err, &ve):
		jsonError(w, ve.Msg, http.StatusBadRequest)
		return
	default:
		h.logger.Error("recommend failed", zap.Error(err))
		jsonError(w, "recommendation failed", http.StatusInternalServerError)
		return
	}

	jsonOK(w, RecommendResponse{Count: len(recs), Recommendations: recs})
}

// handleReload handles POST /admin/reload-index
func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.reloader.TriggerReload(r.Context()); err != nil {
		h.logger.Warn("admin reload failed", zap.Error(err))
		code := http.StatusInternalServerError
		if errors.Is(err, refresher.ErrShrinkRejected) || errors.Is(err, refresher.ErrEmptyRebuild) {
			code = http.StatusConflict
		}
		jsonError(w, err.Error(), code)
		return
	}

	if h.broadcaster != nil {
		if err := h.broadcaster.RequestReload(r.Context()); err != nil {
			h.logger.Warn("reload broadcast failed", zap.Error(err))
		}
	}

	st := h.reloader.Status()
	jsonOK(w, map[string]any{
		"status":     "reloaded",
		"snapshotId": st.SnapshotID,
		"jobs":       st.Jobs,
	})
}

// handleStatus handles GET /admin/index-status
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonOK(w, h.reloader.Status())
}

// handleHealth handles GET /health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]any{
		"status":  "ok",
		"service": "recommender-service",
		"version": h.version,
		"ready":   h.reloader.Status().Ready,
	})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// readResume accepts {"resume_text": "..."} or a raw text body.
func readResume(w http.ResponseWriter, r *http.Request) (string, error) {
	body := http.MaxBytesReader(w, r.Body, maxResumeBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		var req struct {
			ResumeText string `json:"resume_text"`
		}
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return "", errors.New("body must be JSON with resume_text")
		}
		return req.ResumeText, nil
	}
	if mediaType != "" && !strings.HasPrefix(mediaType, "text/") {
		return "", errors.New("unsupported content type " + mediaType)
	}

	b, err := io.ReadAll(body)
	if err != nil {
		return "", errors.New("cannot read body")
	}
	return string(b), nil
}

func jsonOK(w http.ResponseWriter, v any) {
	jsonWrite(w, http.StatusOK, v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonWrite(w, code, map[string]string{"error": msg})
}

func jsonWrite(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
