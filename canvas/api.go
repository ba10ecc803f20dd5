package canvas

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/shield"
	"github.com/hazyhaar/domcanvas/viewport"
)

// NewRouter returns the HTTP API for a session. All mutation funnels
// through the Session, which serializes it against the reconciler.
func NewRouter(s *Session, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	for _, mw := range shield.APIStack(s.cfg.HTTPMaxBody, s.cfg.HTTPRateLimit) {
		r.Use(mw)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, map[string]any{
				"status":     "ok",
				"reconciler": s.State().String(),
				"layers":     s.LayerCount(),
			})
		})

		r.Get("/tree", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, s.SerializeTree())
		})

		r.Get("/layers/{id}", func(w http.ResponseWriter, r *http.Request) {
			sub, err := s.SerializeLayer(chi.URLParam(r, "id"))
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, 200, sub)
		})

		r.Post("/layers", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Type     string `json:"type"`
				ParentID string `json:"parentId"`
				Index    *int   `json:"index"`
				Override bool   `json:"override"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if req.ParentID == "" {
				req.ParentID = s.RootID()
			}
			index := -1 // append
			if req.Index != nil {
				index = *req.Index
			}
			created, err := s.CreateLayer(r.Context(), layer.Type(req.Type), req.ParentID, index, editOptions(req.Override)...)
			if err != nil {
				writeErr(w, err)
				return
			}
			sub, err := s.SerializeLayer(created.ID)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, 201, sub)
		})

		r.Delete("/layers/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if err := s.DeleteLayer(r.Context(), id, overrideFromQuery(r)...); err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "deleted", "id": id})
		})

		r.Post("/layers/{id}/move", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ParentID string `json:"parentId"`
				Index    *int   `json:"index"`
				Override bool   `json:"override"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			id := chi.URLParam(r, "id")
			index := -1
			if req.Index != nil {
				index = *req.Index
			}
			if err := s.MoveLayer(r.Context(), id, req.ParentID, index, editOptions(req.Override)...); err != nil {
				writeErr(w, err)
				return
			}
			sub, err := s.SerializeLayer(id)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, 200, sub)
		})

		r.Patch("/layers/{id}", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Key      string          `json:"key"`
				Value    json.RawMessage `json:"value"`
				Override bool            `json:"override"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			var value any
			if len(req.Value) > 0 {
				if err := json.Unmarshal(req.Value, &value); err != nil {
					writeError(w, 400, err)
					return
				}
			}
			id := chi.URLParam(r, "id")
			if err := s.SetProperty(r.Context(), id, req.Key, value, editOptions(req.Override)...); err != nil {
				writeErr(w, err)
				return
			}
			sub, err := s.SerializeLayer(id)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, 200, sub)
		})

		r.Post("/layers/{id}/transform", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				layer.TransformPatch
				Override bool `json:"override"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			id := chi.URLParam(r, "id")
			if err := s.SetTransform(r.Context(), id, req.TransformPatch, editOptions(req.Override)...); err != nil {
				writeErr(w, err)
				return
			}
			tr, err := s.GetTransform(id)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, 200, tr)
		})

		r.Get("/selection", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, map[string]any{"ids": s.SelectedIDs()})
		})

		r.Post("/selection", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ID    string `json:"id"`
				Mode  string `json:"mode"`
				Clear bool   `json:"clear"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if req.Clear {
				s.ClearSelection()
				writeJSON(w, 200, map[string]any{"ids": []string{}})
				return
			}
			if err := s.Select(req.ID, layer.ParseSelectMode(req.Mode)); err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, 200, map[string]any{"ids": s.SelectedIDs()})
		})

		r.Post("/history/undo", func(w http.ResponseWriter, r *http.Request) {
			name, err := s.Undo(r.Context())
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"undone": name})
		})

		r.Post("/history/redo", func(w http.ResponseWriter, r *http.Request) {
			name, err := s.Redo(r.Context())
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"redone": name})
		})

		r.Get("/camera", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, cameraBody(s))
		})

		r.Post("/camera", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Op     string  `json:"op"` // "zoom", "pan", "panBy", "zoomAbout", "fit", "reset"
				Zoom   float64 `json:"zoom"`
				X      float64 `json:"x"`
				Y      float64 `json:"y"`
				Width  float64 `json:"width"`
				Height float64 `json:"height"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			switch req.Op {
			case "zoom":
				s.SetZoom(req.Zoom)
			case "pan":
				s.SetPan(req.X, req.Y)
			case "panBy":
				s.PanBy(req.X, req.Y)
			case "zoomAbout":
				s.ZoomAbout(req.Zoom, viewport.Point{X: req.X, Y: req.Y})
			case "fit":
				s.FitToContent(req.Width, req.Height)
			case "reset":
				s.ResetCamera(req.Width, req.Height)
			default:
				writeError(w, 400, errors.New("canvas: unknown camera op"))
				return
			}
			writeJSON(w, 200, cameraBody(s))
		})

		r.Get("/export/markdown/{id}", func(w http.ResponseWriter, r *http.Request) {
			md, err := s.ExportMarkdown(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"markdown": md})
		})
	})

	return r
}

// requestLogger writes one debug line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("canvas: http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"elapsed", time.Since(start))
		})
	}
}

func editOptions(override bool) []EditOption {
	if override {
		return []EditOption{Override()}
	}
	return nil
}

func overrideFromQuery(r *http.Request) []EditOption {
	return editOptions(r.URL.Query().Get("override") == "true")
}

func cameraBody(s *Session) map[string]float64 {
	zoom, panX, panY := s.CameraState()
	return map[string]float64{"zoom": zoom, "panX": panX, "panY": panY}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	body := map[string]string{"error": err.Error()}
	if reason := layer.Reason(err); reason != "" {
		body["reason"] = reason
	}
	writeJSON(w, code, body)
}

// writeErr maps rejected-operation errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, layer.ErrOrphanReference):
		return 404
	case errors.Is(err, layer.ErrLockedLayerMutation):
		return 423
	case errors.Is(err, layer.ErrCycleDetected), errors.Is(err, layer.ErrInvalidMove):
		return 422
	case errors.Is(err, layer.ErrDuplicateID),
		errors.Is(err, layer.ErrDetachedExternalNode),
		errors.Is(err, layer.ErrNothingToUndo),
		errors.Is(err, layer.ErrNothingToRedo):
		return 409
	}
	return 500
}
