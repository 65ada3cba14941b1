// Package server exposes edit sessions over a JSON HTTP API.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/photoedit/internal/editor"
	"github.com/MeKo-Tech/photoedit/internal/imageio"
	"github.com/MeKo-Tech/photoedit/internal/overlay"
	"github.com/MeKo-Tech/photoedit/internal/preview"
	"github.com/MeKo-Tech/photoedit/internal/session"
	"github.com/MeKo-Tech/photoedit/internal/space"
)

type Config struct {
	CacheControl string
	MaxUploadMB  int64
	Compression  png.CompressionLevel
}

// API serves the session endpoints.
type API struct {
	sessions *Sessions
	previews *preview.Registry
	presets  map[string]string
	logger   *slog.Logger
	cfg      Config
}

func NewAPI(sessions *Sessions, previews *preview.Registry, presets map[string]string, cfg Config, logger *slog.Logger) *API {
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}
	if presets == nil {
		presets = session.DefaultPresets
	}
	return &API{
		sessions: sessions,
		previews: previews,
		presets:  presets,
		cfg:      cfg,
		logger:   logger,
	}
}

func (a *API) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

// Handler returns the router for all endpoints.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)
	r.Use(withCORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, a.sessions.Status())
	})
	r.Get("/api/presets", a.listPresets)
	r.Get("/previews/{id}", a.servePreview)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", a.createSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.withSession(a.getState))
			r.Delete("/", a.deleteSession)

			r.Post("/image", a.withSession(a.uploadImage))
			r.Get("/image", a.withSession(a.serveImage))
			r.Get("/overlay", a.withSession(a.serveOverlay))

			r.Put("/mode", a.withSession(a.setMode))
			r.Put("/layout", a.withSession(a.setLayout))
			r.Post("/pointer", a.withSession(a.pointer))
			r.Put("/brush", a.withSession(a.setBrush))
			r.Put("/mask", a.withSession(a.loadMask))
			r.Post("/mask/undo", a.withSession(a.simple((*session.Controller).UndoMask)))
			r.Post("/mask/clear", a.withSession(a.simple((*session.Controller).ClearMask)))
			r.Post("/click", a.withSession(a.click))
			r.Put("/instruction", a.withSession(a.setInstruction))
			r.Post("/secondary", a.withSession(a.uploadSecondary))
			r.Put("/crop", a.withSession(a.setCrop))

			r.Post("/submit", a.withSession(a.submit))
			r.Post("/undo", a.withSession(a.simple((*session.Controller).Undo)))
			r.Post("/redo", a.withSession(a.simple((*session.Controller).Redo)))
			r.Post("/reset", a.withSession(a.simple((*session.Controller).Reset)))
			r.Delete("/error", a.withSession(func(w http.ResponseWriter, _ *http.Request, c *session.Controller) {
				c.DismissError()
				a.respond(w, c, nil)
			}))
		})
	})
	return r
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, c *session.Controller)

func (a *API) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := a.sessions.Get(chi.URLParam(r, "id"))
		if errors.Is(err, ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			a.log().Error("failed to load session", "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		h(w, r, c)
	}
}

// simple adapts a controller method without arguments.
func (a *API) simple(fn func(*session.Controller) error) sessionHandler {
	return func(w http.ResponseWriter, _ *http.Request, c *session.Controller) {
		a.respond(w, c, fn(c))
	}
}

// respond writes the session state. User-facing failures are part of the
// state and answered with 200; ErrBusy is 409, malformed input 400.
func (a *API) respond(w http.ResponseWriter, c *session.Controller, err error) {
	var ve *session.ValidationError
	var ee *editor.Error
	switch {
	case err == nil,
		errors.As(err, &ve),
		errors.As(err, &ee),
		errors.Is(err, session.ErrCropFailed):
		writeJSON(w, http.StatusOK, c.State())
	case errors.Is(err, session.ErrBusy):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), State: statePtr(c.State())})
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusNotFound, err)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), State: statePtr(c.State())})
	}
}

type errorBody struct {
	State *session.State `json:"state,omitempty"`
	Error string         `json:"error"`
}

func statePtr(s session.State) *session.State { return &s }

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	c := a.sessions.Create()
	if r.ContentLength != 0 {
		data, err := a.readImage(w, r, "image")
		if err != nil {
			_ = a.sessions.Delete(c.ID())
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := c.Upload(data); err != nil {
			_ = a.sessions.Delete(c.ID())
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	a.log().Info("session started", "session", c.ID())
	writeJSON(w, http.StatusCreated, c.State())
}

func (a *API) getState(w http.ResponseWriter, _ *http.Request, c *session.Controller) {
	writeJSON(w, http.StatusOK, c.State())
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.sessions.Delete(id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) uploadImage(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	data, err := a.readImage(w, r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.respond(w, c, c.Upload(data))
}

func (a *API) uploadSecondary(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	data, err := a.readImage(w, r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.respond(w, c, c.SetSecondary(data))
}

func (a *API) loadMask(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	data, err := a.readImage(w, r, "mask")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	img, _, err := imageio.Decode(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.respond(w, c, c.LoadMask(img))
}

func (a *API) serveImage(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	snap, ok := c.Current()
	if r.URL.Query().Get("which") == "original" {
		snap, ok = c.Original()
	}
	if !ok {
		http.Error(w, "no image", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", a.cfg.CacheControl)
	w.Header().Set("Content-Type", snap.MIMEType)
	if _, err := w.Write(snap.Data); err != nil {
		a.log().Error("failed to write response", "error", err)
	}
}

func (a *API) serveOverlay(w http.ResponseWriter, _ *http.Request, c *session.Controller) {
	snap, ok := c.Current()
	if !ok {
		http.Error(w, "no image", http.StatusNotFound)
		return
	}
	base, _, err := imageio.Decode(snap.Data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out, err := overlay.Render(base, c.MaskLayers()...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data, err := imageio.EncodePNG(out, a.cfg.Compression)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Cache-Control", a.cfg.CacheControl)
	w.Header().Set("Content-Type", imageio.MIMEPNG)
	if _, err := w.Write(data); err != nil {
		a.log().Error("failed to write response", "error", err)
	}
}

func (a *API) setMode(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	a.respond(w, c, c.SetMode(session.Mode(req.Mode)))
}

func (a *API) setLayout(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	var req struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	a.respond(w, c, c.Layout(req.Width, req.Height))
}

type pointerEvent struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (a *API) pointer(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	var req struct {
		Origin *struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"origin"`
		Events []pointerEvent `json:"events"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	origin := orb.Point{}
	if req.Origin != nil {
		origin = orb.Point{req.Origin.X, req.Origin.Y}
	}
	for _, ev := range req.Events {
		p := space.Local(orb.Point{ev.X, ev.Y}, origin)
		var err error
		switch ev.Type {
		case "down":
			err = c.PointerDown(p)
		case "move":
			err = c.PointerMove(p)
		case "up":
			err = c.PointerUp()
		case "leave":
			err = c.PointerLeave()
		default:
			err = fmt.Errorf("unknown pointer event %q", ev.Type)
		}
		if err != nil {
			a.respond(w, c, err)
			return
		}
	}
	a.respond(w, c, nil)
}

func (a *API) setBrush(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	var req struct {
		Size    float64 `json:"size"`
		Erasing bool    `json:"erasing"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	a.respond(w, c, c.SetBrush(req.Size, req.Erasing))
}

func (a *API) click(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	var req struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	a.respond(w, c, c.Click(orb.Point{req.X, req.Y}))
}

func (a *API) setInstruction(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	var req struct {
		Instruction string `json:"instruction"`
		Preset      string `json:"preset"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Preset != "" {
		a.respond(w, c, c.SelectPreset(req.Preset))
		return
	}
	a.respond(w, c, c.SetInstruction(req.Instruction))
}

func (a *API) setCrop(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	var req struct {
		X0  float64 `json:"x0"`
		Y0  float64 `json:"y0"`
		X1  float64 `json:"x1"`
		Y1  float64 `json:"y1"`
		DPR float64 `json:"dpr"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	a.respond(w, c, c.SetCropSelection(space.Rect(req.X0, req.Y0, req.X1, req.Y1), req.DPR))
}

func (a *API) submit(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	start := time.Now()
	// The service call runs to completion even if the client goes away.
	err := c.Submit(context.WithoutCancel(r.Context()))
	a.log().Debug("submit finished", "session", c.ID(), "ms", time.Since(start).Milliseconds(), "error", err)
	if err != nil && !errors.Is(err, session.ErrBusy) && !errors.Is(err, session.ErrClosed) {
		// the failure is in the state's error message
		writeJSON(w, http.StatusOK, c.State())
		return
	}
	a.respond(w, c, err)
}

func (a *API) listPresets(w http.ResponseWriter, _ *http.Request) {
	type preset struct {
		Name        string `json:"name"`
		Instruction string `json:"instruction"`
	}
	names := session.PresetNames(a.presets)
	out := make([]preset, 0, len(names))
	for _, name := range names {
		out = append(out, preset{Name: name, Instruction: a.presets[name]})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) servePreview(w http.ResponseWriter, r *http.Request) {
	item, ok := a.previews.Get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600, immutable")
	w.Header().Set("Content-Type", item.MIMEType)
	if _, err := w.Write(item.Data); err != nil {
		a.log().Error("failed to write response", "error", err)
	}
}

// readImage reads an uploaded image from a multipart field or, for any other
// content type, from the raw body.
func (a *API) readImage(w http.ResponseWriter, r *http.Request, field string) ([]byte, error) {
	limit := a.cfg.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(limit); err != nil {
			return nil, fmt.Errorf("failed to parse upload: %w", err)
		}
		f, _, err := r.FormFile(field)
		if err != nil {
			return nil, fmt.Errorf("missing form field %q: %w", field, err)
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if buf.Len() == 0 {
		return nil, errors.New("empty upload")
	}
	return buf.Bytes(), nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log().Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
