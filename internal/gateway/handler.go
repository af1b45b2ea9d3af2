package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maptoposter/posterd/internal/model"
	"github.com/maptoposter/posterd/internal/service"
)

const (
	healthService = "maptoposter-api"
	readyService  = "maptoposter"
	maxBodyBytes  = 1 << 20
)

// Dispatcher accepts generation requests without waiting for them.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.GenerationRequest) (service.Ticket, error)
}

// Prober reports whether the generator currently works.
type Prober interface {
	Check(ctx context.Context) service.Readiness
}

type Deps struct {
	Dispatcher Dispatcher
	Prober     Prober
	PosterDir  string
}

type Handler struct {
	dispatcher Dispatcher
	prober     Prober
	posterDir  string
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		dispatcher: d.Dispatcher,
		prober:     d.Prober,
		posterDir:  d.PosterDir,
	}
}

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type generateResponse struct {
	Message    string `json:"message"`
	JobID      string `json:"job_id"`
	Location   string `json:"location"`
	Style      string `json:"style"`
	OutputPath string `json:"output_path"`
}

// Health reports liveness only.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, statusResponse{Status: "ok", Service: healthService})
}

// Ready runs the readiness probe on every call.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	res := h.prober.Check(r.Context())
	if !res.Ready {
		writeDetail(w, r, http.StatusServiceUnavailable, "Not ready: "+res.Detail)
		return
	}
	writeJSON(w, r, http.StatusOK, statusResponse{Status: "ready", Service: readyService})
}

func (h *Handler) PostGenerate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeDetail(w, r, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}
	req, err := decodeRequest(body)
	if err != nil {
		h.invalid(w, r, err)
		return
	}
	h.dispatch(w, r, req.Resolve())
}

// GetGenerate takes location and style from the path and zoom, width and
// height from the query. Blank path segments are rejected.
func (h *Handler) GetGenerate(w http.ResponseWriter, r *http.Request) {
	req := model.PosterRequest{
		Location: model.Ptr(pathParam(r, "location")),
		Style:    model.Ptr(pathParam(r, "style")),
	}
	var fields []FieldError
	for _, p := range []struct {
		name  string
		value string
	}{
		{"location", *req.Location},
		{"style", *req.Style},
	} {
		if strings.TrimSpace(p.value) == "" {
			fields = append(fields, FieldError{Loc: []string{"path", p.name}, Msg: "must not be empty"})
		}
	}
	query := r.URL.Query()
	for _, q := range []struct {
		name     string
		dst      **int
		positive bool
	}{
		{name: "zoom", dst: &req.Zoom},
		{name: "width", dst: &req.Width, positive: true},
		{name: "height", dst: &req.Height, positive: true},
	} {
		raw := query.Get(q.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			fields = append(fields, FieldError{Loc: []string{"query", q.name}, Msg: "value is not a valid integer"})
		case q.positive && n < 1:
			fields = append(fields, FieldError{Loc: []string{"query", q.name}, Msg: "must be >= 1"})
		default:
			*q.dst = model.Ptr(n)
		}
	}
	if len(fields) > 0 {
		h.invalid(w, r, &ValidationError{Fields: fields})
		return
	}
	h.dispatch(w, r, req.Resolve())
}

// GetPoster serves a generated poster by file name.
func (h *Handler) GetPoster(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeDetail(w, r, http.StatusNotFound, "poster not found")
		return
	}
	path := filepath.Join(h.posterDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		writeDetail(w, r, http.StatusNotFound, "poster not found")
		return
	}
	http.ServeFile(w, r, path)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, req model.GenerationRequest) {
	ticket, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		slog.ErrorContext(r.Context(), "dispatching generation", "error", err, "status", status)
		writeDetail(w, r, status, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, generateResponse{
		Message:    "generation started",
		JobID:      ticket.ID,
		Location:   ticket.Request.Location,
		Style:      ticket.Request.Style,
		OutputPath: ticket.OutputPath,
	})
}

func (h *Handler) invalid(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		slog.DebugContext(r.Context(), "rejected request", "error", err)
		writeDetail(w, r, http.StatusUnprocessableEntity, ve.Fields)
		return
	}
	slog.ErrorContext(r.Context(), "validating request", "error", err)
	writeDetail(w, r, http.StatusInternalServerError, err.Error())
}

// pathParam returns the unescaped chi URL parameter. chi matches on the raw
// path when one is set, so the value is still escaped in that case.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return raw
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
