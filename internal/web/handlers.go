package web

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/podscribe/internal/cache"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/ops"
)

// Computer builds the compute step for a URL. *pipeline.Pipeline implements it.
type Computer interface {
	Compute(url string) cache.ComputeFunc
}

// Handlers contains HTTP route handlers for the transcript API.
type Handlers struct {
	db   *sql.DB
	svc  *cache.Service
	pipe Computer
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, svc *cache.Service, pipe Computer) *Handlers {
	return &Handlers{db: db, svc: svc, pipe: pipe}
}

// ProcessRequest is the body of POST /api/transcripts.
type ProcessRequest struct {
	URL string `json:"url"`
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleList handles GET /api/transcripts.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	result, err := ops.List(r.Context(), h.db, ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleGet handles GET /api/transcripts/{key}?analytics=.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	input := ops.LookupInput{Key: chi.URLParam(r, "key")}
	if v := r.URL.Query().Get("analytics"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, errors.NewInvalidRequest(fmt.Sprintf("analytics must be a boolean, got %q", v)))
			return
		}
		input.Analytics = on
	}

	result, err := ops.Lookup(r.Context(), h.svc, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleDownload handles GET /api/transcripts/{key}/download?format=.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	format, err := ops.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}

	found, err := ops.Lookup(r.Context(), h.svc, ops.LookupInput{Key: chi.URLParam(r, "key")})
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := ops.RenderTranscript(found.Record, format)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(found.Key)))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// HandleProcess handles POST /api/transcripts. Cache hits return 200; fresh
// transcripts return 201.
func (h *Handlers) HandleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, errors.NewInvalidRequest(fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	var compute cache.ComputeFunc
	if h.pipe != nil {
		compute = h.pipe.Compute(req.URL)
	}

	result, err := ops.Process(r.Context(), h.svc, ops.ProcessInput{URL: req.URL, Compute: compute})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Hit {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// HandleForget handles DELETE /api/transcripts/{key}.
func (h *Handlers) HandleForget(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Forget(r.Context(), h.db, ops.ForgetInput{Key: chi.URLParam(r, "key")})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleStats handles GET /api/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Stats(r.Context(), h.db, h.svc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a structured error. INTERNAL errors never carry details.
func writeError(w http.ResponseWriter, err error) {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		e = errors.NewInternal(err)
	}

	errorObj := map[string]any{
		"code":    string(e.Code),
		"message": e.Message,
		"status":  e.Status,
	}
	if e.Code != errors.ErrInternal && e.Details != nil {
		errorObj["details"] = e.Details
	}
	writeJSON(w, e.Status, map[string]any{"error": errorObj})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
