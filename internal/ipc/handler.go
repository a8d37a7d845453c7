// Package ipc provides the HTTP API for the sheet-metal engine.
package ipc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ttsmith21/sheetmetal-engine/internal/classify"
	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry/memory"
	"github.com/ttsmith21/sheetmetal-engine/internal/guard"
	"github.com/ttsmith21/sheetmetal-engine/internal/logging"
	"github.com/ttsmith21/sheetmetal-engine/internal/pipeline"
	"github.com/ttsmith21/sheetmetal-engine/internal/preflight"
	"github.com/ttsmith21/sheetmetal-engine/internal/tracker"
)

// DefaultMaxBodyBytes bounds uploaded part files.
const DefaultMaxBodyBytes = 32 << 20

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Pipeline   *pipeline.Pipeline
	Classifier *classify.Classifier
	Tracker    *tracker.SQLTracker

	// Cache holds classification results keyed by the SHA-256 of the part
	// file. Nil disables caching.
	Cache *lru.Cache[string, domain.ClassificationResult]
	// Guard admits conversions. Nil admits everything.
	Guard *guard.Guard

	MaxBodyBytes int64
	Version      string
	Logger       *zap.Logger
}

// NewHandler creates a Handler with a classification cache of cacheSize
// entries; zero disables the cache.
func NewHandler(p *pipeline.Pipeline, tr *tracker.SQLTracker, cacheSize int, logger *zap.Logger) (*Handler, error) {
	h := &Handler{
		Pipeline:     p,
		Classifier:   p.Classifier,
		Tracker:      tr,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Version:      "dev",
		Logger:       logging.OrNop(logger),
	}
	if cacheSize > 0 {
		c, err := lru.New[string, domain.ClassificationResult](cacheSize)
		if err != nil {
			return nil, err
		}
		h.Cache = c
	}
	return h, nil
}

// HealthResponse is the body for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ConvertRequest is the body for POST /api/v1/convert.
type ConvertRequest struct {
	FilePath      string           `json:"file_path"`
	Configuration string           `json:"configuration"`
	Overrides     domain.Overrides `json:"overrides"`
	Part          json.RawMessage  `json:"part"`
}

// ConvertResponse is the outcome of a conversion run.
type ConvertResponse struct {
	pipeline.Outcome
	Error string `json:"error,omitempty"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: h.Version})
}

// Classify handles POST /api/v1/classify. The body is a part file.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readBody(w, r)
	if !ok {
		return
	}
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])
	if h.Cache != nil {
		if res, ok := h.Cache.Get(key); ok {
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, res)
			return
		}
	}

	m, _, err := memory.Decode(data)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := geometry.PrimaryBody(m)
	if err != nil {
		writeError(w, err)
		return
	}
	res := h.Classifier.Classify(r.Context(), body, m.ThicknessHost())
	if h.Cache != nil && r.Context().Err() == nil {
		h.Cache.Add(key, res)
	}
	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, res)
}

// Preflight handles POST /api/v1/preflight. The body is a part file.
func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readBody(w, r)
	if !ok {
		return
	}
	m, _, err := memory.Decode(data)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := preflight.Check(m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Convert handles POST /api/v1/convert. The run finishes even if the client
// goes away; cancellation stops it between strategies.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var req ConvertRequest
	if err := json.Unmarshal(data, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if len(req.Part) == 0 {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "part is required"})
		return
	}
	m, pf, err := memory.Decode(req.Part)
	if err != nil {
		writeError(w, err)
		return
	}

	cc := &domain.ConversionContext{
		RunID:         uuid.NewString(),
		FilePath:      req.FilePath,
		Configuration: req.Configuration,
		Overrides:     req.Overrides,
	}
	if cc.FilePath == "" {
		cc.FilePath = pf.Name
	}
	if cc.Configuration == "" {
		cc.Configuration = pf.Configuration
	}

	release := func() {}
	if h.Guard != nil {
		release, err = h.Guard.Admit(clientAddr(r), cc.FilePath)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	ch := h.Pipeline.Submit(r.Context(), m, cc)
	select {
	case out := <-ch:
		release()
		resp := ConvertResponse{Outcome: out}
		if out.Err != nil {
			resp.Error = out.Err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	case <-r.Context().Done():
		h.Logger.Info("client left before conversion finished", zap.String("run_id", cc.RunID))
		go func() {
			<-ch
			release()
		}()
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ListProblems handles GET /api/v1/problems?limit=N and
// GET /api/v1/problems?file=PATH.
func (h *Handler) ListProblems(w http.ResponseWriter, r *http.Request) {
	var problems []domain.Problem
	var err error
	if file := r.URL.Query().Get("file"); file != "" {
		problems, err = h.Tracker.ProblemsForFile(r.Context(), file)
	} else {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			parsed, perr := strconv.Atoi(s)
			if perr == nil && parsed > 0 {
				limit = parsed
			}
		}
		problems, err = h.Tracker.RecentProblems(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if problems == nil {
		problems = []domain.Problem{}
	}
	writeJSON(w, http.StatusOK, problems)
}

// LatestClassification handles GET /api/v1/classifications?file=PATH&configuration=NAME.
func (h *Handler) LatestClassification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	file := q.Get("file")
	if file == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "file is required"})
		return
	}
	configuration := q.Get("configuration")
	if configuration == "" {
		configuration = memory.DefaultConfiguration
	}
	rec, err := h.Tracker.LatestClassification(r.Context(), file, configuration)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, APIError{Code: 404, Message: "no classification recorded"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListAttempts handles GET /api/v1/runs/{runID}/attempts.
func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	recs, err := h.Tracker.Attempts(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.AttemptRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, APIError{Code: 413, Message: "request body too large"})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return nil, false
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "empty request body"})
		return nil, false
	}
	return data, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		status := http.StatusInternalServerError
		switch engErr.Code {
		case domain.ErrInvalidPart.Code, domain.ErrNilDocument.Code:
			status = http.StatusBadRequest
		case domain.ErrNoSolidBody.Code:
			status = http.StatusUnprocessableEntity
		case domain.ErrRateLimitExceeded.Code:
			status = http.StatusTooManyRequests
		case domain.ErrDocumentBusy.Code:
			status = http.StatusConflict
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}
