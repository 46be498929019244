package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"nutriscan/monitoring"
	"nutriscan/pipeline"
)

// Inference is the part of the pipeline the handlers need.
type Inference interface {
	Classify(profile pipeline.NutrientProfile) (pipeline.Result, error)
	Check() error
	Policy() pipeline.NegativePolicy
	AssemblerStats() pipeline.AssemblerStats
	Artifacts() (transformKind string, transformWidth int, modelKind string, modelWidth int)
}

// Feed publishes verdicts to WebSocket subscribers.
type Feed interface {
	Publish(event monitoring.VerdictEvent) error
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}

// Handlers carries the dependencies of every route. Feed and Metrics are
// optional.
type Handlers struct {
	Inference Inference
	Feed      Feed
	Metrics   http.Handler
	Logger    *zap.Logger

	validate *validator.Validate
}

// NewHandlers builds the route handlers. A nil logger discards logs.
func NewHandlers(inference Inference, feed Feed, metrics http.Handler, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		Inference: inference,
		Feed:      feed,
		Metrics:   metrics,
		Logger:    logger,
		validate:  newValidator(),
	}
}

// RegisterHandlers mounts the API routes on mux.
func RegisterHandlers(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ArtifactStatus describes one loaded artifact.
type ArtifactStatus struct {
	Kind  string `json:"kind"`
	Width int    `json:"width"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Ready          bool                    `json:"ready"`
	Reason         string                  `json:"reason,omitempty"`
	Transform      ArtifactStatus          `json:"transform"`
	Model          ArtifactStatus          `json:"model"`
	Features       []string                `json:"features"`
	NegativePolicy pipeline.NegativePolicy `json:"negative_policy"`
	Assembler      pipeline.AssemblerStats `json:"assembler"`
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	tKind, tWidth, mKind, mWidth := h.Inference.Artifacts()
	status := StatusResponse{
		Ready:          true,
		Transform:      ArtifactStatus{Kind: tKind, Width: tWidth},
		Model:          ArtifactStatus{Kind: mKind, Width: mWidth},
		Features:       pipeline.FeatureNames(),
		NegativePolicy: h.Inference.Policy(),
		Assembler:      h.Inference.AssemblerStats(),
	}
	if err := h.Inference.Check(); err != nil {
		status.Ready = false
		status.Reason = err.Error()
	}
	respondJSON(w, status)
}

type errorResponse struct {
	Error  string                `json:"error"`
	Reason string                `json:"reason,omitempty"`
	Fields []pipeline.FieldError `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("Failed to encode JSON", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, body errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("Failed to encode JSON", zap.Error(err))
	}
}
