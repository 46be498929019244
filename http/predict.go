package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"nutriscan/monitoring"
	"nutriscan/pipeline"
)

// PredictRequest is the body of POST /api/predict.
type PredictRequest struct {
	Nutrients pipeline.NutrientProfile `json:"nutrients"`
	Metadata  pipeline.FoodMetadata    `json:"metadata"`
}

// PredictResponse carries the verdict and the metadata summary.
type PredictResponse struct {
	RequestID  string           `json:"request_id"`
	Label      pipeline.Label   `json:"label"`
	Healthy    bool             `json:"healthy"`
	RawScore   *float64         `json:"raw_score,omitempty"`
	Prediction int              `json:"prediction"`
	Summary    pipeline.Summary `json:"summary"`
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var req PredictRequest
	if err := decodeRequest(r.Body, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error:  "request too large",
				Reason: fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		respondError(w, http.StatusBadRequest, errorResponse{
			Error:  "invalid input",
			Fields: []pipeline.FieldError{bodyFieldError(err)},
		})
		return
	}

	if fields := h.validateMetadata(req); len(fields) > 0 {
		respondError(w, http.StatusBadRequest, errorResponse{Error: "invalid input", Fields: fields})
		return
	}

	result, err := h.Inference.Classify(req.Nutrients)
	if err != nil {
		h.respondClassifyError(w, requestID, err)
		return
	}

	resp := PredictResponse{
		RequestID:  requestID,
		Label:      result.Label,
		Healthy:    result.Healthy(),
		Prediction: result.Prediction,
		Summary:    pipeline.Summarize(req.Metadata),
	}
	if result.Scored {
		score := result.Score
		resp.RawScore = &score
	}

	if h.Feed != nil {
		event := monitoring.VerdictEvent{
			RequestID: requestID,
			Food:      resp.Summary.Name,
			Label:     string(resp.Label),
			RawScore:  resp.RawScore,
		}
		if err := h.Feed.Publish(event); err != nil {
			h.Logger.Warn("Failed to publish verdict", zap.String("request_id", requestID), zap.Error(err))
		}
	}

	respondJSON(w, resp)
}

const unknownFieldPrefix = "json: unknown field "

// decodeRequest reads exactly one JSON object with no unknown keys.
func decodeRequest(body io.Reader, v interface{}) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return err
		}
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

// bodyFieldError names the offending key for unknown fields and reports
// every other decode failure against the body.
func bodyFieldError(err error) pipeline.FieldError {
	msg := err.Error()
	if strings.HasPrefix(msg, unknownFieldPrefix) {
		return pipeline.FieldError{
			Field:  strings.Trim(strings.TrimPrefix(msg, unknownFieldPrefix), `"`),
			Reason: "is not a known field",
		}
	}
	return pipeline.FieldError{Field: "body", Reason: msg}
}

func (h *Handlers) validateMetadata(req PredictRequest) []pipeline.FieldError {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []pipeline.FieldError{{Field: "metadata", Reason: err.Error()}}
	}
	fields := make([]pipeline.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		reason := "must satisfy " + fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		fields = append(fields, pipeline.FieldError{Field: field, Reason: reason})
	}
	return fields
}

func (h *Handlers) respondClassifyError(w http.ResponseWriter, requestID string, err error) {
	var invalid *pipeline.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		respondError(w, http.StatusBadRequest, errorResponse{Error: "invalid input", Fields: invalid.Fields})
	case errors.Is(err, pipeline.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, errorResponse{Error: "invalid input", Reason: err.Error()})
	case pipeline.Unavailable(err):
		h.Logger.Error("Inference unavailable", zap.String("request_id", requestID), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, errorResponse{Error: "inference unavailable", Reason: err.Error()})
	default:
		h.Logger.Error("Classification failed", zap.String("request_id", requestID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
