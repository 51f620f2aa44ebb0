package client

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/pkg/models"
)

// Wire shapes use pointers so that absent fields can be told apart from
// zero values.
type wireResponse struct {
	Success  *bool         `json:"success"`
	Error    *string       `json:"error"`
	Image    *string       `json:"image"`
	Analysis *wireAnalysis `json:"analysis"`
}

type wireAnalysis struct {
	Status          *string         `json:"status"`
	Message         *string         `json:"message"`
	ModelType       *string         `json:"model_type"`
	TotalDetections *int            `json:"total_detections"`
	Detections      []wireDetection `json:"detections"`
	Recommendations []string        `json:"recommendations"`
}

type wireDetection struct {
	Class          *string  `json:"class"`
	Confidence     *float64 `json:"confidence"`
	Count          *int     `json:"count"`
	Severity       *string  `json:"severity"`
	Description    *string  `json:"description"`
	Recommendation *string  `json:"recommendation"`
	Color          *string  `json:"color"`
	Icon           *string  `json:"icon"`
}

// parseAnalysisResponse converts a raw endpoint response into a typed result.
// requested is used when the server omits analysis.model_type, which it does
// for images without findings.
func parseAnalysisResponse(statusCode int, body []byte, requested models.ModelType) (*models.AnalysisResult, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apperrors.NewMalformedResponseError(
			fmt.Sprintf("response is not valid JSON (HTTP %d)", statusCode), err)
	}

	if wire.Success == nil {
		return nil, apperrors.NewMalformedResponseError("response has no success flag", nil)
	}

	if !*wire.Success {
		if wire.Error != nil && *wire.Error != "" {
			return nil, apperrors.NewServerError(*wire.Error)
		}
		return nil, apperrors.NewServerError(fmt.Sprintf("analysis failed (HTTP %d %s)", statusCode, http.StatusText(statusCode)))
	}

	if statusCode < 200 || statusCode > 299 {
		return nil, apperrors.NewMalformedResponseError(
			fmt.Sprintf("success response with HTTP status %d", statusCode), nil)
	}
	if wire.Image == nil || *wire.Image == "" {
		return nil, apperrors.NewMalformedResponseError("response has no annotated image", nil)
	}
	if wire.Analysis == nil {
		return nil, apperrors.NewMalformedResponseError("response has no analysis", nil)
	}

	report, err := convertAnalysis(wire.Analysis, requested)
	if err != nil {
		return nil, apperrors.NewMalformedResponseError(err.Error(), nil)
	}

	return &models.AnalysisResult{
		AnnotatedImage: *wire.Image,
		Report:         *report,
	}, nil
}

func convertAnalysis(a *wireAnalysis, requested models.ModelType) (*models.AnalysisReport, error) {
	if a.Status == nil {
		return nil, fmt.Errorf("analysis has no status")
	}
	status := models.Status(*a.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("analysis has unknown status %q", *a.Status)
	}
	if a.Message == nil {
		return nil, fmt.Errorf("analysis has no message")
	}

	// both arrays are always sent, empty when there is nothing to report
	if a.Detections == nil {
		return nil, fmt.Errorf("analysis has no detections list")
	}
	if a.Recommendations == nil {
		return nil, fmt.Errorf("analysis has no recommendations list")
	}

	modelType := requested
	if a.ModelType != nil {
		mt, err := models.ParseModelType(*a.ModelType)
		if err != nil {
			return nil, err
		}
		modelType = mt
	}

	detections := make([]models.Detection, 0, len(a.Detections))
	for i, d := range a.Detections {
		det, err := convertDetection(d)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		detections = append(detections, det)
	}

	total := 0
	if a.TotalDetections != nil {
		total = *a.TotalDetections
	} else {
		for _, d := range detections {
			total += d.Count
		}
	}

	return &models.AnalysisReport{
		Status:          status,
		Message:         *a.Message,
		ModelType:       modelType,
		TotalDetections: total,
		Detections:      detections,
		Recommendations: a.Recommendations,
	}, nil
}

func convertDetection(d wireDetection) (models.Detection, error) {
	switch {
	case d.Class == nil || *d.Class == "":
		return models.Detection{}, fmt.Errorf("missing class")
	case d.Confidence == nil:
		return models.Detection{}, fmt.Errorf("missing confidence")
	case math.IsNaN(*d.Confidence) || *d.Confidence < 0 || *d.Confidence > 100:
		return models.Detection{}, fmt.Errorf("confidence %v out of range [0,100]", *d.Confidence)
	case d.Count == nil:
		return models.Detection{}, fmt.Errorf("missing count")
	case *d.Count < 0:
		return models.Detection{}, fmt.Errorf("negative count %d", *d.Count)
	case d.Severity == nil:
		return models.Detection{}, fmt.Errorf("missing severity")
	case d.Description == nil || d.Recommendation == nil:
		return models.Detection{}, fmt.Errorf("missing description or recommendation")
	case d.Color == nil || d.Icon == nil:
		return models.Detection{}, fmt.Errorf("missing color or icon")
	}

	return models.Detection{
		ClassName:      *d.Class,
		Confidence:     *d.Confidence,
		Count:          *d.Count,
		Severity:       *d.Severity,
		Description:    *d.Description,
		Recommendation: *d.Recommendation,
		Color:          *d.Color,
		Icon:           *d.Icon,
	}, nil
}
