package models

import (
	"fmt"
	"strings"
)

// ModelType selects which model the analysis endpoint runs
type ModelType string

const (
	ModelDetection    ModelType = "detection"
	ModelSegmentation ModelType = "segmentation"
)

// ParseModelType accepts the wire form of a model type
func ParseModelType(s string) (ModelType, error) {
	switch ModelType(strings.ToLower(strings.TrimSpace(s))) {
	case ModelDetection:
		return ModelDetection, nil
	case ModelSegmentation:
		return ModelSegmentation, nil
	default:
		return "", fmt.Errorf("unknown model type %q (must be one of: detection, segmentation)", s)
	}
}

// DisplayName returns the human-readable analysis type
func (m ModelType) DisplayName() string {
	if m == ModelSegmentation {
		return "Instance Segmentation"
	}
	return "Object Detection"
}

// Status is the overall verdict of an analysis report
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusHealthy, StatusWarning, StatusCritical:
		return true
	}
	return false
}

// Detection is one classified finding within a report
type Detection struct {
	ClassName      string  `json:"class"`
	Confidence     float64 `json:"confidence"`
	Count          int     `json:"count"`
	Severity       string  `json:"severity"`
	Description    string  `json:"description"`
	Recommendation string  `json:"recommendation"`
	Color          string  `json:"color"`
	Icon           string  `json:"icon"`
}

// AnalysisReport is the structured part of an analysis result
type AnalysisReport struct {
	Status          Status      `json:"status"`
	Message         string      `json:"message"`
	ModelType       ModelType   `json:"model_type"`
	TotalDetections int         `json:"total_detections"`
	Detections      []Detection `json:"detections"`
	Recommendations []string    `json:"recommendations"`
}

// AnalysisResult is produced once per successful submission
type AnalysisResult struct {
	RequestID      string         `json:"request_id"`
	AnnotatedImage string         `json:"image"`
	Report         AnalysisReport `json:"analysis"`
}
