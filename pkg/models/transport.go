package models

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

// ParametersRequest is the body of a parameter update on the control surface
type ParametersRequest struct {
	ModelType           string   `json:"model_type" binding:"required"`
	ConfidenceThreshold *float64 `json:"conf_threshold" binding:"required"`
}

// SelectionInfo describes the active selection without its bytes
type SelectionInfo struct {
	FileName      string `json:"file_name"`
	MIMEType      string `json:"mime_type"`
	SizeBytes     int64  `json:"size_bytes"`
	Generation    uint64 `json:"generation"`
	PreviewWidth  int    `json:"preview_width,omitempty"`
	PreviewHeight int    `json:"preview_height,omitempty"`
	Preview       string `json:"preview,omitempty"`
}

// HealthResponse mirrors the analysis server's health probe
type HealthResponse struct {
	Status            string   `json:"status"`
	ModelsAvailable   []string `json:"models_available"`
	DetectionModel    string   `json:"detection_model,omitempty"`
	SegmentationModel string   `json:"segmentation_model,omitempty"`
}
