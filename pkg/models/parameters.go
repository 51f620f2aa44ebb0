package models

import "fmt"

// DefaultConfidenceThreshold matches the analysis server's own default
const DefaultConfidenceThreshold = 0.25

// AnalysisParameters are read from the controls at submission time
type AnalysisParameters struct {
	ModelType           ModelType `json:"model_type" yaml:"model_type"`
	ConfidenceThreshold float64   `json:"conf_threshold" yaml:"conf_threshold"`
}

// DefaultParameters returns detection at the server's default threshold
func DefaultParameters() AnalysisParameters {
	return AnalysisParameters{
		ModelType:           ModelDetection,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// WithModelType returns a copy using the given model
func (p AnalysisParameters) WithModelType(m ModelType) AnalysisParameters {
	p.ModelType = m
	return p
}

// WithConfidenceThreshold returns a copy using the given threshold
func (p AnalysisParameters) WithConfidenceThreshold(v float64) AnalysisParameters {
	p.ConfidenceThreshold = v
	return p
}

// Validate checks the model type and the [0,1] threshold range
func (p AnalysisParameters) Validate() error {
	if _, err := ParseModelType(string(p.ModelType)); err != nil {
		return err
	}
	// NaN fails both comparisons
	if !(p.ConfidenceThreshold >= 0 && p.ConfidenceThreshold <= 1) {
		return fmt.Errorf("confidence threshold %v out of range [0,1]", p.ConfidenceThreshold)
	}
	return nil
}
