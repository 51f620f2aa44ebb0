package render

import (
	"fmt"
	"math"
	"strconv"

	"go-cane-inspector/pkg/models"
)

// Badge is the fixed presentation of a report status
type Badge struct {
	Status models.Status `json:"status"`
	Label  string        `json:"label"`
	Icon   string        `json:"icon"`
}

// Text joins icon and label the way the badge is displayed
func (b Badge) Text() string {
	return b.Icon + " " + b.Label
}

var badges = map[models.Status]Badge{
	models.StatusHealthy:  {Status: models.StatusHealthy, Label: "Healthy", Icon: "✓"},
	models.StatusWarning:  {Status: models.StatusWarning, Label: "Warning", Icon: "⚠"},
	models.StatusCritical: {Status: models.StatusCritical, Label: "Critical", Icon: "⚠"},
}

// BadgeFor maps a status to its badge; anything not healthy or warning is
// presented as critical.
func BadgeFor(status models.Status) Badge {
	if b, ok := badges[status]; ok {
		return b
	}
	return badges[models.StatusCritical]
}

// DetectionBlock is one rendered finding
type DetectionBlock struct {
	ClassName      string `json:"class"`
	Confidence     string `json:"confidence"`
	Count          string `json:"count"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	Color          string `json:"color"`
	Icon           string `json:"icon"`
}

// DisplayModel is the displayable report. Sections are emitted in field
// order: badge and message, detections, recommendations, footer.
type DisplayModel struct {
	AnnotatedImage  string           `json:"image"`
	Badge           Badge            `json:"badge"`
	Message         string           `json:"message"`
	Detections      []DetectionBlock `json:"detections,omitempty"`
	Recommendations []string         `json:"recommendations,omitempty"`
	Footer          string           `json:"footer"`
}

// HasDetections reports whether the detections section is emitted
func (d DisplayModel) HasDetections() bool { return len(d.Detections) > 0 }

// HasRecommendations reports whether the recommendations section is emitted
func (d DisplayModel) HasRecommendations() bool { return len(d.Recommendations) > 0 }

// Render maps a successful analysis result to its display model
func Render(result models.AnalysisResult) DisplayModel {
	report := result.Report

	dm := DisplayModel{
		AnnotatedImage: result.AnnotatedImage,
		Badge:          BadgeFor(report.Status),
		Message:        report.Message,
		Footer:         "Analysis Type: " + report.ModelType.DisplayName(),
	}

	if len(report.Detections) > 0 {
		dm.Detections = make([]DetectionBlock, 0, len(report.Detections))
		for _, d := range report.Detections {
			dm.Detections = append(dm.Detections, DetectionBlock{
				ClassName:      d.ClassName,
				Confidence:     FormatConfidence(d.Confidence),
				Count:          strconv.Itoa(d.Count),
				Severity:       d.Severity,
				Description:    d.Description,
				Recommendation: d.Recommendation,
				Color:          d.Color,
				Icon:           d.Icon,
			})
		}
	}

	if len(report.Recommendations) > 0 {
		dm.Recommendations = append([]string(nil), report.Recommendations...)
	}

	return dm
}

// FormatConfidence rounds a 0-100 confidence to a whole percentage
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(c)))
}
