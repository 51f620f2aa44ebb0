package request

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"

	"github.com/google/uuid"

	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/internal/selection"
	"go-cane-inspector/pkg/models"
)

// Multipart field names expected by the analysis endpoint
const (
	FieldFile          = "file"
	FieldModelType     = "model_type"
	FieldConfThreshold = "conf_threshold"
)

// AnalysisRequest is built fresh for every submission and never modified
type AnalysisRequest struct {
	ID         string
	Selection  selection.Selection
	Parameters models.AnalysisParameters
}

// Build assembles a request from the active selection and current parameters
func Build(sel *selection.Selection, params models.AnalysisParameters) (AnalysisRequest, error) {
	if sel == nil {
		return AnalysisRequest{}, apperrors.NewNoSelectionError()
	}
	if err := params.Validate(); err != nil {
		return AnalysisRequest{}, apperrors.NewValidationError("invalid analysis parameters", err)
	}
	return AnalysisRequest{
		ID:         uuid.NewString(),
		Selection:  *sel,
		Parameters: params,
	}, nil
}

// FormatThreshold renders the threshold the way a range input reports it
func FormatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Body is an encoded multipart payload
type Body struct {
	ContentType string
	Reader      io.Reader
	Length      int
}

// Encode writes the three-part multipart body for req
func Encode(req AnalysisRequest) (*Body, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldFile, fileName(req)))
	header.Set("Content-Type", req.Selection.MIMEType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(req.Selection.File.Data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}

	if err := w.WriteField(FieldModelType, string(req.Parameters.ModelType)); err != nil {
		return nil, fmt.Errorf("write %s: %w", FieldModelType, err)
	}
	if err := w.WriteField(FieldConfThreshold, FormatThreshold(req.Parameters.ConfidenceThreshold)); err != nil {
		return nil, fmt.Errorf("write %s: %w", FieldConfThreshold, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return &Body{
		ContentType: w.FormDataContentType(),
		Reader:      &buf,
		Length:      buf.Len(),
	}, nil
}

// ParametersOf re-derives parameters from the encoded form values
func ParametersOf(form map[string][]string) (models.AnalysisParameters, error) {
	first := func(key string) (string, error) {
		v := form[key]
		if len(v) == 0 {
			return "", fmt.Errorf("missing form field %q", key)
		}
		return v[0], nil
	}

	rawModel, err := first(FieldModelType)
	if err != nil {
		return models.AnalysisParameters{}, err
	}
	modelType, err := models.ParseModelType(rawModel)
	if err != nil {
		return models.AnalysisParameters{}, err
	}

	rawConf, err := first(FieldConfThreshold)
	if err != nil {
		return models.AnalysisParameters{}, err
	}
	conf, err := strconv.ParseFloat(rawConf, 64)
	if err != nil {
		return models.AnalysisParameters{}, fmt.Errorf("parse %s: %w", FieldConfThreshold, err)
	}

	return models.AnalysisParameters{ModelType: modelType, ConfidenceThreshold: conf}, nil
}

func fileName(req AnalysisRequest) string {
	if req.Selection.File.Name != "" {
		return req.Selection.File.Name
	}
	return "upload"
}
