package request

import (
	"io"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/internal/selection"
	"go-cane-inspector/pkg/models"
)

func testSelection() *selection.Selection {
	return &selection.Selection{
		File:       selection.File{Name: "leaf.jpg", MIMEType: "image/jpeg", Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}},
		MIMEType:   "image/jpeg",
		SizeBytes:  4,
		Generation: 7,
	}
}

func TestBuild_RequiresSelection(t *testing.T) {
	_, err := Build(nil, models.DefaultParameters())
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeNoSelection))
}

func TestBuild_RejectsInvalidParameters(t *testing.T) {
	for _, p := range []models.AnalysisParameters{
		{ModelType: "classification", ConfidenceThreshold: 0.5},
		{ModelType: models.ModelDetection, ConfidenceThreshold: 1.5},
		{ModelType: models.ModelDetection, ConfidenceThreshold: -0.1},
	} {
		_, err := Build(testSelection(), p)
		require.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation), "params %+v", p)
	}
}

func TestBuild_FreshIDPerRequest(t *testing.T) {
	a, err := Build(testSelection(), models.DefaultParameters())
	require.NoError(t, err)
	b, err := Build(testSelection(), models.DefaultParameters())
	require.NoError(t, err)

	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, uint64(7), a.Selection.Generation)
}

func TestEncode_RoundTripParameters(t *testing.T) {
	cases := []models.AnalysisParameters{
		{ModelType: models.ModelDetection, ConfidenceThreshold: 0.5},
		{ModelType: models.ModelSegmentation, ConfidenceThreshold: 0.25},
		{ModelType: models.ModelDetection, ConfidenceThreshold: 0},
		{ModelType: models.ModelSegmentation, ConfidenceThreshold: 1},
		{ModelType: models.ModelDetection, ConfidenceThreshold: 0.05},
	}

	for _, params := range cases {
		req, err := Build(testSelection(), params)
		require.NoError(t, err)

		body, err := Encode(req)
		require.NoError(t, err)

		mediaType, mp, err := mime.ParseMediaType(body.ContentType)
		require.NoError(t, err)
		require.Equal(t, "multipart/form-data", mediaType)

		form, err := multipart.NewReader(body.Reader, mp["boundary"]).ReadForm(1 << 20)
		require.NoError(t, err)

		got, err := ParametersOf(form.Value)
		require.NoError(t, err)
		require.Equal(t, params, got)

		files := form.File[FieldFile]
		require.Len(t, files, 1)
		require.Equal(t, "leaf.jpg", files[0].Filename)
		require.Equal(t, "image/jpeg", files[0].Header.Get("Content-Type"))

		f, err := files[0].Open()
		require.NoError(t, err)
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		require.Equal(t, req.Selection.File.Data, data)
	}
}

func TestFormatThreshold(t *testing.T) {
	require.Equal(t, "0.5", FormatThreshold(0.5))
	require.Equal(t, "0.25", FormatThreshold(0.25))
	require.Equal(t, "1", FormatThreshold(1))
}

func TestParametersOf_MissingField(t *testing.T) {
	_, err := ParametersOf(map[string][]string{FieldModelType: {"detection"}})
	require.Error(t, err)
}
