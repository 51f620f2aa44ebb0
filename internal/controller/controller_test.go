package controller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-cane-inspector/internal/client"
	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/internal/observer"
	"go-cane-inspector/internal/request"
	"go-cane-inspector/internal/selection"
	"go-cane-inspector/pkg/models"
	"go-cane-inspector/pkg/validation"
)

type analyzerFunc func(ctx context.Context, req request.AnalysisRequest) (*models.AnalysisResult, error)

func (f analyzerFunc) Submit(ctx context.Context, req request.AnalysisRequest) (*models.AnalysisResult, error) {
	return f(ctx, req)
}

func jpegFile(name string, size int) selection.File {
	data := make([]byte, size)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	return selection.File{Name: name, MIMEType: "image/jpeg", Data: data}
}

func stubPreview(f selection.File) (*selection.Preview, error) {
	return &selection.Preview{DataURI: "data:image/jpeg;base64,AA==", Format: "jpeg", Width: 1, Height: 1}, nil
}

func okResult(status models.Status) *models.AnalysisResult {
	return &models.AnalysisResult{
		AnnotatedImage: "data:image/png;base64,AAAA",
		Report: models.AnalysisReport{
			Status:    status,
			Message:   "Detected 1 issue(s) in the image",
			ModelType: models.ModelDetection,
			Detections: []models.Detection{
				{ClassName: "smut", Confidence: 70, Count: 1, Severity: "medium"},
			},
			Recommendations: []string{"Remove smut whips"},
		},
	}
}

func newController(t *testing.T, a client.Analyzer, opts ...Option) (*Controller, *observer.RecordingObserver) {
	t.Helper()
	pub := observer.NewEventPublisher()
	rec := observer.NewRecordingObserver("rec")
	pub.Subscribe(rec)
	opts = append([]Option{WithPublisher(pub), WithStoreOptions(selection.WithDecoder(stubPreview))}, opts...)
	return New(validation.NewFileValidator(), a, opts...), rec
}

func waitOutcome(t *testing.T, done <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out := <-done:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for submission outcome")
		return Outcome{}
	}
}

func transitions(events []observer.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.EventType == observer.StateChanged {
			out = append(out, ev.From+">"+ev.To)
		}
	}
	return out
}

func TestController_InitialState(t *testing.T) {
	c, _ := newController(t, analyzerFunc(func(context.Context, request.AnalysisRequest) (*models.AnalysisResult, error) {
		t.Fatal("analyzer must not be called")
		return nil, nil
	}))

	require.Equal(t, StateIdle, c.State())
	require.False(t, c.SubmissionEnabled())
	require.Equal(t, models.DefaultParameters(), c.Parameters())

	_, err := c.Submit(context.Background())
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeNoSelection))
}

func TestController_SelectValidFile(t *testing.T) {
	c, rec := newController(t, nil)

	sel, err := c.Select(jpegFile("leaf.jpg", 1024))
	require.NoError(t, err)
	require.Equal(t, uint64(1), sel.Generation)
	require.Equal(t, StateFileSelected, c.State())
	require.True(t, c.SubmissionEnabled())

	snap := c.Snapshot()
	require.NotNil(t, snap.Selection)
	require.Equal(t, "leaf.jpg", snap.Selection.File.Name)
	require.Equal(t, []string{"idle>file_selected"}, transitions(rec.Events()))
}

func TestController_RejectedSelectionChangesNothing(t *testing.T) {
	c, rec := newController(t, nil)

	tests := []struct {
		name    string
		file    selection.File
		errType apperrors.ErrorType
	}{
		{"gif", selection.File{Name: "a.gif", MIMEType: "image/gif", Data: []byte("GIF89a")}, apperrors.ErrorTypeInvalidFileType},
		{"too large", jpegFile("big.jpg", int(validation.MaxFileSize)+1), apperrors.ErrorTypeFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Select(tt.file)
			require.True(t, apperrors.IsType(err, tt.errType), "got %v", err)
			require.Equal(t, StateIdle, c.State())
			require.Nil(t, c.Snapshot().Selection)
		})
	}

	for _, ev := range rec.Events() {
		require.Equal(t, observer.SelectionRejected, ev.EventType)
	}
}

func TestController_BusyWhileAnalyzing(t *testing.T) {
	release := make(chan struct{})
	c, _ := newController(t, analyzerFunc(func(ctx context.Context, req request.AnalysisRequest) (*models.AnalysisResult, error) {
		<-release
		return okResult(models.StatusWarning), nil
	}))

	_, err := c.Select(jpegFile("leaf.jpg", 1024))
	require.NoError(t, err)

	done, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateAnalyzing, c.State())
	require.False(t, c.SubmissionEnabled())

	_, err = c.Submit(context.Background())
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeBusy))

	_, err = c.Select(jpegFile("other.jpg", 10))
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeBusy))
	require.Equal(t, "leaf.jpg", c.Snapshot().Selection.File.Name)

	close(release)
	out := waitOutcome(t, done)
	require.NoError(t, out.Err)
	require.False(t, out.Stale)
	require.Equal(t, StateResultsShown, c.State())

	dm, ok := c.Display()
	require.True(t, ok)
	require.Equal(t, "⚠ Warning", dm.Badge.Text())
}

func TestController_FailureReturnsToPreviousState(t *testing.T) {
	c, rec := newController(t, analyzerFunc(func(context.Context, request.AnalysisRequest) (*models.AnalysisResult, error) {
		return nil, apperrors.NewServerError("Model unavailable")
	}))

	_, err := c.Select(jpegFile("leaf.jpg", 1024))
	require.NoError(t, err)

	done, err := c.Submit(context.Background())
	require.NoError(t, err)
	out := waitOutcome(t, done)

	require.True(t, apperrors.IsType(out.Err, apperrors.ErrorTypeServer))
	require.Equal(t, StateFileSelected, c.State())
	require.True(t, c.SubmissionEnabled())

	appErr, ok := apperrors.As(c.LastError())
	require.True(t, ok)
	require.Equal(t, "Model unavailable", appErr.UserMessage())

	require.Equal(t, []string{
		"idle>file_selected",
		"file_selected>analyzing",
		"analyzing>error",
		"error>file_selected",
	}, transitions(rec.Events()))
}

func TestController_FailedReanalysisKeepsPreviousResult(t *testing.T) {
	var mu sync.Mutex
	fail := false
	c, _ := newController(t, analyzerFunc(func(context.Context, request.AnalysisRequest) (*models.AnalysisResult, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, errors.New("connection reset by peer")
		}
		return okResult(models.StatusCritical), nil
	}))

	_, err := c.Select(jpegFile("leaf.jpg", 1024))
	require.NoError(t, err)
	_, err = c.SubmitAndWait(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateResultsShown, c.State())

	mu.Lock()
	fail = true
	mu.Unlock()

	_, err = c.SubmitAndWait(context.Background())
	require.Error(t, err)
	require.Equal(t, StateResultsShown, c.State())

	dm, ok := c.Display()
	require.True(t, ok)
	require.Equal(t, "⚠ Critical", dm.Badge.Text())

	appErr, ok := apperrors.As(c.LastError())
	require.True(t, ok)
	require.Equal(t, apperrors.ErrorTypeNetwork, appErr.Type)
	require.Equal(t, "Error analyzing image: connection reset by peer", appErr.UserMessage())
}

func TestController_NewSelectionDiscardsResults(t *testing.T) {
	c, _ := newController(t, analyzerFunc(func(context.Context, request.AnalysisRequest) (*models.AnalysisResult, error) {
		return okResult(models.StatusHealthy), nil
	}))

	_, err := c.Select(jpegFile("first.jpg", 1024))
	require.NoError(t, err)
	_, err = c.SubmitAndWait(context.Background())
	require.NoError(t, err)

	_, err = c.Select(jpegFile("second.jpg", 2048))
	require.NoError(t, err)

	require.Equal(t, StateFileSelected, c.State())
	_, ok := c.Display()
	require.False(t, ok)
	require.Nil(t, c.Snapshot().Result)
	require.Nil(t, c.LastError())
}

func TestController_ParametersCapturedAtSubmission(t *testing.T) {
	release := make(chan struct{})
	seen := make(chan models.AnalysisParameters, 1)
	c, _ := newController(t, analyzerFunc(func(ctx context.Context, req request.AnalysisRequest) (*models.AnalysisResult, error) {
		<-release
		seen <- req.Parameters
		return okResult(models.StatusHealthy), nil
	}))

	_, err := c.Select(jpegFile("leaf.jpg", 1024))
	require.NoError(t, err)
	require.NoError(t, c.SetConfidenceThreshold(0.5))

	done, err := c.Submit(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.SetModelType(models.ModelSegmentation))
	require.NoError(t, c.SetConfidenceThreshold(0.9))
	close(release)
	waitOutcome(t, done)

	got := <-seen
	require.Equal(t, models.ModelDetection, got.ModelType)
	require.Equal(t, 0.5, got.ConfidenceThreshold)
	require.Equal(t, models.ModelSegmentation, c.Parameters().ModelType)
}

func TestController_InvalidParametersRejected(t *testing.T) {
	c, _ := newController(t, nil)

	err := c.SetConfidenceThreshold(1.5)
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	err = c.SetModelType("classification")
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	require.Equal(t, models.DefaultParameters(), c.Parameters())
}

func TestController_SubmitTimeout(t *testing.T) {
	c, _ := newController(t, analyzerFunc(func(ctx context.Context, req request.AnalysisRequest) (*models.AnalysisResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), WithSubmitTimeout(50*time.Millisecond))

	_, err := c.Select(jpegFile("leaf.jpg", 1024))
	require.NoError(t, err)

	_, err = c.SubmitAndWait(context.Background())
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))
	require.Equal(t, StateFileSelected, c.State())
}

func TestController_SubmissionOutlivesCallerContext(t *testing.T) {
	release := make(chan struct{})
	c, _ := newController(t, analyzerFunc(func(ctx context.Context, req request.AnalysisRequest) (*models.AnalysisResult, error) {
		select {
		case <-release:
			return okResult(models.StatusHealthy), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	_, err := c.Select(jpegFile("leaf.jpg", 1024))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done, err := c.Submit(ctx)
	require.NoError(t, err)
	cancel()
	close(release)

	out := waitOutcome(t, done)
	require.NoError(t, out.Err)
	require.Equal(t, StateResultsShown, c.State())
}

func TestController_StaleCompletionDiscarded(t *testing.T) {
	c, rec := newController(t, nil)

	sel, err := c.Select(jpegFile("leaf.jpg", 1024))
	require.NoError(t, err)

	old := request.AnalysisRequest{ID: "old", Selection: sel, Parameters: models.DefaultParameters()}
	out := c.complete(7, old, okResult(models.StatusCritical), nil, time.Millisecond)

	require.True(t, out.Stale)
	require.Equal(t, StateFileSelected, c.State())
	_, ok := c.Display()
	require.False(t, ok)

	var discarded int
	for _, ev := range rec.Events() {
		if ev.EventType == observer.StaleResultDiscarded && ev.RequestID == "old" {
			discarded++
		}
	}
	require.Equal(t, 1, discarded)
}

func TestController_SubmissionEnabledMatchesState(t *testing.T) {
	release := make(chan struct{})
	c, _ := newController(t, analyzerFunc(func(context.Context, request.AnalysisRequest) (*models.AnalysisResult, error) {
		<-release
		return okResult(models.StatusHealthy), nil
	}))

	check := func() {
		snap := c.Snapshot()
		want := snap.State != StateIdle && snap.State != StateAnalyzing
		require.Equal(t, want, snap.SubmissionEnabled, "state %s", snap.State)
	}

	check()
	_, err := c.Select(jpegFile("leaf.jpg", 1024))
	require.NoError(t, err)
	check()
	done, err := c.Submit(context.Background())
	require.NoError(t, err)
	check()
	close(release)
	waitOutcome(t, done)
	check()
}

const rustSpotResponse = `{
  "success": true,
  "image": "data:image/png;base64,iVBORw0KGgo=",
  "analysis": {
    "total_detections": 3,
    "status": "warning",
    "message": "Detected 3 issue(s) in the image",
    "model_type": "detection",
    "detections": [
      {"class": "rust_spot", "confidence": 92, "count": 3, "severity": "moderate",
       "description": "Rust pustules on leaf", "recommendation": "Apply fungicide",
       "color": "#f59e0b", "icon": "⚡"}
    ],
    "recommendations": ["Apply targeted pest control measures"]
  }
}`

func TestController_EndToEnd(t *testing.T) {
	const size = 2 << 20
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/analyze", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		require.Equal(t, "detection", r.FormValue(request.FieldModelType))
		require.Equal(t, "0.5", r.FormValue(request.FieldConfThreshold))

		f, fh, err := r.FormFile(request.FieldFile)
		require.NoError(t, err)
		defer f.Close()
		require.Equal(t, "cane.jpg", fh.Filename)
		require.Equal(t, "image/jpeg", fh.Header.Get("Content-Type"))
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		require.Len(t, data, size)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(rustSpotResponse))
	}))
	defer server.Close()

	c, _ := newController(t, client.New(server.URL, client.Options{Timeout: 5 * time.Second}))

	_, err := c.Select(jpegFile("cane.jpg", size))
	require.NoError(t, err)
	require.NoError(t, c.SetParameters(models.AnalysisParameters{ModelType: models.ModelDetection, ConfidenceThreshold: 0.5}))

	result, err := c.SubmitAndWait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, result.Report.TotalDetections)

	dm, ok := c.Display()
	require.True(t, ok)
	require.Equal(t, "⚠ Warning", dm.Badge.Text())
	require.Len(t, dm.Detections, 1)
	require.Equal(t, "rust_spot", dm.Detections[0].ClassName)
	require.Equal(t, "92%", dm.Detections[0].Confidence)
	require.Equal(t, "3", dm.Detections[0].Count)
	require.Equal(t, "Analysis Type: Object Detection", dm.Footer)
}

func TestController_EndToEndServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success": false, "error": "Model unavailable"}`))
	}))
	defer server.Close()

	c, _ := newController(t, client.New(server.URL, client.Options{Timeout: 5 * time.Second}))

	_, err := c.Select(jpegFile("cane.jpg", 4096))
	require.NoError(t, err)

	_, err = c.SubmitAndWait(context.Background())
	require.Error(t, err)

	appErr, ok := apperrors.As(c.LastError())
	require.True(t, ok)
	require.Equal(t, "Model unavailable", appErr.UserMessage())
	require.Equal(t, StateFileSelected, c.State())
	require.True(t, c.SubmissionEnabled())
}

type funcObserver struct {
	name string
	fn   func(observer.Event)
}

func (o funcObserver) OnEvent(ctx context.Context, ev observer.Event) { o.fn(ev) }

func (o funcObserver) GetObserverName() string { return o.name }

func TestController_ObserverMayReadDuringPreviewCompletion(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	var seen State

	pub := observer.NewEventPublisher()
	c := New(validation.NewFileValidator(), analyzerFunc(nil),
		WithPublisher(pub),
		WithStoreOptions(selection.WithDecoder(func(f selection.File) (*selection.Preview, error) {
			<-started
			return stubPreview(f)
		})))

	pub.Subscribe(funcObserver{name: "reader", fn: func(ev observer.Event) {
		if ev.EventType != observer.SelectionAccepted {
			return
		}
		once.Do(func() { close(started) })
		// let the decode finish and contend for the controller first
		time.Sleep(50 * time.Millisecond)
		seen = c.State()
	}})

	selected := make(chan error, 1)
	go func() {
		_, err := c.Select(jpegFile("leaf.jpg", 1024))
		selected <- err
	}()

	select {
	case err := <-selected:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Select did not return while an observer read the controller")
	}
	require.Equal(t, StateFileSelected, seen)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sel, ok, err := c.WaitPreview(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, selection.PreviewReady, sel.PreviewState)
}

func TestController_ConcurrentParameterChangesAreNotLost(t *testing.T) {
	c, _ := newController(t, analyzerFunc(nil))

	for i := 0; i < 200; i++ {
		require.NoError(t, c.SetParameters(models.DefaultParameters()))

		errs := make(chan error, 2)
		go func() { errs <- c.SetModelType(models.ModelSegmentation) }()
		go func() { errs <- c.SetConfidenceThreshold(0.7) }()
		require.NoError(t, <-errs)
		require.NoError(t, <-errs)

		require.Equal(t, models.AnalysisParameters{
			ModelType:           models.ModelSegmentation,
			ConfidenceThreshold: 0.7,
		}, c.Parameters())
	}
}
