package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-cane-inspector/internal/config"
	"go-cane-inspector/internal/controller"
	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/internal/factory"
	"go-cane-inspector/internal/logger"
	"go-cane-inspector/internal/observer"
	"go-cane-inspector/internal/render"
	"go-cane-inspector/internal/request"
	"go-cane-inspector/internal/selection"
	"go-cane-inspector/pkg/models"
)

// HealthChecker probes the analysis server
type HealthChecker interface {
	Health(ctx context.Context) (*models.HealthResponse, error)
}

// StateResponse is the control surface view of the controller
type StateResponse struct {
	State             controller.State          `json:"state"`
	SubmissionEnabled bool                      `json:"submission_enabled"`
	Selection         *models.SelectionInfo     `json:"selection,omitempty"`
	Parameters        models.AnalysisParameters `json:"parameters"`
	LastError         *models.ErrorResponse     `json:"last_error,omitempty"`
	Display           *render.DisplayModel      `json:"display,omitempty"`
}

// SourceRequest selects an image by location instead of upload
type SourceRequest struct {
	Location string `json:"location" binding:"required"`
}

// Deps are the collaborators the control surface drives
type Deps struct {
	Controller *controller.Controller
	Metrics    *observer.MetricsObserver
	Sources    factory.SourceFactory
	Health     HealthChecker
}

type handler struct {
	Deps
	cfg *config.Config
}

func NewHandler(deps Deps, cfg *config.Config) http.Handler {
	h := &handler{Deps: deps, cfg: cfg}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", h.healthCheck)

	api := r.Group("/api")
	api.GET("/state", h.getState)
	api.POST("/selection", h.selectImage)
	api.PUT("/parameters", h.setParameters)
	api.POST("/analyze", h.analyze)
	api.GET("/report", h.report)
	api.GET("/metrics", h.metrics)

	return r
}

func (h *handler) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status":   "available",
		"version":  "1.0.0",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"endpoint": h.cfg.Endpoint,
	}

	if h.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if remote, err := h.Health.Health(ctx); err != nil {
			resp["analysis_server"] = gin.H{"status": "unreachable", "error": err.Error()}
		} else {
			resp["analysis_server"] = remote
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, stateResponse(h.Controller.Snapshot()))
}

func (h *handler) selectImage(c *gin.Context) {
	var (
		file selection.File
		err  error
	)
	if c.ContentType() == gin.MIMEJSON {
		file, err = h.loadFromSource(c)
	} else {
		file, err = h.readUpload(c)
	}
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to read image", err)
		return
	}

	sel, err := h.Controller.Select(file)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "image rejected", err)
		return
	}

	logger.WithFields(logrus.Fields{
		"file_name":  sel.File.Name,
		"mime_type":  sel.MIMEType,
		"size_bytes": sel.SizeBytes,
		"generation": sel.Generation,
	}).Info("Image selected via control surface")

	c.JSON(http.StatusOK, stateResponse(h.Controller.Snapshot()))
}

func (h *handler) readUpload(c *gin.Context) (selection.File, error) {
	fh, err := c.FormFile(request.FieldFile)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return selection.File{}, apperrors.NewFileTooLargeError(maxErr.Limit+1, h.cfg.MaxFileSize)
		}
		return selection.File{}, apperrors.NewValidationError("multipart field \"file\" is required", err)
	}

	f, err := fh.Open()
	if err != nil {
		return selection.File{}, apperrors.NewInternalError("failed to open upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.cfg.MaxFileSize+1))
	if err != nil {
		return selection.File{}, apperrors.NewInternalError("failed to read upload", err)
	}

	return selection.File{
		Name:         fh.Filename,
		MIMEType:     selection.ResolveMIMEType(fh.Header.Get("Content-Type"), data),
		Data:         data,
		DeclaredSize: fh.Size,
	}, nil
}

func (h *handler) loadFromSource(c *gin.Context) (selection.File, error) {
	if h.Sources == nil {
		return selection.File{}, apperrors.NewValidationError("loading by location is not enabled", nil)
	}

	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return selection.File{}, apperrors.NewValidationError("invalid request format", err)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.ImageFetchTimeout)
	defer cancel()

	logger.WithField("location", req.Location).Debug("Loading image from source")
	return factory.Load(ctx, h.Sources, req.Location)
}

func (h *handler) setParameters(c *gin.Context) {
	var req models.ParametersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	modelType, err := models.ParseModelType(req.ModelType)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid parameters", apperrors.NewValidationError(err.Error(), err))
		return
	}

	params := models.AnalysisParameters{ModelType: modelType, ConfidenceThreshold: *req.ConfidenceThreshold}
	if err := h.Controller.SetParameters(params); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "invalid parameters", err)
		return
	}

	c.JSON(http.StatusOK, stateResponse(h.Controller.Snapshot()))
}

func (h *handler) analyze(c *gin.Context) {
	if c.Query("wait") != "true" {
		if _, err := h.Controller.Submit(c.Request.Context()); err != nil {
			respondError(c, apperrors.GetStatusCode(err), "cannot submit", err)
			return
		}
		c.JSON(http.StatusAccepted, stateResponse(h.Controller.Snapshot()))
		return
	}

	startTime := time.Now()
	if _, err := h.Controller.SubmitAndWait(c.Request.Context()); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "analysis failed", err)
		return
	}

	logger.WithField("processing_time_ms", time.Since(startTime).Milliseconds()).
		Info("Image analysis completed via control surface")

	c.JSON(http.StatusOK, stateResponse(h.Controller.Snapshot()))
}

func (h *handler) report(c *gin.Context) {
	dm, ok := h.Controller.Display()
	if !ok {
		respondError(c, http.StatusNotFound, "no report", apperrors.NewNoResultsError())
		return
	}

	format := c.DefaultQuery("format", "text")
	formatter, err := render.NewFormatter(format, render.Options{IncludeImage: c.Query("image") == "true"})
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid format", apperrors.NewValidationError(err.Error(), err))
		return
	}

	out, err := formatter.Format(*dm)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "render failed", err)
		return
	}

	c.Data(http.StatusOK, contentTypeFor(format), out)
}

func (h *handler) metrics(c *gin.Context) {
	if h.Metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, h.Metrics.GetMetrics())
}

func stateResponse(snap controller.Snapshot) StateResponse {
	resp := StateResponse{
		State:             snap.State,
		SubmissionEnabled: snap.SubmissionEnabled,
		Parameters:        snap.Parameters,
		Display:           snap.Display,
	}

	if sel := snap.Selection; sel != nil {
		info := &models.SelectionInfo{
			FileName:   sel.File.Name,
			MIMEType:   sel.MIMEType,
			SizeBytes:  sel.SizeBytes,
			Generation: sel.Generation,
			Preview:    sel.PreviewDataURI(),
		}
		if sel.Preview != nil {
			info.PreviewWidth = sel.Preview.Width
			info.PreviewHeight = sel.Preview.Height
		}
		resp.Selection = info
	}

	if snap.LastError != nil {
		resp.LastError = errorResponse(snap.LastError)
	}
	return resp
}

func contentTypeFor(format string) string {
	switch strings.ToLower(format) {
	case "json":
		return "application/json; charset=utf-8"
	case "markdown", "md":
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}).Debug("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) *models.ErrorResponse {
	resp := &models.ErrorResponse{Error: err.Error(), Message: err.Error()}
	if appErr, ok := apperrors.As(err); ok {
		resp.Error = http.StatusText(appErr.StatusCode)
		resp.Type = string(appErr.Type)
		resp.Message = appErr.UserMessage()
	}
	return resp
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	resp := errorResponse(err)
	resp.Error = http.StatusText(code)
	c.AbortWithStatusJSON(code, resp)
}
