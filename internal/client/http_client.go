package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/internal/logger"
	"go-cane-inspector/internal/request"
	"go-cane-inspector/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	analyzePath = "/api/analyze"
	healthPath  = "/api/health"

	// DefaultMaxResponseBytes bounds the JSON body; the annotated image is
	// inlined as a base64 data URI.
	DefaultMaxResponseBytes int64 = 64 * 1024 * 1024
)

// Analyzer submits analysis requests
type Analyzer interface {
	Submit(ctx context.Context, req request.AnalysisRequest) (*models.AnalysisResult, error)
}

// Options tunes the HTTP client
type Options struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	MaxResponseBytes   int64
	UserAgent          string
}

// HTTPClient talks to the analysis endpoint
type HTTPClient struct {
	baseURL          string
	client           *http.Client
	maxResponseBytes int64
	userAgent        string
}

// New creates a client for the analysis server at baseURL
func New(baseURL string, opts Options) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Go-Cane-Inspector/1.0"
	}

	// Single in-flight upload; a small idle pool is enough
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 16 * 1024,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		maxResponseBytes: opts.MaxResponseBytes,
		userAgent:        opts.UserAgent,
	}
}

// Submit performs exactly one multipart POST. Transport failures, including
// timeouts and cancellation, are network errors.
func (c *HTTPClient) Submit(ctx context.Context, req request.AnalysisRequest) (*models.AnalysisResult, error) {
	body, err := request.Encode(req)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, body.Reader)
	if err != nil {
		return nil, apperrors.NewInternalError("invalid analysis endpoint", err)
	}
	httpReq.ContentLength = int64(body.Length)
	httpReq.Header.Set("Content-Type", body.ContentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", req.ID)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, networkError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, networkError(ctx, err)
	}
	if int64(len(data)) > c.maxResponseBytes {
		return nil, apperrors.NewMalformedResponseError(
			fmt.Sprintf("response exceeds %d bytes", c.maxResponseBytes), nil)
	}

	logger.WithFields(logrus.Fields{
		"request_id":  req.ID,
		"status_code": resp.StatusCode,
		"bytes":       len(data),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Analysis response received")

	result, err := parseAnalysisResponse(resp.StatusCode, data, req.Parameters.ModelType)
	if err != nil {
		return nil, err
	}
	result.RequestID = req.ID
	return result, nil
}

// Health queries the analysis server's health probe
func (c *HTTPClient) Health(ctx context.Context) (*models.HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("invalid analysis endpoint", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, networkError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewServerError(fmt.Sprintf("health check failed: HTTP %d", resp.StatusCode))
	}

	var health models.HealthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&health); err != nil {
		return nil, apperrors.NewMalformedResponseError("health response is not valid JSON", err)
	}
	return &health, nil
}

func networkError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewNetworkError("analysis request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.NewNetworkError("analysis request aborted", err)
	}
	return apperrors.NewNetworkError("analysis request failed", err)
}
