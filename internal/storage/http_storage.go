package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/internal/selection"
	"go-cane-inspector/pkg/validation"
)

const (
	defaultFetchAttempts = 3
	defaultRetryDelay    = time.Second
)

// HTTPOptions tunes the HTTP image source
type HTTPOptions struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	MaxSize            int64
	Attempts           int
	// RetryDelay is multiplied by the attempt number between retries
	RetryDelay time.Duration
}

// HTTPImageSource fetches images over HTTP(S)
type HTTPImageSource struct {
	client     *http.Client
	validator  *validation.URLValidator
	maxSize    int64
	attempts   int
	retryDelay time.Duration
}

// NewHTTPImageSource creates an HTTP image source
func NewHTTPImageSource(opts HTTPOptions) *HTTPImageSource {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultFetchAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}

	// Connection pooling sized for single image downloads
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
	}

	return &HTTPImageSource{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		validator:  validation.NewURLValidator(),
		maxSize:    sizeLimit(opts.MaxSize),
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
	}
}

// Load downloads the image at location. Transport errors and 5xx responses
// are retried; 4xx responses are not.
func (h *HTTPImageSource) Load(ctx context.Context, location string) (selection.File, error) {
	if err := h.validator.ValidateSourceURL(location); err != nil {
		return selection.File{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return selection.File{}, apperrors.NewValidationError("invalid image URL", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/bmp, image/tiff, */*")
	req.Header.Set("User-Agent", "Go-Cane-Inspector/1.0")

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt < h.attempts; attempt++ {
		resp, err = h.client.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusOK {
			break
		} else {
			resp.Body.Close()
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				lastErr = fmt.Errorf("client error: status code %d", resp.StatusCode)
				resp = nil
				break
			}
			lastErr = fmt.Errorf("server error: status code %d", resp.StatusCode)
		}
		resp = nil

		if attempt < h.attempts-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * h.retryDelay):
			case <-ctx.Done():
				return selection.File{}, apperrors.NewNetworkError("image download aborted", ctx.Err())
			}
		}
	}

	if resp == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("unknown error")
		}
		return selection.File{}, apperrors.NewNetworkError(
			fmt.Sprintf("failed to fetch image after %d attempts", h.attempts), lastErr)
	}
	defer resp.Body.Close()

	if resp.ContentLength > h.maxSize {
		head, _, _ := readLimited(resp.Body, 3072)
		return selection.File{
			Name:         h.name(req.URL),
			MIMEType:     selection.ResolveMIMEType(resp.Header.Get("Content-Type"), head),
			DeclaredSize: resp.ContentLength,
		}, nil
	}

	data, size, err := readLimited(resp.Body, h.maxSize)
	if err != nil {
		return selection.File{}, apperrors.NewNetworkError("failed to download image", err)
	}

	return selection.File{
		Name:         h.name(req.URL),
		MIMEType:     selection.ResolveMIMEType(resp.Header.Get("Content-Type"), data),
		Data:         data,
		DeclaredSize: size,
	}, nil
}

func (h *HTTPImageSource) name(u *url.URL) string {
	return baseName(u.Path, "image")
}
