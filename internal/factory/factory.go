package factory

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/internal/selection"
	"go-cane-inspector/internal/storage"
)

// SourceType represents the kind of location an image is loaded from
type SourceType string

const (
	// LocalSource for paths on the local file system
	LocalSource SourceType = "local"
	// HTTPSource for http(s) URLs
	HTTPSource SourceType = "http"
	// AzureSource for Azure blob storage
	AzureSource SourceType = "azure"
)

const azureBlobHostSuffix = ".blob.core.windows.net"

// SourceFactory creates image sources
type SourceFactory interface {
	CreateSource(sourceType SourceType) (storage.ImageSource, error)
	// Resolve picks the source type for a location
	Resolve(location string) SourceType
}

// Options configures the sources built by the factory
type Options struct {
	MaxSize int64
	HTTP    storage.HTTPOptions
	Azure   storage.AzureOptions
}

// sourceFactory implements SourceFactory, building each source once
type sourceFactory struct {
	opts Options

	mu      sync.Mutex
	sources map[SourceType]storage.ImageSource
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(opts Options) SourceFactory {
	return &sourceFactory{opts: opts, sources: make(map[SourceType]storage.ImageSource)}
}

// CreateSource creates a source based on the specified type
func (f *sourceFactory) CreateSource(sourceType SourceType) (storage.ImageSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if src, ok := f.sources[sourceType]; ok {
		return src, nil
	}

	var src storage.ImageSource
	switch sourceType {
	case LocalSource:
		src = storage.NewLocalSource(f.opts.MaxSize)
	case HTTPSource:
		httpOpts := f.opts.HTTP
		httpOpts.MaxSize = f.opts.MaxSize
		src = storage.NewHTTPImageSource(httpOpts)
	case AzureSource:
		azureOpts := f.opts.Azure
		azureOpts.MaxSize = f.opts.MaxSize
		blob, err := storage.NewAzureBlobSource(azureOpts)
		if err != nil {
			return nil, err
		}
		src = blob
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported source type: %s", sourceType), nil)
	}

	f.sources[sourceType] = src
	return src, nil
}

// Resolve maps azblob:// to Azure, http(s) to HTTP unless it points at the
// configured storage account, and everything else to the local file system.
func (f *sourceFactory) Resolve(location string) SourceType {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// single letter schemes are Windows drive letters
		return LocalSource
	}

	switch strings.ToLower(u.Scheme) {
	case storage.BlobScheme:
		return AzureSource
	case "http", "https":
		if f.ownsBlobHost(u.Hostname()) {
			return AzureSource
		}
		return HTTPSource
	case "file":
		return LocalSource
	}
	return LocalSource
}

func (f *sourceFactory) ownsBlobHost(host string) bool {
	if f.opts.Azure.AccountName == "" || f.opts.Azure.AccountKey == "" {
		return false
	}
	return strings.EqualFold(host, f.opts.Azure.AccountName+azureBlobHostSuffix)
}

// Load resolves location to a source and loads the image through it
func Load(ctx context.Context, f SourceFactory, location string) (selection.File, error) {
	sourceType := f.Resolve(location)
	src, err := f.CreateSource(sourceType)
	if err != nil {
		return selection.File{}, err
	}
	if sourceType == LocalSource {
		location = strings.TrimPrefix(location, "file://")
	}
	return src.Load(ctx, location)
}
