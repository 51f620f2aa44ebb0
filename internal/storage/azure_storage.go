package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/internal/selection"
)

// BlobScheme addresses blobs as azblob://<container>/<blob path>
const BlobScheme = "azblob"

// AzureOptions configures the blob source. An empty AccountKey uses
// anonymous access, which works for public containers.
type AzureOptions struct {
	AccountName string
	AccountKey  string
	// ServiceURL overrides https://<account>.blob.core.windows.net
	ServiceURL string
	MaxSize    int64
}

// AzureBlobSource downloads images from Azure Blob Storage
type AzureBlobSource struct {
	client  *azblob.Client
	maxSize int64
}

// NewAzureBlobSource creates a blob source for one storage account
func NewAzureBlobSource(opts AzureOptions) (*AzureBlobSource, error) {
	serviceURL := opts.ServiceURL
	if serviceURL == "" {
		if opts.AccountName == "" {
			return nil, apperrors.NewValidationError("azure storage account name is required", nil)
		}
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", opts.AccountName)
	}

	var client *azblob.Client
	if opts.AccountKey == "" {
		c, err := azblob.NewClientWithNoCredential(serviceURL, nil)
		if err != nil {
			return nil, apperrors.NewValidationError("invalid azure blob service URL", err)
		}
		client = c
	} else {
		credential, err := azblob.NewSharedKeyCredential(opts.AccountName, opts.AccountKey)
		if err != nil {
			return nil, apperrors.NewValidationError("invalid azure storage credentials", err)
		}
		c, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
		if err != nil {
			return nil, apperrors.NewValidationError("invalid azure blob service URL", err)
		}
		client = c
	}

	return &AzureBlobSource{client: client, maxSize: sizeLimit(opts.MaxSize)}, nil
}

// Load downloads the blob at location
func (s *AzureBlobSource) Load(ctx context.Context, location string) (selection.File, error) {
	containerName, blobName, err := parseBlobLocation(location)
	if err != nil {
		return selection.File{}, err
	}

	resp, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return selection.File{}, apperrors.NewValidationError(fmt.Sprintf("blob %s/%s not found", containerName, blobName), err)
		}
		return selection.File{}, apperrors.NewNetworkError("blob download failed", err)
	}
	body := resp.Body
	defer body.Close()

	contentType := ""
	if resp.ContentType != nil {
		contentType = *resp.ContentType
	}
	name := baseName(blobName, "blob")

	if resp.ContentLength != nil && *resp.ContentLength > s.maxSize {
		head, _, _ := readLimited(body, 3072)
		return selection.File{
			Name:         name,
			MIMEType:     selection.ResolveMIMEType(contentType, head),
			DeclaredSize: *resp.ContentLength,
		}, nil
	}

	data, size, err := readLimited(body, s.maxSize)
	if err != nil {
		return selection.File{}, apperrors.NewNetworkError("blob download failed", err)
	}

	return selection.File{
		Name:         name,
		MIMEType:     selection.ResolveMIMEType(contentType, data),
		Data:         data,
		DeclaredSize: size,
	}, nil
}

// parseBlobLocation accepts azblob://container/blob/path and the https
// forms .../container/blob/path and .../container?blob=name.
func parseBlobLocation(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", apperrors.NewValidationError("invalid blob URL", err)
	}

	var containerName, blobName string
	switch strings.ToLower(u.Scheme) {
	case BlobScheme:
		containerName = u.Host
		blobName = strings.TrimPrefix(u.Path, "/")
	case "http", "https":
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		containerName = parts[0]
		if len(parts) == 2 {
			blobName = parts[1]
		}
		if blobName == "" {
			blobName = u.Query().Get("blob")
		}
	default:
		return "", "", apperrors.NewValidationError(fmt.Sprintf("unsupported blob URL scheme %q", u.Scheme), nil)
	}

	if containerName == "" || blobName == "" {
		return "", "", apperrors.NewValidationError("blob URL must name a container and a blob", nil)
	}
	return containerName, blobName, nil
}
