package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"bronze-ingest/internal/domain"
)

var _ domain.ObjectStore = (*AzureStore)(nil)

// AzureStore is an ObjectStore over an Azure Blob Storage container.
type AzureStore struct {
	client *azblob.Client
	loc    Location
}

// NewAzureStore creates an AzureStore for loc. A connection string takes
// precedence over an account key; without either the client is anonymous.
func NewAzureStore(loc Location, opts Options) (*AzureStore, error) {
	if loc.Scheme != SchemeAzure {
		return nil, fmt.Errorf("expected azure location, got %q", loc.Scheme)
	}

	if opts.AzureConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(opts.AzureConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("create Azure blob client: %w", err)
		}
		return &AzureStore{client: client, loc: loc}, nil
	}

	account := opts.AzureAccountName
	if account == "" {
		account = loc.Account
	}
	if account == "" {
		return nil, fmt.Errorf("azure account name is required")
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", account)

	if opts.AzureAccountKey == "" {
		client, err := azblob.NewClientWithNoCredential(serviceURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create Azure blob client: %w", err)
		}
		return &AzureStore{client: client, loc: loc}, nil
	}

	sharedKeyCred, err := azblob.NewSharedKeyCredential(account, opts.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, sharedKeyCred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureStore{client: client, loc: loc}, nil
}

// List returns up to limit blobs under prefix (limit <= 0 lists all).
func (s *AzureStore) List(ctx context.Context, prefix string, limit int) ([]domain.ObjectInfo, error) {
	opts := &azblob.ListBlobsFlatOptions{Prefix: to.Ptr(s.loc.Prefix + prefix)}
	if limit > 0 && limit < 5000 {
		opts.MaxResults = to.Ptr(int32(limit))
	}

	var out []domain.ObjectInfo
	pager := s.client.NewListBlobsFlatPager(s.loc.Bucket, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list az://%s/%s: %w", s.loc.Bucket, s.loc.Prefix+prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			var info domain.ObjectInfo
			if item.Name != nil {
				info.Key = strings.TrimPrefix(*item.Name, s.loc.Prefix)
			}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					info.LastModified = *item.Properties.LastModified
				}
			}
			out = append(out, info)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Put uploads body as a block blob under key.
func (s *AzureStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.UploadBuffer(ctx, s.loc.Bucket, s.loc.Prefix+key, body, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	if err != nil {
		return fmt.Errorf("put az://%s/%s: %w", s.loc.Bucket, s.loc.Prefix+key, err)
	}
	return nil
}

// URI returns the engine-readable blob URI for key.
func (s *AzureStore) URI(key string) string { return s.loc.URI(key) }
