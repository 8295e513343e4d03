package storage

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
)

// AzureBlob stores blobs in an Azure Storage account.
type AzureBlob struct {
	client *azblob.Client
}

// NewAzureBlob connects to the account at serviceURL using cred.
func NewAzureBlob(serviceURL string, cred azcore.TokenCredential) (*AzureBlob, error) {
	return newAzureBlob(serviceURL, cred, nil)
}

func newAzureBlob(serviceURL string, cred azcore.TokenCredential, opts *azblob.ClientOptions) (*AzureBlob, error) {
	client, err := azblob.NewClient(serviceURL, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("create blob service client: %w", err)
	}
	return &AzureBlob{client: client}, nil
}

// AzureOpener returns an Opener authenticating every account with cred.
func AzureOpener(cred azcore.TokenCredential) Opener {
	return func(storageURI string) (ObjectStore, error) {
		return NewAzureBlob(storageURI, cred)
	}
}

// Upload writes data as a block blob, conditional on the blob not existing
// yet.
func (a *AzureBlob) Upload(ctx context.Context, container, key string, data []byte) error {
	containerClient := a.client.ServiceClient().NewContainerClient(container)
	blobClient := containerClient.NewBlockBlobClient(key)

	opts := &blockblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: to.Ptr(azcore.ETagAny)},
		},
	}

	if _, err := blobClient.UploadBuffer(ctx, data, opts); err != nil {
		if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
			return fmt.Errorf("%w: %s/%s", ErrBlobExists, container, key)
		}
		return err
	}
	return nil
}
