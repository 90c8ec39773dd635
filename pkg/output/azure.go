package output

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// EnvAzureConnectionString supplies the storage connection string when the
// config does not.
const EnvAzureConnectionString = "AZURE_STORAGE_CONNECTION_STRING"

// AzureConfig configures the Azure blob sink.
type AzureConfig struct {
	ConnectionString string
}

// AzureUploadAPI is the subset of the azblob client used by the sink.
type AzureUploadAPI interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// NewAzureClient builds a blob client from the configured or environment
// connection string.
func NewAzureClient(cfg AzureConfig) (*azblob.Client, error) {
	connStr := cfg.ConnectionString
	if connStr == "" {
		connStr = os.Getenv(EnvAzureConnectionString)
	}
	if connStr == "" {
		return nil, fmt.Errorf("azure output requires a connection string (set %s)", EnvAzureConnectionString)
	}

	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (w *Writer) putAzure(ctx context.Context, dest Destination, data []byte, contentType string) error {
	if w.azureClient == nil {
		client, err := NewAzureClient(w.Azure)
		if err != nil {
			return err
		}
		w.azureClient = client
	}

	var opts *azblob.UploadBufferOptions
	if contentType != "" {
		opts = &azblob.UploadBufferOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
		}
	}

	if _, err := w.azureClient.UploadBuffer(ctx, dest.Container, dest.Key, data, opts); err != nil {
		return fmt.Errorf("uploading to %s: %w", dest.Raw, err)
	}
	return nil
}
