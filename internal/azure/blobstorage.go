package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/allsafeASM/rmap/internal/common"
	"github.com/allsafeASM/rmap/internal/models"
	"github.com/projectdiscovery/gologger"
)

// maxHostsFileSize bounds how much of a hosts file is read
const maxHostsFileSize = 16 << 20

// BlobStorageClient wraps Azure Blob Storage operations
type BlobStorageClient struct {
	client        *azblob.Client
	containerName string
}

// NewBlobStorageClient creates a new Blob Storage client
func NewBlobStorageClient(connectionString, containerName string) (*BlobStorageClient, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob storage client: %w", err)
	}

	return &BlobStorageClient{
		client:        client,
		containerName: containerName,
	}, nil
}

// ResultBlobName returns where a task result is stored
func ResultBlobName(result *models.TaskResult, at time.Time) string {
	return fmt.Sprintf("results/%s/%s-%s.json", result.Task, result.ScanID, at.UTC().Format("2006-01-02-15-04-05"))
}

// StoreTaskResult uploads a task result as indented JSON and returns the
// blob name
func (b *BlobStorageClient) StoreTaskResult(ctx context.Context, result *models.TaskResult) (string, error) {
	blobName := ResultBlobName(result, time.Now())

	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", common.NewInternalError("failed to marshal task result", err)
	}

	if _, err := b.client.UploadBuffer(ctx, b.containerName, blobName, resultJSON, &azblob.UploadBufferOptions{}); err != nil {
		return "", common.NewStorageError("failed to upload task result to blob storage", err)
	}

	gologger.Info().Msgf("Stored task result in blob: %s/%s", b.containerName, blobName)
	return blobName, nil
}

// ReadHostsFileFromBlob downloads a hosts file from the container
func (b *BlobStorageClient) ReadHostsFileFromBlob(ctx context.Context, blobPath string) (string, error) {
	response, err := b.client.DownloadStream(ctx, b.containerName, blobPath, nil)
	if err != nil {
		return "", classifyDownloadError(blobPath, err)
	}
	defer response.Body.Close()

	content, err := io.ReadAll(io.LimitReader(response.Body, maxHostsFileSize))
	if err != nil {
		return "", common.NewStorageError(fmt.Sprintf("failed to read hosts file %s", blobPath), err)
	}

	return string(content), nil
}

// classifyDownloadError marks a missing blob as permanent so the task is not
// retried for a hosts file that will never appear
func classifyDownloadError(blobPath string, err error) *common.AppError {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return common.NewNotFoundError(fmt.Sprintf("hosts file %s not found", blobPath), err)
	}
	return common.NewStorageError(fmt.Sprintf("failed to download hosts file %s", blobPath), err)
}
