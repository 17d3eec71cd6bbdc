package azure

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/allsafeASM/rmap/internal/common"
	"github.com/allsafeASM/rmap/internal/models"
)

func TestResultBlobName(t *testing.T) {
	result := &models.TaskResult{Task: models.TaskNetworkScan, ScanID: "scan-42"}
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	want := "results/network_scan/scan-42-2026-03-04-05-06-07.json"
	if got := ResultBlobName(result, at); got != want {
		t.Errorf("ResultBlobName() = %s, want %s", got, want)
	}
}

func TestClassifyDownloadError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  common.ErrorType
		retryable bool
	}{
		{
			name:     "missing blob",
			err:      &azcore.ResponseError{ErrorCode: string(bloberror.BlobNotFound), StatusCode: http.StatusNotFound},
			wantType: common.ErrorTypeNotFound,
		},
		{
			name:     "missing container",
			err:      &azcore.ResponseError{ErrorCode: string(bloberror.ContainerNotFound), StatusCode: http.StatusNotFound},
			wantType: common.ErrorTypeNotFound,
		},
		{
			name:      "transient failure",
			err:       errors.New("connection reset by peer"),
			wantType:  common.ErrorTypeStorage,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := classifyDownloadError("inputs/hosts.txt", tt.err)
			if appErr.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, appErr.Type)
			}
			if appErr.IsRetryable() != tt.retryable {
				t.Errorf("Expected retryable=%t, got %t", tt.retryable, appErr.IsRetryable())
			}
			if !errors.Is(appErr, tt.err) {
				t.Error("Expected the download error to stay wrapped")
			}
		})
	}
}
