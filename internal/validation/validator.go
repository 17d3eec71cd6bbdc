package validation

import (
	"fmt"

	"github.com/allsafeASM/rmap/internal/common"
	"github.com/allsafeASM/rmap/internal/models"
)

// Validator provides all validation functionality
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTaskMessage checks the envelope of a queued scan task. Targets
// and ports are not checked here; the scanner drops what it cannot use.
func (v *Validator) ValidateTaskMessage(taskMsg *models.TaskMessage) error {
	if taskMsg == nil {
		return common.NewValidationError("task", "task message cannot be nil")
	}

	if taskMsg.ScanID == "" {
		return common.NewValidationError("scan_id", "scan_id is required")
	}

	if taskMsg.Task == "" {
		return common.NewValidationError("task", "task type is required")
	}

	if !v.isValidTaskType(taskMsg.Task) {
		return common.NewValidationError("task", fmt.Sprintf("unknown task type: %s", taskMsg.Task))
	}

	if len(taskMsg.Request.IPAddresses) == 0 && taskMsg.InputBlobPath == "" {
		return common.NewValidationError("request.ip_addresses", "no targets provided: set ip_addresses or input_blob_path")
	}

	return nil
}

// isValidTaskType checks if the task type is supported
func (v *Validator) isValidTaskType(taskType models.Task) bool {
	validTasks := map[models.Task]bool{
		models.TaskNetworkScan: true,
	}
	return validTasks[taskType]
}
