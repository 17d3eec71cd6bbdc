package models

// TaskMessage represents the structure of messages in the queue
type TaskMessage struct {
	Task       Task        `json:"task"`
	ScanID     string      `json:"scan_id"`
	InstanceID string      `json:"instance_id,omitempty"`
	Request    ScanRequest `json:"request"`
	// InputBlobPath points at an optional hosts file with one target per line
	InputBlobPath string `json:"input_blob_path,omitempty"`
}

// TaskResult represents the result of a completed task
type TaskResult struct {
	Task      Task       `json:"task"`
	ScanID    string     `json:"scan_id"`
	Status    TaskStatus `json:"status"`
	Data      any        `json:"data,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// ProgressMessage is published to the progress queue for every stream unit
type ProgressMessage struct {
	ScanID string `json:"scan_id"`
	ScanResponse
}

// NetworkScanReport is the aggregated outcome of one scan
type NetworkScanReport struct {
	Targets      []string     `json:"targets"`
	PortsPerHost int          `json:"ports_per_host"`
	HostsTotal   int          `json:"hosts_total"`
	HostsUp      int          `json:"hosts_up"`
	Hosts        []HostResult `json:"hosts"`
	StartedAt    string       `json:"started_at"`
	FinishedAt   string       `json:"finished_at"`
}

// Task types
type Task string

const (
	TaskNetworkScan Task = "network_scan"
)

// Task status
type TaskStatus string

const (
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// MessageProcessingResult represents the result of processing a message
type MessageProcessingResult struct {
	Success bool
	Error   error
	// Retryable indicates if the error is transient and should be retried
	Retryable bool
	// RetryCount is the number of times this message has been retried
	RetryCount int
}
