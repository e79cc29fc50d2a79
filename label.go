package blobcast

// Label and metric name constants for outbound messages and telemetry.
const (
	LabelBlobCreated = "BlobCreatedEvent"
	LabelBlobDeleted = "BlobDeletedEvent"

	MetricBlobCreated = "ProcessBlobEvents Created"
	MetricBlobDeleted = "ProcessBlobEvents Deleted"
)
