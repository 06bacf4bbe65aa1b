package domain

import "time"

// JobState is the lifecycle state of a queued unit of sync work.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobDead      JobState = "dead"
)

// JobType names the three durable queues (§4.6).
type JobType string

const (
	JobInitialSync     JobType = "initial-sync"
	JobIncrementalSync JobType = "incremental-sync"
	JobAttachmentUpload JobType = "attachment-upload"
)

// Job is the envelope persisted/transported by the durable queue.
type Job struct {
	ID           string
	Queue        JobType
	Type         JobType
	Payload      []byte // goccy/go-json-encoded payload matching the queue's schema
	AttemptCount int
	BackoffUntil time.Time
	State        JobState
	CreatedAt    time.Time
}

// InitialSyncPayload is the body of an initial-sync job.
type InitialSyncPayload struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
}

// IncrementalSyncPayload is the body of an incremental-sync job.
type IncrementalSyncPayload struct {
	AccountID string   `json:"accountId"`
	Email     string   `json:"email"`
	Folders   []string `json:"folders"`
}

// AttachmentUploadPayload is the body of an attachment-upload job.
type AttachmentUploadPayload struct {
	MessageID   string `json:"messageId"`
	Filename    string `json:"filename"`
	Bytes       []byte `json:"bytes"`
	ContentType string `json:"contentType"`
}

// RefreshToken mirrors the OAuth-token rotation discipline used by
// MailAccounts, for the user-login auth boundary.
type RefreshToken struct {
	ID         string
	Hash       string
	UserID     string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy string
}
