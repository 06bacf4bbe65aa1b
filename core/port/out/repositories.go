// Package out defines the driven ports the core depends on: mirror-store
// repositories, the provider adapter capability set, the durable queue,
// the credential vault's persistence touch points, and the external
// collaborators named in §6 (attachment sink, auth boundary).
package out

import (
	"context"
	"errors"
	"time"

	"mailmirror/core/domain"
)

// ErrNotFound and ErrDuplicate are the repository-agnostic sentinels
// every persistence adapter maps its driver-specific "no rows"/
// "unique violation" errors onto, so core services never import an
// adapter package just to check errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

// UserRepository is the minimal user persistence the sync engine needs
// (account ownership checks); full CRUD is the external auth surface's
// concern (§1 out of scope).
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

// AccountRepository persists MailAccount records, including the
// watermark/cache fields the orchestrator mutates on every sync.
type AccountRepository interface {
	Create(ctx context.Context, a *domain.MailAccount) error
	GetByID(ctx context.Context, id string) (*domain.MailAccount, error)
	GetByUserAndEmail(ctx context.Context, userID, email string) (*domain.MailAccount, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.MailAccount, error)
	// ListActive returns every account with at least one synced folder,
	// ordered by oldest LastSyncedAt first, for the scheduler (§4.8).
	ListActive(ctx context.Context) ([]*domain.MailAccount, error)
	Update(ctx context.Context, a *domain.MailAccount) error
	Delete(ctx context.Context, id string) error
}

// MessageRepository is the idempotent mirror store (§4.5).
type MessageRepository interface {
	// Insert absorbs a unique-constraint collision on (accountId, uid,
	// folder) as a no-op success, per the at-least-once replay contract.
	Insert(ctx context.Context, m *domain.Message) (inserted bool, err error)
	// ExistsByUIDFolderAccount inspects all rows including soft-deleted
	// ones so re-sync does not resurrect tombstones.
	ExistsByUIDFolderAccount(ctx context.Context, uid int64, folder, accountID string) (bool, error)
	// HighestUID returns MAX(uid) over non-tombstoned rows, or 0.
	HighestUID(ctx context.Context, accountID, canonicalFolder string) (int64, error)
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	List(ctx context.Context, q MessageListQuery) ([]*domain.Message, int, error)
	SetReadStatus(ctx context.Context, id string, isRead bool) error
	SoftDelete(ctx context.Context, id string) error
}

// MessageListQuery mirrors the external listing interface (§6).
type MessageListQuery struct {
	AccountID string
	Folder    string
	IsRead    *bool
	FromDate  *time.Time
	ToDate    *time.Time
	Page      int
	Limit     int
}

// SearchRepository is the thin read over the FTS index (§6).
type SearchRepository interface {
	// SearchQuery tokenizes q with the FTS engine's natural-language
	// parser and ranks by tsrank desc then receivedAt desc. Empty or
	// whitespace q returns an empty page.
	SearchQuery(ctx context.Context, userID, q string, page, limit int) ([]*domain.Message, int, error)
	// SearchSender is a substring, case-insensitive, paginated search.
	SearchSender(ctx context.Context, userID, sender string, page, limit int) ([]*domain.Message, int, error)
}

// AttachmentRepository persists the post-upload Attachment record.
type AttachmentRepository interface {
	Create(ctx context.Context, a *domain.Attachment) error
	ListByMessage(ctx context.Context, messageID string) ([]*domain.Attachment, error)
}

// BodyCache is the message-body store (§ SUPPLEMENTED FEATURES): large
// body/htmlBody payloads live here keyed by message id, separate from
// the relational metadata row.
type BodyCache interface {
	Put(ctx context.Context, messageID, body, htmlBody string) error
	Get(ctx context.Context, messageID string) (body, htmlBody string, err error)
}

// AttachmentUploader is the external blob sink the core consumes (§6):
// uploadBlob(bytes, contentType, filename) -> url.
type AttachmentUploader interface {
	Upload(ctx context.Context, bytes []byte, contentType, filename string) (url string, err error)
}

// JobQueue is the durable at-least-once queue (§4.6).
type JobQueue interface {
	Enqueue(ctx context.Context, job *domain.Job) error
	// Consume blocks, dispatching decoded jobs to handle until ctx is
	// cancelled. handle returning a retryable error re-queues the job
	// with exponential backoff up to the configured attempt limit.
	Consume(ctx context.Context, queue domain.JobType, consumerName string, handle func(ctx context.Context, job *domain.Job) error) error
}

// StateStore is a short-TTL ephemeral key-value store: the OAuth CSRF
// state guard (10-minute expiry, delete-on-read) and the JWT blacklist.
type StateStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// GetAndDelete returns the value and removes the key atomically; ok
	// is false if the key did not exist (already consumed, or expired).
	GetAndDelete(ctx context.Context, key string) (value string, ok bool, err error)
	Exists(ctx context.Context, key string) (bool, error)
}
