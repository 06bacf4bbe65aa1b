// Package in defines the driving ports: the operations the HTTP/OAuth
// boundary and the job worker pool call into.
package in

import (
	"context"
	"time"

	"mailmirror/core/domain"
)

// OnboardingService implements §4.7.1.
type OnboardingService interface {
	// LinkIMAPAccount verifies the account is not already linked,
	// detects the provider from the email domain (rejecting unknown
	// domains), validates credentials with a live connect/logout,
	// encrypts the app password, persists the record, and enqueues an
	// initial-sync job.
	LinkIMAPAccount(ctx context.Context, userID, email, appPassword string) (*domain.MailAccount, error)
	// LinkGraphAccount persists (accessToken, refreshToken, provider=
	// outlook); if the account already exists it rotates the tokens and
	// enqueues a fresh initial-sync.
	LinkGraphAccount(ctx context.Context, userID, email, accessToken, refreshToken string, expiresIn int) (*domain.MailAccount, error)
}

// SyncService runs one sync attempt for one account (§4.7).
type SyncService interface {
	RunInitialSync(ctx context.Context, accountID string) (SyncResult, error)
	RunIncrementalSync(ctx context.Context, accountID string, folders []string) (SyncResult, error)
}

// SyncResult summarizes one sync job's outcome.
type SyncResult struct {
	EmailsSynced   int
	FoldersSynced  []string
	FoldersFailed  map[string]string
}

// SchedulerService runs the periodic tick (§4.8).
type SchedulerService interface {
	Tick(ctx context.Context) (enqueued int, err error)
}

// EmailService backs the listing/mutation external interface (§6).
type EmailService interface {
	List(ctx context.Context, userID string, q MessageListQuery) ([]*domain.Message, int, error)
	Get(ctx context.Context, userID, messageID string) (*domain.Message, error)
	SetReadStatus(ctx context.Context, userID, messageID string, isRead bool) error
	Delete(ctx context.Context, userID, messageID string) error
}

// MessageListQuery mirrors GET /emails's query parameters.
type MessageListQuery struct {
	AccountID string
	Folder    string
	IsRead    *bool
	FromDate  *time.Time
	ToDate    *time.Time
	Page      int
	Limit     int
}

// SearchService backs the search external interface (§6).
type SearchService interface {
	SearchQuery(ctx context.Context, userID, q string, page, limit int) ([]*domain.Message, int, error)
	SearchSender(ctx context.Context, userID, sender string, page, limit int) ([]*domain.Message, int, error)
}

// AccountService backs the §6 GET /accounts, GET/PATCH/DELETE
// /accounts/{id} surface. It is a thin, ownership-checked read/delete
// layer over AccountRepository — the MailAccount data model (§3) has no
// user-editable fields (folder set and watermarks are sync-engine
// owned), so Patch only accepts a rename-free no-op body reserved for
// future account-level settings.
type AccountService interface {
	List(ctx context.Context, userID string) ([]*domain.MailAccount, error)
	Get(ctx context.Context, userID, accountID string) (*domain.MailAccount, error)
	Delete(ctx context.Context, userID, accountID string) error
}
