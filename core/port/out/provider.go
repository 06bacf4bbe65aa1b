package out

import (
	"context"

	"mailmirror/core/domain"
)

// ProviderAdapter is the capability set shared by IMAP and Graph
// adapters, per the adapter-polymorphism design note (§9): ListFolders,
// FetchSince(watermark), HighestWatermark(folder). The orchestrator's
// folder-sync loop differs only in watermark arithmetic, not in shape.
type ProviderAdapter interface {
	// TestConnection validates credentials without throwing; used by
	// onboarding (§4.7.1).
	TestConnection(ctx context.Context, account *domain.MailAccount) error

	// ListFolders returns every folder descriptor the account exposes,
	// unfiltered and unsorted (the orchestrator applies exclusion and
	// priority sort).
	ListFolders(ctx context.Context, account *domain.MailAccount) ([]domain.FolderDescriptor, error)

	// HighestWatermark returns the adapter's current high-water mark for
	// a folder: UIDNEXT-1 for IMAP, the account's last sync instant for
	// Graph (informational only for Graph, which uses delta/timestamp
	// filtering instead).
	HighestWatermark(ctx context.Context, account *domain.MailAccount, folder domain.FolderDescriptor) (domain.Watermark, error)

	// FetchSince yields every message newer than from, in provider-
	// appropriate order, via the callback. IMAP: UIDs descending within
	// chunkSize-sized chunks, oldest-in-chunk yielded first so the caller
	// persists in the order described by §4.7.3. Graph: page-ordered,
	// bounded to 500 messages per run (§4.7.4). Returns the new watermark
	// to persist.
	FetchSince(ctx context.Context, account *domain.MailAccount, folder domain.FolderDescriptor, from domain.Watermark, chunkSize int, yield func(RawMessage) error) (domain.Watermark, error)
}

// RawMessage is the adapter-specific raw payload handed to the parser:
// either RFC 5322 bytes (IMAP) or a Graph JSON message, plus the
// metadata the canonicalizer needs that isn't in the raw bytes.
type RawMessage struct {
	UID        int64 // IMAP UID, or -1 for Graph (caller assigns synthetic UID)
	Seen       bool
	RawRFC822  []byte // non-nil for IMAP
	GraphJSON  []byte // non-nil for Graph
	ThreadHint string // conversationId, set by the Graph adapter; empty for IMAP, whose References/In-Reply-To the parser reads from the raw headers
}

// CredentialVault never stores a usable credential in plaintext at rest.
type CredentialVault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// TokenRefresher performs the Microsoft Graph OAuth rotation described
// in §4.1: refreshMicrosoftToken(refreshToken) -> {accessToken, refreshToken'}.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, expiresIn int, err error)
}
