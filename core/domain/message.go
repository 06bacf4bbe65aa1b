package domain

import "time"

// Message is one row per (accountId, uid, folder); that triple is
// unique. Messages are append-only from the sync engine's perspective —
// mutation is limited to IsRead and DeletedAt from the external API.
type Message struct {
	ID        string
	AccountID string

	UID    int64 // IMAP UID, or a locally assigned synthetic UID for Graph
	Folder string // canonical folder name

	ProviderMessageID string // upstream Message-ID / internetMessageId, opaque
	ThreadKey         string // best-effort thread grouping key (supplemented feature)

	From string
	To   []string

	Subject  string
	Body     string // plain text (or HTML-stripped fallback)
	HTMLBody string // original HTML, or <div>-wrapped plaintext; may be empty

	IsRead      bool
	ReceivedAt  time.Time
	FetchedAt   time.Time
	DeletedAt   *time.Time // soft-delete tombstone

	Attachments []ParsedAttachment
}

// IsDeleted reports whether the message is a tombstone.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// ParsedAttachment is the structural attachment record produced by the
// parser; it is handed to the external attachment uploader and is not
// itself persisted with message bytes.
type ParsedAttachment struct {
	Filename    string
	ContentType string
	Size        int64
	ContentID   string // present for inline images
	Bytes       []byte
}

// Attachment is the persisted record after upload: (messageId, filename,
// contentType, size, storageUrl).
type Attachment struct {
	ID          string
	MessageID   string
	Filename    string
	ContentType string
	Size        int64
	StorageURL  string
	CreatedAt   time.Time
}
