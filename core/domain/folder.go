package domain

// Canonical folder names (§4.3). Anything not in this set is a
// passthrough of the raw provider path.
const (
	FolderInbox     = "INBOX"
	FolderSent      = "Sent"
	FolderDrafts    = "Drafts"
	FolderTrash     = "Trash"
	FolderSpam      = "Spam"
	FolderArchive   = "Archive"
	FolderImportant = "Important"
	FolderStarred   = "Starred"
)

// FolderPriority orders canonical folders for discovery (higher first).
// A name absent from this table gets the "default" weight.
var FolderPriority = map[string]int{
	FolderInbox:     100,
	FolderSent:      90,
	FolderDrafts:    80,
	FolderImportant: 75,
	FolderArchive:   70,
	FolderSpam:      50,
	FolderTrash:     40,
}

const defaultFolderPriority = 60

// PriorityOf returns the sort weight for a canonical folder name.
func PriorityOf(canonical string) int {
	if p, ok := FolderPriority[canonical]; ok {
		return p
	}
	return defaultFolderPriority
}

// FolderDescriptor is the adapter-agnostic shape returned by folder
// discovery: {path, delimiter, flags, specialUse}, per §4.2.
type FolderDescriptor struct {
	Path       string
	Delimiter  string
	Flags      []string
	SpecialUse string // RFC 6154 hint, may be empty
	ProviderID string // Graph folder id, or empty for IMAP

	// UIDValidity is IMAP's per-folder generation counter. A change from
	// the last observed value invalidates prior UIDs (§9 Open Question
	// (a)); zero means the adapter could not determine it (e.g. Graph).
	UIDValidity uint32
}

// Watermark is the tagged variant {UID(int) | Timestamp(instant)} that
// lets the orchestrator's folder-sync loop share one code path across
// IMAP and Graph, per the adapter-polymorphism design note (§9).
type Watermark struct {
	UID       int64
	Timestamp int64 // unix seconds; zero means "no watermark yet"
	IsUID     bool  // true: IMAP UID watermark; false: Graph timestamp watermark
}
