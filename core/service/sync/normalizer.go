// Package sync implements the mail synchronization engine: the folder
// normalizer, the parser/canonicalizer, and the per-account sync
// orchestrator (§4.3, §4.4, §4.7). Grounded on core/service/email/
// worker_email_sync.go's chunked, checkpointed progressive-sync shape,
// reworked from date-window checkpoints to UID/delta watermark logic.
package sync

import (
	"sort"
	"strings"

	"mailmirror/core/domain"
)

var specialUseCanonical = map[string]string{
	"\\sent":   domain.FolderSent,
	"\\drafts": domain.FolderDrafts,
	"\\trash":  domain.FolderTrash,
	"\\junk":   domain.FolderSpam,
	"\\archive": domain.FolderArchive,
	"\\inbox":  domain.FolderInbox,
	"\\flagged": domain.FolderStarred,
}

var displayNameCanonical = map[string]string{
	"sentitems":           domain.FolderSent,
	"deleteditems":        domain.FolderTrash,
	"junkemail":           domain.FolderSpam,
	"archive":             domain.FolderArchive,
	"drafts":              domain.FolderDrafts,
	"conversation history": "Conversation History",
	"outbox":              "Outbox",
}

var imapFlagCanonical = map[string]string{
	"\\sent":    domain.FolderSent,
	"\\drafts":  domain.FolderDrafts,
	"\\trash":   domain.FolderTrash,
	"\\junk":    domain.FolderSpam,
	"\\spam":    domain.FolderSpam,
	"\\archive": domain.FolderArchive,
	"\\flagged": domain.FolderStarred,
	"\\starred": domain.FolderStarred,
}

// providerScoped covers e.g. "[Gmail]/Sent Mail" -> Sent. Matched on the
// lowercased, whitespace-collapsed raw path.
var providerScoped = []struct {
	match     string
	canonical string
}{
	{"[gmail]/sent mail", domain.FolderSent},
	{"[gmail]/all mail", domain.FolderArchive},
	{"[gmail]/drafts", domain.FolderDrafts},
	{"[gmail]/trash", domain.FolderTrash},
	{"[gmail]/spam", domain.FolderSpam},
	{"[gmail]/important", domain.FolderImportant},
	{"[gmail]/starred", domain.FolderStarred},
	{"sent items", domain.FolderSent},
}

var substringHeuristics = []struct {
	substr    string
	canonical string
}{
	{"sent", domain.FolderSent},
	{"draft", domain.FolderDrafts},
	{"trash", domain.FolderTrash},
	{"deleted", domain.FolderTrash},
	{"bin", domain.FolderTrash},
	{"spam", domain.FolderSpam},
	{"junk", domain.FolderSpam},
	{"all mail", domain.FolderArchive},
	{"archive", domain.FolderArchive},
	{"important", domain.FolderImportant},
	{"starred", domain.FolderStarred},
	{"flagged", domain.FolderStarred},
}

// excludedSubstrings is evaluated against the normalized canonical
// name, not the raw path — resolving Open Question (c): a raw path that
// triggers an exclusion pattern but normalizes to INBOX (or any other
// non-excluded canonical name) is retained.
var excludedSubstrings = []string{
	"notes",
	"contacts",
	"calendar",
	"tasks",
	"journal",
	"sync issues",
	"local failures",
	"server failures",
	"yammer root",
}

// gmailAllMailRawPath is checked against the raw path, not the
// canonical name: §4.3 step 5 maps "[Gmail]/All Mail" to the Archive
// canonical bucket, which would otherwise hide the one raw-path token
// that identifies it from the canonical-name exclusion check below and
// let the "avoid duplicates" exclusion in §4.3 silently stop applying.
const gmailAllMailRawPath = "[gmail]/all mail"

// Normalize maps a provider-specific folder descriptor to a canonical
// name, following the 7-step resolution order of §4.3. The result is
// deterministic for identical inputs (invariant 6).
func Normalize(f domain.FolderDescriptor) string {
	path := strings.TrimSpace(f.Path)
	lowerPath := collapseWhitespace(strings.ToLower(path))

	// 1. Exact INBOX match.
	if strings.EqualFold(path, "INBOX") {
		return domain.FolderInbox
	}

	// 2. RFC 6154 special-use flag.
	if f.SpecialUse != "" {
		if c, ok := specialUseCanonical[strings.ToLower(f.SpecialUse)]; ok {
			return c
		}
	}

	// 3. Graph/provider canonical display names.
	if c, ok := displayNameCanonical[lowerPath]; ok {
		return c
	}

	// 4. IMAP folder flags.
	for _, flag := range f.Flags {
		if c, ok := imapFlagCanonical[strings.ToLower(flag)]; ok {
			return c
		}
	}

	// 5. Provider-scoped table.
	for _, ps := range providerScoped {
		if lowerPath == ps.match {
			return ps.canonical
		}
	}

	// 6. Case-insensitive substring heuristics.
	for _, h := range substringHeuristics {
		if strings.Contains(lowerPath, h.substr) {
			return h.canonical
		}
	}

	// 7. Passthrough.
	return path
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// ShouldSyncFolder reports whether a folder is eligible for sync. Per
// the normalize-before-filter redesign (§9 (c)), the canonical name is
// checked so a raw path that merely happens to contain an exclusion
// substring (e.g. a "\Inbox"-flagged folder literally named "My
// Journal Mailbox") doesn't wrongly drop a folder that normalizes to
// INBOX or another legitimate bucket. rawPath additionally catches the
// one exclusion (gmailAllMailRawPath) that the normalizer itself maps
// away to a non-excluded canonical name.
func ShouldSyncFolder(canonical, rawPath string) bool {
	if strings.Contains(collapseWhitespace(strings.ToLower(rawPath)), gmailAllMailRawPath) {
		return false
	}
	lower := strings.ToLower(canonical)
	for _, ex := range excludedSubstrings {
		if strings.Contains(lower, ex) {
			return false
		}
	}
	return true
}

// SortByPriority sorts discovered canonical folder names by §4.3's
// priority table, higher first, stable for equal-priority ties.
func SortByPriority(canonicalFolders []string) {
	sort.SliceStable(canonicalFolders, func(i, j int) bool {
		return domain.PriorityOf(canonicalFolders[i]) > domain.PriorityOf(canonicalFolders[j])
	})
}

// SortDescriptorsByPriority sorts raw folder descriptors by the priority
// of their normalized canonical name, higher first. This is what
// discovery (§4.7.2) actually runs on raw provider paths.
func SortDescriptorsByPriority(folders []domain.FolderDescriptor) {
	sort.SliceStable(folders, func(i, j int) bool {
		return domain.PriorityOf(Normalize(folders[i])) > domain.PriorityOf(Normalize(folders[j]))
	})
}
