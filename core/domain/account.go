package domain

import (
	"strings"
	"time"
)

// Provider is the canonical upstream tag. Unknown domains are rejected
// at onboarding time (§4.7.1).
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderYahoo   Provider = "yahoo"
	ProviderICloud  Provider = "icloud"
	ProviderAOL     Provider = "aol"
	ProviderUnknown Provider = "unknown"
)

// AuthMode distinguishes an IMAP app-password account from an OAuth
// Graph account. An account has exactly one of the two credential sets.
type AuthMode string

const (
	AuthModeIMAP  AuthMode = "imap"
	AuthModeGraph AuthMode = "graph"
)

// MailAccount is a (User, remote-email) pair with exactly one of
// {encryptedPassword, (accessToken, refreshToken)}.
type MailAccount struct {
	ID     string
	UserID string
	Email  string

	Provider Provider
	AuthMode AuthMode

	// IMAP path
	EncryptedPassword string
	IMAPHost          string
	IMAPPort          int

	// Graph/OAuth path
	EncryptedAccessToken  string
	EncryptedRefreshToken string
	TokenExpiresAt        time.Time

	// Sync progress
	SyncedFolders  []string // canonical folder names successfully synced at least once
	LastFetchedUID int64    // monotonic watermark for the IMAP "default" folder

	// UIDVALIDITY per canonical folder (IMAP only) — detects a server-side
	// UID renumbering so the watermark can be reset instead of stalling.
	// Resolves Open Question (a).
	UIDValidity map[string]uint32

	// Graph folder id per canonical folder, recorded by folder discovery
	// and persisted with the account. Sync does not read it back: every
	// job, incremental ones included, lists the folders again.
	GraphFolderIDs map[string]string

	// Graph delta-link cache keyed by Graph folder id (supplemented
	// feature): the @odata.deltaLink FetchSince resumes from instead of
	// rebuilding a timestamp filter, once a folder has synced at least
	// once. Dropped and rebuilt on a 410 resyncRequired response.
	GraphDeltaLinks map[string]string

	LastSyncedAt time.Time
	CreatedAt    time.Time
}

// DetectProvider maps an email domain to a canonical provider tag per
// §4.7.1. Anything outside the known set is ProviderUnknown.
func DetectProvider(email string) Provider {
	domain := domainOf(email)
	switch domain {
	case "gmail.com":
		return ProviderGmail
	case "outlook.com", "live.com":
		return ProviderOutlook
	case "hotmail.com":
		return ProviderOutlook
	case "yahoo.com":
		return ProviderYahoo
	case "icloud.com", "me.com":
		return ProviderICloud
	case "aol.com":
		return ProviderAOL
	}
	return ProviderUnknown
}

func domainOf(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}

// HasSyncedFolder reports whether a canonical folder has completed at
// least one sync.
func (a *MailAccount) HasSyncedFolder(canonical string) bool {
	for _, f := range a.SyncedFolders {
		if f == canonical {
			return true
		}
	}
	return false
}

// AddSyncedFolder records a canonical folder as synced at least once,
// idempotently.
func (a *MailAccount) AddSyncedFolder(canonical string) {
	if a.HasSyncedFolder(canonical) {
		return
	}
	a.SyncedFolders = append(a.SyncedFolders, canonical)
}
