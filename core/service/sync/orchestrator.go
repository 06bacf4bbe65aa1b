package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"mailmirror/core/domain"
	"mailmirror/core/port/in"
	"mailmirror/core/port/out"
	"mailmirror/pkg/apperr"
)

const (
	initialSyncChunkSize     = 100
	incrementalSyncChunkSize = 50
)

// Orchestrator runs one sync attempt for one account, per §4.7. It is
// grounded on core/service/email/worker_email_sync.go's chunked,
// checkpointed progressive-sync shape, reworked from date-window
// checkpoints to the UID/timestamp watermark arithmetic of §4.7.3/4.7.4.
type Orchestrator struct {
	accounts  out.AccountRepository
	messages  out.MessageRepository
	vault     out.CredentialVault
	refresher out.TokenRefresher
	imap      out.ProviderAdapter
	graph     out.ProviderAdapter
	queue     out.JobQueue
	bodyCache out.BodyCache
	parser    *Parser
}

func NewOrchestrator(accounts out.AccountRepository, messages out.MessageRepository, vault out.CredentialVault, refresher out.TokenRefresher, imapAdapter, graphAdapter out.ProviderAdapter, queue out.JobQueue, bodyCache out.BodyCache) *Orchestrator {
	return &Orchestrator{
		accounts:  accounts,
		messages:  messages,
		vault:     vault,
		refresher: refresher,
		imap:      imapAdapter,
		graph:     graphAdapter,
		queue:     queue,
		bodyCache: bodyCache,
		parser:    NewParser(),
	}
}

var _ in.SyncService = (*Orchestrator)(nil)

func (o *Orchestrator) adapterFor(account *domain.MailAccount) out.ProviderAdapter {
	if account.AuthMode == domain.AuthModeGraph {
		return o.graph
	}
	return o.imap
}

// RunInitialSync implements §4.7.5: discovery followed by §4.7.3/4.7.4
// for every eligible folder.
func (o *Orchestrator) RunInitialSync(ctx context.Context, accountID string) (in.SyncResult, error) {
	account, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return in.SyncResult{}, fmt.Errorf("load account: %w", err)
	}

	if err := o.rotateGraphTokenIfNeeded(ctx, account); err != nil {
		return in.SyncResult{}, err
	}

	adapter := o.adapterFor(account)
	folders, err := o.discoverFolders(ctx, account, adapter)
	if err != nil {
		if apperr.IsCredentialRejected(err) {
			return in.SyncResult{}, err
		}
		return in.SyncResult{}, apperr.ProviderUnavailable(string(account.Provider), err)
	}

	return o.runSync(ctx, account, adapter, folders, initialSyncChunkSize)
}

// RunIncrementalSync implements the incremental half of §4.7.5: only the
// previously-synced folder set is used, no rediscovery of new folders.
func (o *Orchestrator) RunIncrementalSync(ctx context.Context, accountID string, folders []string) (in.SyncResult, error) {
	account, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return in.SyncResult{}, fmt.Errorf("load account: %w", err)
	}

	if err := o.rotateGraphTokenIfNeeded(ctx, account); err != nil {
		return in.SyncResult{}, err
	}

	adapter := o.adapterFor(account)
	allFolders, err := o.discoverFolders(ctx, account, adapter)
	if err != nil {
		if apperr.IsCredentialRejected(err) {
			return in.SyncResult{}, err
		}
		return in.SyncResult{}, apperr.ProviderUnavailable(string(account.Provider), err)
	}

	allowed := make(map[string]bool, len(folders))
	for _, f := range folders {
		allowed[f] = true
	}
	eligible := make([]discoveredFolder, 0, len(allFolders))
	for _, f := range allFolders {
		if allowed[f.Canonical] {
			eligible = append(eligible, f)
		}
	}

	return o.runSync(ctx, account, adapter, eligible, incrementalSyncChunkSize)
}

type discoveredFolder struct {
	Descriptor domain.FolderDescriptor
	Canonical  string
}

// discoverFolders lists every folder, normalizes it (before filtering —
// §9 Open Question (c)), drops ineligible folders, and sorts by
// priority (§4.3, §4.7.2).
func (o *Orchestrator) discoverFolders(ctx context.Context, account *domain.MailAccount, adapter out.ProviderAdapter) ([]discoveredFolder, error) {
	raw, err := adapter.ListFolders(ctx, account)
	if err != nil {
		return nil, err
	}

	if account.AuthMode == domain.AuthModeGraph && account.GraphFolderIDs == nil {
		account.GraphFolderIDs = map[string]string{}
	}

	discovered := make([]discoveredFolder, 0, len(raw))
	for _, f := range raw {
		canonical := Normalize(f)
		if !ShouldSyncFolder(canonical, f.Path) {
			continue
		}
		if account.AuthMode == domain.AuthModeGraph && f.ProviderID != "" {
			// Record the Graph folder id per canonical name (§9 Open
			// Question (b)); discovery still lists folders on every job.
			account.GraphFolderIDs[canonical] = f.ProviderID
		}
		discovered = append(discovered, discoveredFolder{Descriptor: f, Canonical: canonical})
	}

	SortDiscoveredByPriority(discovered)
	return discovered, nil
}

// SortDiscoveredByPriority sorts already-normalized folders by priority,
// higher first, stable for ties.
func SortDiscoveredByPriority(folders []discoveredFolder) {
	for i := 1; i < len(folders); i++ {
		for j := i; j > 0 && domain.PriorityOf(folders[j].Canonical) > domain.PriorityOf(folders[j-1].Canonical); j-- {
			folders[j], folders[j-1] = folders[j-1], folders[j]
		}
	}
}

// runSync drives the per-folder loop shared by initial and incremental
// sync. A folder-level failure is isolated (§7): sibling folders
// continue and the failure is recorded in FoldersFailed.
func (o *Orchestrator) runSync(ctx context.Context, account *domain.MailAccount, adapter out.ProviderAdapter, folders []discoveredFolder, chunkSize int) (in.SyncResult, error) {
	result := in.SyncResult{FoldersFailed: map[string]string{}}

	for _, f := range folders {
		synced, err := o.syncFolder(ctx, account, adapter, f, chunkSize)
		if err != nil {
			if apperr.IsCredentialRejected(err) {
				// Account-level credential failure aborts the job: no
				// folder can succeed (§7).
				return result, err
			}
			result.FoldersFailed[f.Canonical] = err.Error()
			continue
		}
		result.EmailsSynced += synced
		result.FoldersSynced = append(result.FoldersSynced, f.Canonical)
		account.AddSyncedFolder(f.Canonical)
	}

	account.LastSyncedAt = time.Now()
	if err := o.accounts.Update(ctx, account); err != nil {
		return result, fmt.Errorf("persist account progress: %w", err)
	}
	return result, nil
}

// syncFolder runs one folder's delta sync (§4.7.3 IMAP / §4.7.4 Graph),
// sharing one code path that differs only in watermark arithmetic (§9).
func (o *Orchestrator) syncFolder(ctx context.Context, account *domain.MailAccount, adapter out.ProviderAdapter, f discoveredFolder, chunkSize int) (int, error) {
	if account.UIDValidity == nil {
		account.UIDValidity = map[string]uint32{}
	}
	if f.Descriptor.UIDValidity != 0 {
		if prev, ok := account.UIDValidity[f.Canonical]; ok && prev != f.Descriptor.UIDValidity {
			// UIDVALIDITY changed: reset the watermark without deleting
			// mirrored rows (§9 Open Question (a)).
			account.UIDValidity[f.Canonical] = f.Descriptor.UIDValidity
			return o.fetchAndPersist(ctx, account, adapter, f, domain.Watermark{IsUID: true, UID: 0}, chunkSize)
		}
		account.UIDValidity[f.Canonical] = f.Descriptor.UIDValidity
	}

	from := o.currentWatermark(ctx, account, f)

	if from.IsUID {
		highest, err := adapter.HighestWatermark(ctx, account, f.Descriptor)
		if err != nil {
			return 0, apperr.ProviderUnavailable(string(account.Provider), err)
		}
		if highest.UID < from.UID {
			// Nothing new; the folder still counts as synced (§4.7.3 step 3).
			return 0, nil
		}
	}

	return o.fetchAndPersist(ctx, account, adapter, f, from, chunkSize)
}

// currentWatermark computes the per-(account,folder) watermark: the
// mirror's highest UID for IMAP, or the account's last sync instant for
// Graph (epoch if never synced).
func (o *Orchestrator) currentWatermark(ctx context.Context, account *domain.MailAccount, f discoveredFolder) domain.Watermark {
	if account.AuthMode == domain.AuthModeGraph {
		return domain.Watermark{IsUID: false, Timestamp: account.LastSyncedAt.Unix()}
	}
	highest, err := o.messages.HighestUID(ctx, account.ID, f.Canonical)
	if err != nil {
		highest = 0
	}
	return domain.Watermark{IsUID: true, UID: highest}
}

// fetchAndPersist drives the adapter's FetchSince callback, parsing and
// idempotently persisting each raw message, skipping tombstones and
// replays, and isolating per-message parse failures (§7).
func (o *Orchestrator) fetchAndPersist(ctx context.Context, account *domain.MailAccount, adapter out.ProviderAdapter, f discoveredFolder, from domain.Watermark, chunkSize int) (int, error) {
	synced := 0

	syntheticUID := from.UID
	if account.AuthMode == domain.AuthModeGraph {
		highest, err := o.messages.HighestUID(ctx, account.ID, f.Canonical)
		if err != nil {
			highest = 0
		}
		if account.LastFetchedUID > highest {
			syntheticUID = account.LastFetchedUID
		} else {
			syntheticUID = highest
		}
	}

	yield := func(raw out.RawMessage) error {
		uid := raw.UID
		if uid < 0 {
			// Graph has no native UID: assign one from the shared
			// (accountId, uid, folder) identity space (§4.7.4 step 3).
			syntheticUID++
			uid = syntheticUID
			raw.UID = uid
		}

		exists, err := o.messages.ExistsByUIDFolderAccount(ctx, uid, f.Canonical, account.ID)
		if err != nil {
			return apperr.ProviderUnavailable("mirror store", err)
		}
		if exists {
			return nil
		}

		msg, perr := o.parser.Parse(raw, f.Canonical)
		if msg == nil || perr != nil {
			// Parse failure: skip the message, keep the chunk going.
			return nil
		}

		msg.ID = uuid.New().String()
		msg.AccountID = account.ID

		inserted, err := o.messages.Insert(ctx, msg)
		if err != nil && !apperr.IsDuplicateInsert(err) {
			return apperr.ProviderUnavailable("mirror store", err)
		}
		if inserted {
			synced++
			o.enqueueAttachments(ctx, msg)
			o.cacheBody(ctx, msg)
		}
		if uid > account.LastFetchedUID {
			account.LastFetchedUID = uid
		}
		return nil
	}

	newWatermark, err := adapter.FetchSince(ctx, account, f.Descriptor, from, chunkSize, yield)
	if err != nil {
		if apperr.IsCredentialRejected(err) {
			return synced, err
		}
		return synced, apperr.ProviderUnavailable(string(account.Provider), err)
	}
	_ = newWatermark // the mirror's own highest-UID read is authoritative; see §4.5.

	return synced, nil
}

// cacheBody writes the full body/htmlBody to the body cache, keyed by
// message id; the mirror store's own body_preview column only ever
// holds a truncated excerpt (see adapter/out/persistence/postgres's
// Insert). Best-effort: a cache miss just means email.Service.Get falls
// back to the preview.
func (o *Orchestrator) cacheBody(ctx context.Context, msg *domain.Message) {
	if o.bodyCache == nil {
		return
	}
	_ = o.bodyCache.Put(ctx, msg.ID, msg.Body, msg.HTMLBody)
}

// enqueueAttachments hands each parsed attachment to the out-of-scope
// uploader asynchronously, per §4.4: the sync engine never blocks on
// upload.
func (o *Orchestrator) enqueueAttachments(ctx context.Context, msg *domain.Message) {
	if o.queue == nil {
		return
	}
	for _, att := range msg.Attachments {
		payload := domain.AttachmentUploadPayload{
			MessageID:   msg.ID,
			Filename:    att.Filename,
			Bytes:       att.Bytes,
			ContentType: att.ContentType,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		job := &domain.Job{
			ID:      uuid.New().String(),
			Queue:   domain.JobAttachmentUpload,
			Type:    domain.JobAttachmentUpload,
			Payload: data,
			State:   domain.JobQueued,
		}
		_ = o.queue.Enqueue(ctx, job)
	}
}

// rotateGraphTokenIfNeeded performs §4.1's OAuth rotation: the new
// refresh token is persisted before the access token is used for any
// sync read (invariant 8).
func (o *Orchestrator) rotateGraphTokenIfNeeded(ctx context.Context, account *domain.MailAccount) error {
	if account.AuthMode != domain.AuthModeGraph {
		return nil
	}

	refreshToken, err := o.vault.Decrypt(account.EncryptedRefreshToken)
	if err != nil {
		return apperr.CredentialRejected(account.Email, err)
	}

	accessToken, newRefreshToken, expiresIn, err := o.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		if isFatalOAuthError(err) {
			return apperr.CredentialRejected(account.Email, err)
		}
		return apperr.ProviderUnavailable("microsoft-graph", err)
	}

	encAccess, err := o.vault.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh := account.EncryptedRefreshToken
	if newRefreshToken != "" {
		encRefresh, err = o.vault.Encrypt(newRefreshToken)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	account.EncryptedAccessToken = encAccess
	account.EncryptedRefreshToken = encRefresh
	account.TokenExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)

	// Persist before the access token is used for any sync read.
	if err := o.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("persist rotated token: %w", err)
	}
	return nil
}

func isFatalOAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "aadsts")
}
