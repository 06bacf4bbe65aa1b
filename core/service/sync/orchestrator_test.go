package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mailmirror/core/domain"
	"mailmirror/core/port/out"
)

// fakeVault is a no-op CredentialVault: these tests only exercise the
// IMAP path, which never decrypts a token.
type fakeVault struct{}

func (fakeVault) Encrypt(s string) (string, error) { return s, nil }
func (fakeVault) Decrypt(s string) (string, error) { return s, nil }

// fakeIMAPAdapter replays a fixed message set regardless of the
// watermark it's handed, simulating an at-least-once provider redelivery.
type fakeIMAPAdapter struct {
	folders  []domain.FolderDescriptor
	messages []out.RawMessage
	highest  domain.Watermark
}

func (a *fakeIMAPAdapter) TestConnection(ctx context.Context, account *domain.MailAccount) error {
	return nil
}

func (a *fakeIMAPAdapter) ListFolders(ctx context.Context, account *domain.MailAccount) ([]domain.FolderDescriptor, error) {
	return a.folders, nil
}

func (a *fakeIMAPAdapter) HighestWatermark(ctx context.Context, account *domain.MailAccount, folder domain.FolderDescriptor) (domain.Watermark, error) {
	return a.highest, nil
}

func (a *fakeIMAPAdapter) FetchSince(ctx context.Context, account *domain.MailAccount, folder domain.FolderDescriptor, from domain.Watermark, chunkSize int, yield func(out.RawMessage) error) (domain.Watermark, error) {
	for _, raw := range a.messages {
		if err := yield(raw); err != nil {
			return from, err
		}
	}
	return a.highest, nil
}

type fakeAccountRepo struct {
	byID map[string]*domain.MailAccount
}

func newFakeAccountRepo(accounts ...*domain.MailAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{byID: map[string]*domain.MailAccount{}}
	for _, a := range accounts {
		r.byID[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) Create(ctx context.Context, a *domain.MailAccount) error {
	r.byID[a.ID] = a
	return nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id string) (*domain.MailAccount, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, out.ErrNotFound
	}
	return a, nil
}

func (r *fakeAccountRepo) GetByUserAndEmail(ctx context.Context, userID, email string) (*domain.MailAccount, error) {
	for _, a := range r.byID {
		if a.UserID == userID && a.Email == email {
			return a, nil
		}
	}
	return nil, out.ErrNotFound
}

func (r *fakeAccountRepo) ListByUser(ctx context.Context, userID string) ([]*domain.MailAccount, error) {
	var accs []*domain.MailAccount
	for _, a := range r.byID {
		if a.UserID == userID {
			accs = append(accs, a)
		}
	}
	return accs, nil
}

func (r *fakeAccountRepo) ListActive(ctx context.Context) ([]*domain.MailAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) Update(ctx context.Context, a *domain.MailAccount) error {
	r.byID[a.ID] = a
	return nil
}

func (r *fakeAccountRepo) Delete(ctx context.Context, id string) error {
	delete(r.byID, id)
	return nil
}

// fakeMessageRepo is the idempotent mirror store's in-memory stand-in:
// ExistsByUIDFolderAccount inspects soft-deleted rows too, matching the
// real contract that replay must never resurrect a tombstone.
type fakeMessageRepo struct {
	byKey map[string]*domain.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{byKey: map[string]*domain.Message{}}
}

func msgKey(accountID, folder string, uid int64) string {
	return fmt.Sprintf("%s|%s|%d", accountID, folder, uid)
}

func (r *fakeMessageRepo) Insert(ctx context.Context, m *domain.Message) (bool, error) {
	key := msgKey(m.AccountID, m.Folder, m.UID)
	if _, exists := r.byKey[key]; exists {
		return false, nil
	}
	r.byKey[key] = m
	return true, nil
}

func (r *fakeMessageRepo) ExistsByUIDFolderAccount(ctx context.Context, uid int64, folder, accountID string) (bool, error) {
	_, exists := r.byKey[msgKey(accountID, folder, uid)]
	return exists, nil
}

func (r *fakeMessageRepo) HighestUID(ctx context.Context, accountID, canonicalFolder string) (int64, error) {
	var max int64
	for _, m := range r.byKey {
		if m.AccountID == accountID && m.Folder == canonicalFolder && !m.IsDeleted() && m.UID > max {
			max = m.UID
		}
	}
	return max, nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	for _, m := range r.byKey {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, out.ErrNotFound
}

func (r *fakeMessageRepo) List(ctx context.Context, q out.MessageListQuery) ([]*domain.Message, int, error) {
	return nil, 0, nil
}

func (r *fakeMessageRepo) SetReadStatus(ctx context.Context, id string, isRead bool) error {
	return nil
}

func (r *fakeMessageRepo) SoftDelete(ctx context.Context, id string) error {
	for _, m := range r.byKey {
		if m.ID == id {
			now := time.Now()
			m.DeletedAt = &now
			return nil
		}
	}
	return out.ErrNotFound
}

func rfc822Message(uid int64) []byte {
	return []byte(fmt.Sprintf(
		"From: sender@example.com\r\nTo: me@example.com\r\nSubject: msg-%d\r\n\r\nbody %d",
		uid, uid,
	))
}

func newTestOrchestrator(accounts *fakeAccountRepo, messages *fakeMessageRepo, adapter out.ProviderAdapter) *Orchestrator {
	return NewOrchestrator(accounts, messages, fakeVault{}, nil, adapter, nil, nil, nil)
}

// TestRunInitialSyncDeltaHappyPath covers §8 scenario 3: a fresh account
// discovers INBOX and mirrors every message the adapter yields.
func TestRunInitialSyncDeltaHappyPath(t *testing.T) {
	accounts := newFakeAccountRepo(&domain.MailAccount{ID: "acc-1", UserID: "u-1", AuthMode: domain.AuthModeIMAP, Provider: domain.ProviderGmail})
	messages := newFakeMessageRepo()
	adapter := &fakeIMAPAdapter{
		folders: []domain.FolderDescriptor{{Path: "INBOX"}},
		messages: []out.RawMessage{
			{UID: 1, RawRFC822: rfc822Message(1)},
			{UID: 2, RawRFC822: rfc822Message(2)},
			{UID: 3, RawRFC822: rfc822Message(3)},
		},
		highest: domain.Watermark{IsUID: true, UID: 100},
	}

	result, err := newTestOrchestrator(accounts, messages, adapter).RunInitialSync(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EmailsSynced != 3 {
		t.Fatalf("got EmailsSynced=%d, want 3", result.EmailsSynced)
	}
	if len(messages.byKey) != 3 {
		t.Fatalf("got %d mirrored rows, want 3", len(messages.byKey))
	}
	if len(result.FoldersSynced) != 1 || result.FoldersSynced[0] != domain.FolderInbox {
		t.Fatalf("got FoldersSynced=%v, want [%s]", result.FoldersSynced, domain.FolderInbox)
	}
}

// TestRunIncrementalSyncIsIdempotentOnReplay covers §8 scenario 4: the
// same adapter redelivering the same UIDs must not double-insert.
func TestRunIncrementalSyncIsIdempotentOnReplay(t *testing.T) {
	accounts := newFakeAccountRepo(&domain.MailAccount{ID: "acc-1", UserID: "u-1", AuthMode: domain.AuthModeIMAP, Provider: domain.ProviderGmail})
	messages := newFakeMessageRepo()
	adapter := &fakeIMAPAdapter{
		folders: []domain.FolderDescriptor{{Path: "INBOX"}},
		messages: []out.RawMessage{
			{UID: 1, RawRFC822: rfc822Message(1)},
			{UID: 2, RawRFC822: rfc822Message(2)},
		},
		highest: domain.Watermark{IsUID: true, UID: 100},
	}
	orch := newTestOrchestrator(accounts, messages, adapter)

	if _, err := orch.RunInitialSync(context.Background(), "acc-1"); err != nil {
		t.Fatalf("initial sync: unexpected error: %v", err)
	}
	if len(messages.byKey) != 2 {
		t.Fatalf("got %d rows after initial sync, want 2", len(messages.byKey))
	}

	result, err := orch.RunIncrementalSync(context.Background(), "acc-1", []string{domain.FolderInbox})
	if err != nil {
		t.Fatalf("incremental sync: unexpected error: %v", err)
	}
	if result.EmailsSynced != 0 {
		t.Fatalf("got EmailsSynced=%d on replay, want 0", result.EmailsSynced)
	}
	if len(messages.byKey) != 2 {
		t.Fatalf("got %d rows after replay, want still 2 (no duplicates)", len(messages.byKey))
	}
}

// TestTombstonesAreNotResurrectedOnReplay covers §8 scenario 5: a
// soft-deleted message redelivered by the provider must stay deleted.
func TestTombstonesAreNotResurrectedOnReplay(t *testing.T) {
	accounts := newFakeAccountRepo(&domain.MailAccount{ID: "acc-1", UserID: "u-1", AuthMode: domain.AuthModeIMAP, Provider: domain.ProviderGmail})
	messages := newFakeMessageRepo()
	adapter := &fakeIMAPAdapter{
		folders: []domain.FolderDescriptor{{Path: "INBOX"}},
		messages: []out.RawMessage{
			{UID: 1, RawRFC822: rfc822Message(1)},
		},
		highest: domain.Watermark{IsUID: true, UID: 100},
	}
	orch := newTestOrchestrator(accounts, messages, adapter)

	if _, err := orch.RunInitialSync(context.Background(), "acc-1"); err != nil {
		t.Fatalf("initial sync: unexpected error: %v", err)
	}

	var deletedID string
	for _, m := range messages.byKey {
		deletedID = m.ID
	}
	if err := messages.SoftDelete(context.Background(), deletedID); err != nil {
		t.Fatalf("soft delete: unexpected error: %v", err)
	}

	result, err := orch.RunIncrementalSync(context.Background(), "acc-1", []string{domain.FolderInbox})
	if err != nil {
		t.Fatalf("incremental sync: unexpected error: %v", err)
	}
	if result.EmailsSynced != 0 {
		t.Fatalf("got EmailsSynced=%d on tombstone replay, want 0", result.EmailsSynced)
	}

	msg, err := messages.GetByID(context.Background(), deletedID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !msg.IsDeleted() {
		t.Fatal("tombstoned message was resurrected by replay")
	}
}
