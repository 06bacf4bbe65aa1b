package worker

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"mailmirror/core/domain"
	"mailmirror/core/port/in"
)

type fakeSyncService struct {
	initialCalledWith     string
	incrementalCalledWith string
	incrementalFolders    []string
	err                   error
}

func (f *fakeSyncService) RunInitialSync(ctx context.Context, accountID string) (in.SyncResult, error) {
	f.initialCalledWith = accountID
	return in.SyncResult{EmailsSynced: 3}, f.err
}

func (f *fakeSyncService) RunIncrementalSync(ctx context.Context, accountID string, folders []string) (in.SyncResult, error) {
	f.incrementalCalledWith = accountID
	f.incrementalFolders = folders
	return in.SyncResult{EmailsSynced: 1}, f.err
}

type fakeUploader struct {
	url string
	err error
}

func (f *fakeUploader) Upload(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	return f.url, f.err
}

type fakeAttachmentRepo struct {
	created []*domain.Attachment
}

func (f *fakeAttachmentRepo) Create(ctx context.Context, a *domain.Attachment) error {
	f.created = append(f.created, a)
	return nil
}

func (f *fakeAttachmentRepo) ListByMessage(ctx context.Context, messageID string) ([]*domain.Attachment, error) {
	return nil, nil
}

func TestHandleInitialSyncDecodesAndDispatches(t *testing.T) {
	sync := &fakeSyncService{}
	h := NewHandler(sync, &fakeUploader{}, &fakeAttachmentRepo{}, zerolog.Nop())

	payload, _ := json.Marshal(domain.InitialSyncPayload{AccountID: "acc-1", Email: "a@example.com"})
	job := &domain.Job{Type: domain.JobInitialSync, Payload: payload}

	if err := h.Handle(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sync.initialCalledWith != "acc-1" {
		t.Fatalf("got %q want acc-1", sync.initialCalledWith)
	}
}

func TestHandleIncrementalSyncPassesFolders(t *testing.T) {
	sync := &fakeSyncService{}
	h := NewHandler(sync, &fakeUploader{}, &fakeAttachmentRepo{}, zerolog.Nop())

	payload, _ := json.Marshal(domain.IncrementalSyncPayload{AccountID: "acc-2", Folders: []string{"INBOX", "Sent"}})
	job := &domain.Job{Type: domain.JobIncrementalSync, Payload: payload}

	if err := h.Handle(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sync.incrementalCalledWith != "acc-2" {
		t.Fatalf("got %q want acc-2", sync.incrementalCalledWith)
	}
	if len(sync.incrementalFolders) != 2 {
		t.Fatalf("got %v want 2 folders", sync.incrementalFolders)
	}
}

func TestHandleAttachmentUploadRecordsRepository(t *testing.T) {
	uploader := &fakeUploader{url: "https://blobs.example.com/a1"}
	repo := &fakeAttachmentRepo{}
	h := NewHandler(&fakeSyncService{}, uploader, repo, zerolog.Nop())

	payload, _ := json.Marshal(domain.AttachmentUploadPayload{
		MessageID:   "msg-1",
		Filename:    "invoice.pdf",
		Bytes:       []byte("pdf-bytes"),
		ContentType: "application/pdf",
	})
	job := &domain.Job{Type: domain.JobAttachmentUpload, Payload: payload}

	if err := h.Handle(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("got %d attachments recorded, want 1", len(repo.created))
	}
	if repo.created[0].StorageURL != "https://blobs.example.com/a1" {
		t.Fatalf("got %q want uploader url", repo.created[0].StorageURL)
	}
}

func TestHandleUnknownJobType(t *testing.T) {
	h := NewHandler(&fakeSyncService{}, &fakeUploader{}, &fakeAttachmentRepo{}, zerolog.Nop())
	job := &domain.Job{Type: domain.JobType("bogus")}

	if err := h.Handle(context.Background(), job); err == nil {
		t.Fatal("expected error for unknown job type")
	}
}
