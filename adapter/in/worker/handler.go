// Package worker consumes the three durable queues of §4.6 and
// dispatches each job to the sync orchestrator or the attachment
// uploader, grounded on adapter/in/worker/worker_dispatcher.go's
// type-switch-over-JobType shape, reworked onto SPEC_FULL.md's three
// job kinds.
package worker

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailmirror/core/domain"
	"mailmirror/core/port/in"
	"mailmirror/core/port/out"
)

// Handler processes one decoded job per call; it is the function value
// passed to out.JobQueue.Consume for each of the three queues.
type Handler struct {
	sync        in.SyncService
	uploader    out.AttachmentUploader
	attachments out.AttachmentRepository
	log         zerolog.Logger
}

func NewHandler(sync in.SyncService, uploader out.AttachmentUploader, attachments out.AttachmentRepository, log zerolog.Logger) *Handler {
	return &Handler{sync: sync, uploader: uploader, attachments: attachments, log: log}
}

// Handle dispatches job by its type. A returned error causes the queue
// to retry with backoff (§4.6) unless it is a CredentialRejected
// AppError, which the orchestrator already surfaces undecorated so the
// job fails without retry.
func (h *Handler) Handle(ctx context.Context, job *domain.Job) error {
	switch job.Type {
	case domain.JobInitialSync:
		return h.handleInitialSync(ctx, job)
	case domain.JobIncrementalSync:
		return h.handleIncrementalSync(ctx, job)
	case domain.JobAttachmentUpload:
		return h.handleAttachmentUpload(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (h *Handler) handleInitialSync(ctx context.Context, job *domain.Job) error {
	var payload domain.InitialSyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode initial-sync payload: %w", err)
	}

	result, err := h.sync.RunInitialSync(ctx, payload.AccountID)
	if err != nil {
		return err
	}

	h.log.Info().
		Str("account_id", payload.AccountID).
		Str("email", payload.Email).
		Int("emails_synced", result.EmailsSynced).
		Strs("folders_synced", result.FoldersSynced).
		Interface("folders_failed", result.FoldersFailed).
		Msg("initial sync completed")
	return nil
}

func (h *Handler) handleIncrementalSync(ctx context.Context, job *domain.Job) error {
	var payload domain.IncrementalSyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode incremental-sync payload: %w", err)
	}

	result, err := h.sync.RunIncrementalSync(ctx, payload.AccountID, payload.Folders)
	if err != nil {
		return err
	}

	h.log.Info().
		Str("account_id", payload.AccountID).
		Str("email", payload.Email).
		Int("emails_synced", result.EmailsSynced).
		Msg("incremental sync completed")
	return nil
}

func (h *Handler) handleAttachmentUpload(ctx context.Context, job *domain.Job) error {
	var payload domain.AttachmentUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode attachment-upload payload: %w", err)
	}

	url, err := h.uploader.Upload(ctx, payload.Bytes, payload.ContentType, payload.Filename)
	if err != nil {
		return fmt.Errorf("upload attachment: %w", err)
	}

	att := &domain.Attachment{
		ID:          uuid.New().String(),
		MessageID:   payload.MessageID,
		Filename:    payload.Filename,
		ContentType: payload.ContentType,
		Size:        int64(len(payload.Bytes)),
		StorageURL:  url,
	}
	if err := h.attachments.Create(ctx, att); err != nil {
		return fmt.Errorf("record attachment: %w", err)
	}
	return nil
}
