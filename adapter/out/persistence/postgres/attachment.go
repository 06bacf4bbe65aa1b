package postgres

import (
	"context"
	"time"

	"mailmirror/core/domain"
)

type AttachmentRepository struct {
	db *DB
}

func NewAttachmentRepository(db *DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

const attachmentSelectColumns = `id, message_id, filename, content_type, size, storage_url, created_at`

type attachmentRow struct {
	ID          string    `db:"id"`
	MessageID   string    `db:"message_id"`
	Filename    string    `db:"filename"`
	ContentType string    `db:"content_type"`
	Size        int64     `db:"size"`
	StorageURL  string    `db:"storage_url"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r attachmentRow) toDomain() *domain.Attachment {
	return &domain.Attachment{
		ID:          r.ID,
		MessageID:   r.MessageID,
		Filename:    r.Filename,
		ContentType: r.ContentType,
		Size:        r.Size,
		StorageURL:  r.StorageURL,
		CreatedAt:   r.CreatedAt,
	}
}

func (r *AttachmentRepository) Create(ctx context.Context, a *domain.Attachment) error {
	query := `
		INSERT INTO attachments (id, message_id, filename, content_type, size, storage_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`
	_, err := r.db.ExecContext(ctx, query, a.ID, a.MessageID, a.Filename, a.ContentType, a.Size, a.StorageURL)
	return err
}

func (r *AttachmentRepository) ListByMessage(ctx context.Context, messageID string) ([]*domain.Attachment, error) {
	var rows []attachmentRow
	query := `SELECT ` + attachmentSelectColumns + ` FROM attachments WHERE message_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query, messageID); err != nil {
		return nil, err
	}
	attachments := make([]*domain.Attachment, 0, len(rows))
	for _, row := range rows {
		attachments = append(attachments, row.toDomain())
	}
	return attachments, nil
}
