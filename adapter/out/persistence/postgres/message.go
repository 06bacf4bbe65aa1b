package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"mailmirror/core/domain"
	"mailmirror/core/port/out"
)

type MessageRepository struct {
	db *DB
}

// bodyPreviewMaxRunes bounds body_preview: the full body lives in the
// body cache (out.BodyCache), so the mirror row only needs enough text
// for the email_fts trigger and a list-view snippet.
const bodyPreviewMaxRunes = 500

func truncatePreview(body string) string {
	r := []rune(body)
	if len(r) <= bodyPreviewMaxRunes {
		return body
	}
	return string(r[:bodyPreviewMaxRunes]) + "…"
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageSelectColumns = `
	id, account_id, uid, folder, provider_message_id, thread_key,
	from_address, to_addresses, subject, body_preview,
	is_read, received_at, fetched_at, deleted_at`

type messageRow struct {
	ID                string       `db:"id"`
	AccountID         string       `db:"account_id"`
	UID               int64        `db:"uid"`
	Folder            string       `db:"folder"`
	ProviderMessageID string       `db:"provider_message_id"`
	ThreadKey         string       `db:"thread_key"`
	FromAddress       string       `db:"from_address"`
	ToAddresses       string       `db:"to_addresses"`
	Subject           string       `db:"subject"`
	BodyPreview       string       `db:"body_preview"`
	IsRead            bool         `db:"is_read"`
	ReceivedAt        time.Time    `db:"received_at"`
	FetchedAt         time.Time    `db:"fetched_at"`
	DeletedAt         sql.NullTime `db:"deleted_at"`
}

func (r *messageRow) toDomain() (*domain.Message, error) {
	m := &domain.Message{
		ID:                r.ID,
		AccountID:         r.AccountID,
		UID:               r.UID,
		Folder:            r.Folder,
		ProviderMessageID: r.ProviderMessageID,
		ThreadKey:         r.ThreadKey,
		From:              r.FromAddress,
		Subject:           r.Subject,
		Body:              r.BodyPreview,
		IsRead:            r.IsRead,
		ReceivedAt:        r.ReceivedAt,
		FetchedAt:         r.FetchedAt,
	}
	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time
		m.DeletedAt = &t
	}
	if err := json.Unmarshal([]byte(orEmptyArray(r.ToAddresses)), &m.To); err != nil {
		return nil, err
	}
	return m, nil
}

// Insert persists a message mirror row; a unique-constraint collision on
// (account_id, uid, folder) is absorbed as inserted=false, per the
// at-least-once replay contract messages are ingested under.
func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message) (bool, error) {
	toAddresses, err := json.Marshal(m.To)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO messages (
			id, account_id, uid, folder, provider_message_id, thread_key,
			from_address, to_addresses, subject, body_preview,
			is_read, received_at, fetched_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now()
		)
		ON CONFLICT (account_id, uid, folder) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		m.ID, m.AccountID, m.UID, m.Folder, m.ProviderMessageID, m.ThreadKey,
		m.From, toAddresses, m.Subject, truncatePreview(m.Body),
		m.IsRead, m.ReceivedAt,
	)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *MessageRepository) ExistsByUIDFolderAccount(ctx context.Context, uid int64, folder, accountID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM messages WHERE account_id = $1 AND uid = $2 AND folder = $3)`
	if err := r.db.GetContext(ctx, &exists, query, accountID, uid, folder); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *MessageRepository) HighestUID(ctx context.Context, accountID, canonicalFolder string) (int64, error) {
	var max sql.NullInt64
	query := `SELECT MAX(uid) FROM messages WHERE account_id = $1 AND folder = $2 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &max, query, accountID, canonicalFolder); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var row messageRow
	query := `SELECT ` + messageSelectColumns + ` FROM messages WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

// List applies q's filters with a COUNT(*) OVER() window so the page and
// its total arrive in a single round trip.
func (r *MessageRepository) List(ctx context.Context, q out.MessageListQuery) ([]*domain.Message, int, error) {
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	where := []string{"account_id = $1", "deleted_at IS NULL"}
	args := []any{q.AccountID}

	if q.Folder != "" {
		args = append(args, q.Folder)
		where = append(where, fmt.Sprintf("folder = $%d", len(args)))
	}
	if q.IsRead != nil {
		args = append(args, *q.IsRead)
		where = append(where, fmt.Sprintf("is_read = $%d", len(args)))
	}
	if q.FromDate != nil {
		args = append(args, *q.FromDate)
		where = append(where, fmt.Sprintf("received_at >= $%d", len(args)))
	}
	if q.ToDate != nil {
		args = append(args, *q.ToDate)
		where = append(where, fmt.Sprintf("received_at <= $%d", len(args)))
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() as total_count
		FROM messages
		WHERE %s
		ORDER BY received_at DESC
		LIMIT $%d OFFSET $%d`, messageSelectColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var messages []*domain.Message
	var total int
	for rows.Next() {
		var row struct {
			messageRow
			TotalCount int `db:"total_count"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, 0, err
		}
		m, err := row.messageRow.toDomain()
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, m)
		total = row.TotalCount
	}
	return messages, total, rows.Err()
}

func (r *MessageRepository) SetReadStatus(ctx context.Context, id string, isRead bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = $1 WHERE id = $2`, isRead, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
