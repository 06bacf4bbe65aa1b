package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"

	"mailmirror/core/domain"
)

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// accountRow mirrors mail_accounts; the jsonb columns (synced folders,
// uid validity, the two Graph caches) are kept as raw text and
// marshaled/unmarshaled explicitly rather than tagging domain.MailAccount
// itself with db/json tags, keeping the domain type free of persistence
// concerns.
type accountRow struct {
	ID       string `db:"id"`
	UserID   string `db:"user_id"`
	Email    string `db:"email"`
	Provider string `db:"provider"`
	AuthMode string `db:"auth_mode"`

	EncryptedPassword string `db:"encrypted_password"`
	IMAPHost          string `db:"imap_host"`
	IMAPPort          int    `db:"imap_port"`

	EncryptedAccessToken  string       `db:"encrypted_access_token"`
	EncryptedRefreshToken string       `db:"encrypted_refresh_token"`
	TokenExpiresAt        sql.NullTime `db:"token_expires_at"`

	SyncedFolders   string `db:"synced_folders"`
	LastFetchedUID  int64  `db:"last_fetched_uid"`
	UIDValidity     string `db:"uid_validity"`
	GraphFolderIDs  string `db:"graph_folder_ids"`
	GraphDeltaLinks string `db:"graph_delta_links"`

	LastSyncedAt sql.NullTime `db:"last_synced_at"`
	CreatedAt    time.Time    `db:"created_at"`
}

const accountSelectColumns = `
	id, user_id, email, provider, auth_mode,
	encrypted_password, imap_host, imap_port,
	encrypted_access_token, encrypted_refresh_token, token_expires_at,
	synced_folders, last_fetched_uid, uid_validity, graph_folder_ids, graph_delta_links,
	last_synced_at, created_at`

func (r *accountRow) toDomain() (*domain.MailAccount, error) {
	a := &domain.MailAccount{
		ID:                    r.ID,
		UserID:                r.UserID,
		Email:                 r.Email,
		Provider:              domain.Provider(r.Provider),
		AuthMode:              domain.AuthMode(r.AuthMode),
		EncryptedPassword:     r.EncryptedPassword,
		IMAPHost:              r.IMAPHost,
		IMAPPort:              r.IMAPPort,
		EncryptedAccessToken:  r.EncryptedAccessToken,
		EncryptedRefreshToken: r.EncryptedRefreshToken,
		LastFetchedUID:        r.LastFetchedUID,
		CreatedAt:             r.CreatedAt,
	}
	if r.TokenExpiresAt.Valid {
		a.TokenExpiresAt = r.TokenExpiresAt.Time
	}
	if r.LastSyncedAt.Valid {
		a.LastSyncedAt = r.LastSyncedAt.Time
	}
	if err := json.Unmarshal([]byte(orEmptyArray(r.SyncedFolders)), &a.SyncedFolders); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(orEmptyObject(r.UIDValidity)), &a.UIDValidity); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(orEmptyObject(r.GraphFolderIDs)), &a.GraphFolderIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(orEmptyObject(r.GraphDeltaLinks)), &a.GraphDeltaLinks); err != nil {
		return nil, err
	}
	return a, nil
}

func orEmptyArray(s string) string {
	if s == "" {
		return "[]"
	}
	return s
}

func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

func (r *AccountRepository) Create(ctx context.Context, a *domain.MailAccount) error {
	syncedFolders, err := json.Marshal(a.SyncedFolders)
	if err != nil {
		return err
	}
	uidValidity, err := json.Marshal(nonNilUint32Map(a.UIDValidity))
	if err != nil {
		return err
	}
	graphFolderIDs, err := json.Marshal(nonNilStringMap(a.GraphFolderIDs))
	if err != nil {
		return err
	}
	graphDeltaLinks, err := json.Marshal(nonNilStringMap(a.GraphDeltaLinks))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO mail_accounts (
			id, user_id, email, provider, auth_mode,
			encrypted_password, imap_host, imap_port,
			encrypted_access_token, encrypted_refresh_token, token_expires_at,
			synced_folders, last_fetched_uid, uid_validity, graph_folder_ids, graph_delta_links,
			last_synced_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now()
		)`

	_, err = r.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.Email, string(a.Provider), string(a.AuthMode),
		a.EncryptedPassword, a.IMAPHost, a.IMAPPort,
		a.EncryptedAccessToken, a.EncryptedRefreshToken, nullTime(a.TokenExpiresAt),
		syncedFolders, a.LastFetchedUID, uidValidity, graphFolderIDs, graphDeltaLinks,
		nullTime(a.LastSyncedAt),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.MailAccount, error) {
	var row accountRow
	query := `SELECT ` + accountSelectColumns + ` FROM mail_accounts WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

func (r *AccountRepository) GetByUserAndEmail(ctx context.Context, userID, email string) (*domain.MailAccount, error) {
	var row accountRow
	query := `SELECT ` + accountSelectColumns + ` FROM mail_accounts WHERE user_id = $1 AND email = $2`
	if err := r.db.GetContext(ctx, &row, query, userID, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID string) ([]*domain.MailAccount, error) {
	var rows []accountRow
	query := `SELECT ` + accountSelectColumns + ` FROM mail_accounts WHERE user_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}
	return rowsToAccounts(rows)
}

// ListActive returns every account with at least one synced folder,
// oldest LastSyncedAt first, for the scheduler's incremental-sync tick.
func (r *AccountRepository) ListActive(ctx context.Context) ([]*domain.MailAccount, error) {
	var rows []accountRow
	query := `
		SELECT ` + accountSelectColumns + `
		FROM mail_accounts
		WHERE synced_folders != '[]'
		ORDER BY last_synced_at ASC NULLS FIRST`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	return rowsToAccounts(rows)
}

func rowsToAccounts(rows []accountRow) ([]*domain.MailAccount, error) {
	accounts := make([]*domain.MailAccount, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (r *AccountRepository) Update(ctx context.Context, a *domain.MailAccount) error {
	syncedFolders, err := json.Marshal(a.SyncedFolders)
	if err != nil {
		return err
	}
	uidValidity, err := json.Marshal(nonNilUint32Map(a.UIDValidity))
	if err != nil {
		return err
	}
	graphFolderIDs, err := json.Marshal(nonNilStringMap(a.GraphFolderIDs))
	if err != nil {
		return err
	}
	graphDeltaLinks, err := json.Marshal(nonNilStringMap(a.GraphDeltaLinks))
	if err != nil {
		return err
	}

	query := `
		UPDATE mail_accounts SET
			encrypted_password = $1, imap_host = $2, imap_port = $3,
			encrypted_access_token = $4, encrypted_refresh_token = $5, token_expires_at = $6,
			synced_folders = $7, last_fetched_uid = $8, uid_validity = $9,
			graph_folder_ids = $10, graph_delta_links = $11, last_synced_at = $12
		WHERE id = $13`

	result, err := r.db.ExecContext(ctx, query,
		a.EncryptedPassword, a.IMAPHost, a.IMAPPort,
		a.EncryptedAccessToken, a.EncryptedRefreshToken, nullTime(a.TokenExpiresAt),
		syncedFolders, a.LastFetchedUID, uidValidity,
		graphFolderIDs, graphDeltaLinks, nullTime(a.LastSyncedAt),
		a.ID,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM mail_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nonNilUint32Map(m map[string]uint32) map[string]uint32 {
	if m == nil {
		return map[string]uint32{}
	}
	return m
}

func nonNilStringMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// isUniqueViolation matches Postgres SQLSTATE 23505 (unique_violation).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
