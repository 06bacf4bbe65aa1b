package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mailmirror/core/domain"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	ExternalID   string    `db:"external_id"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		ExternalID:   r.ExternalID,
		CreatedAt:    r.CreatedAt,
	}
}

const userSelectColumns = `id, email, password_hash, external_id, created_at`

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	query := `SELECT ` + userSelectColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var row userRow
	query := `SELECT ` + userSelectColumns + ` FROM users WHERE email = $1`
	if err := r.db.GetContext(ctx, &row, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, external_id, created_at)
		VALUES ($1, $2, $3, $4, now())`
	_, err := r.db.ExecContext(ctx, query, u.ID, u.Email, u.PasswordHash, u.ExternalID)
	return err
}
