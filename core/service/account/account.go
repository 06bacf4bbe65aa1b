// Package account implements the §6 GET /accounts, GET/DELETE
// /accounts/{id} surface, grounded on worker_email_handler.go's
// ownership-check-then-delegate shape (mirrored from core/service/email)
// narrowed to the MailAccount aggregate. Deleting an account cascades to
// its Messages per the §3 invariant; that cascade is the persistence
// layer's FOREIGN KEY ... ON DELETE CASCADE, not application code.
package account

import (
	"context"

	"mailmirror/core/domain"
	"mailmirror/core/port/in"
	"mailmirror/core/port/out"
	"mailmirror/pkg/apperr"
)

type Service struct {
	accounts out.AccountRepository
}

func NewService(accounts out.AccountRepository) *Service {
	return &Service{accounts: accounts}
}

var _ in.AccountService = (*Service)(nil)

func (s *Service) List(ctx context.Context, userID string) ([]*domain.MailAccount, error) {
	return s.accounts.ListByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, accountID string) (*domain.MailAccount, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		// A mismatched owner is indistinguishable from a missing account
		// to the caller (§7 NotFound → 404); it must not leak existence.
		return nil, apperr.NotFound("account")
	}
	return account, nil
}

func (s *Service) Delete(ctx context.Context, userID, accountID string) error {
	if _, err := s.Get(ctx, userID, accountID); err != nil {
		return err
	}
	return s.accounts.Delete(ctx, accountID)
}
