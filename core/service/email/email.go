// Package email implements the §6 listing/mutation boundary over the
// mirror store, grounded on worker_email_handler.go's list/get/read/
// delete surface, narrowed to the fields SPEC_FULL.md's read-only
// external interface actually exposes.
package email

import (
	"context"

	"mailmirror/core/domain"
	"mailmirror/core/port/in"
	"mailmirror/core/port/out"
	"mailmirror/pkg/apperr"
)

type Service struct {
	messages  out.MessageRepository
	accounts  out.AccountRepository
	bodyCache out.BodyCache
}

func NewService(messages out.MessageRepository, accounts out.AccountRepository, bodyCache out.BodyCache) *Service {
	return &Service{messages: messages, accounts: accounts, bodyCache: bodyCache}
}

var _ in.EmailService = (*Service)(nil)

func (s *Service) List(ctx context.Context, userID string, q in.MessageListQuery) ([]*domain.Message, int, error) {
	if err := s.authorizeAccount(ctx, userID, q.AccountID); err != nil {
		return nil, 0, err
	}
	return s.messages.List(ctx, out.MessageListQuery{
		AccountID: q.AccountID,
		Folder:    q.Folder,
		IsRead:    q.IsRead,
		FromDate:  q.FromDate,
		ToDate:    q.ToDate,
		Page:      q.Page,
		Limit:     q.Limit,
	})
}

func (s *Service) Get(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAccount(ctx, userID, msg.AccountID); err != nil {
		return nil, err
	}
	// Single-message reads rehydrate the full body from the cache; List
	// keeps serving the Postgres preview, which is all a result row needs.
	if s.bodyCache != nil {
		if body, htmlBody, err := s.bodyCache.Get(ctx, msg.ID); err == nil && body != "" {
			msg.Body = body
			msg.HTMLBody = htmlBody
		}
	}
	return msg, nil
}

func (s *Service) SetReadStatus(ctx context.Context, userID, messageID string, isRead bool) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.authorizeAccount(ctx, userID, msg.AccountID); err != nil {
		return err
	}
	return s.messages.SetReadStatus(ctx, messageID, isRead)
}

func (s *Service) Delete(ctx context.Context, userID, messageID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.authorizeAccount(ctx, userID, msg.AccountID); err != nil {
		return err
	}
	return s.messages.SoftDelete(ctx, messageID)
}

// authorizeAccount confirms accountID belongs to userID, so one user's
// messageId can never be read or mutated through another user's token.
func (s *Service) authorizeAccount(ctx context.Context, userID, accountID string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.UserID != userID {
		// Not owned by this caller reads identically to not existing
		// (§7 NotFound → 404).
		return apperr.NotFound("message")
	}
	return nil
}
