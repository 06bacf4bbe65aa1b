// Package search implements the §6 search boundary over the mirror
// store's full-text index, grounded on worker_email_adapter.go's Search
// (ts_rank ranking, ILIKE sender match) reworked onto the user-scoped
// SearchRepository the postgres adapter exposes.
package search

import (
	"context"

	"mailmirror/core/domain"
	"mailmirror/core/port/in"
	"mailmirror/core/port/out"
)

type Service struct {
	search out.SearchRepository
}

func NewService(search out.SearchRepository) *Service {
	return &Service{search: search}
}

var _ in.SearchService = (*Service)(nil)

func (s *Service) SearchQuery(ctx context.Context, userID, q string, page, limit int) ([]*domain.Message, int, error) {
	return s.search.SearchQuery(ctx, userID, q, page, limit)
}

func (s *Service) SearchSender(ctx context.Context, userID, sender string, page, limit int) ([]*domain.Message, int, error) {
	return s.search.SearchSender(ctx, userID, sender, page, limit)
}
