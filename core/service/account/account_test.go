package account

import (
	"context"
	"testing"

	"mailmirror/core/domain"
	"mailmirror/core/port/out"
)

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
	var out []*domain.MailAccount
	for _, a := range r.byID {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
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

func TestGetRejectsOtherUsersAccount(t *testing.T) {
	repo := newFakeAccountRepo(&domain.MailAccount{ID: "acc-1", UserID: "user-a"})
	svc := NewService(repo)

	if _, err := svc.Get(context.Background(), "user-b", "acc-1"); err == nil {
		t.Fatal("expected ownership error, got nil")
	}
}

func TestGetReturnsOwnedAccount(t *testing.T) {
	repo := newFakeAccountRepo(&domain.MailAccount{ID: "acc-1", UserID: "user-a", Email: "a@example.com"})
	svc := NewService(repo)

	account, err := svc.Get(context.Background(), "user-a", "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Email != "a@example.com" {
		t.Fatalf("got %q want a@example.com", account.Email)
	}
}

func TestDeleteRejectsOtherUsersAccount(t *testing.T) {
	repo := newFakeAccountRepo(&domain.MailAccount{ID: "acc-1", UserID: "user-a"})
	svc := NewService(repo)

	if err := svc.Delete(context.Background(), "user-b", "acc-1"); err == nil {
		t.Fatal("expected ownership error, got nil")
	}
	if _, ok := repo.byID["acc-1"]; !ok {
		t.Fatal("account should not have been deleted")
	}
}

func TestDeleteRemovesOwnedAccount(t *testing.T) {
	repo := newFakeAccountRepo(&domain.MailAccount{ID: "acc-1", UserID: "user-a"})
	svc := NewService(repo)

	if err := svc.Delete(context.Background(), "user-a", "acc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.byID["acc-1"]; ok {
		t.Fatal("account should have been deleted")
	}
}

func TestListScopesToUser(t *testing.T) {
	repo := newFakeAccountRepo(
		&domain.MailAccount{ID: "acc-1", UserID: "user-a"},
		&domain.MailAccount{ID: "acc-2", UserID: "user-b"},
	)
	svc := NewService(repo)

	accounts, err := svc.List(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "acc-1" {
		t.Fatalf("got %+v, want only acc-1", accounts)
	}
}
