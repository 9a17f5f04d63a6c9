package authpw

import (
	"context"
	"errors"
	"testing"

	"redbook/api/internal/store"
)

type fakeUserStore struct {
	users  map[string]store.User
	nextID int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]store.User{}}
}

func (f *fakeUserStore) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	user, ok := f.users[username]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserStore) CreateUser(_ context.Context, username, passwordHash string, isAdmin bool) (store.User, error) {
	if _, ok := f.users[username]; ok {
		return store.User{}, store.ErrDuplicate
	}
	f.nextID++
	user := store.User{ID: f.nextID, Username: username, PasswordHash: passwordHash, IsAdmin: isAdmin}
	f.users[username] = user
	return user, nil
}

func TestRegisterAndSignIn(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	created, err := svc.Register(ctx, "saleh", "correct horse", true)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if created.PasswordHash == "correct horse" {
		t.Fatal("password stored in plain text")
	}

	user, err := svc.SignIn(ctx, "saleh", "correct horse")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if user.ID != created.ID || !user.IsAdmin {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "saleh", "correct horse", false); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := svc.SignIn(ctx, "saleh", "wrong horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSignInUnknownUserSameError(t *testing.T) {
	svc := NewService(newFakeUserStore())

	_, err := svc.SignIn(context.Background(), "nobody", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := NewService(newFakeUserStore())

	if _, err := svc.Register(context.Background(), "saleh", "short", false); err == nil {
		t.Fatal("expected short password to be rejected")
	}
}
