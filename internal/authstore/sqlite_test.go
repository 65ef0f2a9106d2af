package authstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Ryan-Har/authgate/internal/testutil"
	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSqliteStore(t *testing.T) *sqliteAuthStore {
	t.Helper()
	return NewWithSqliteStore(testutil.NewSqliteDB(t), testutil.NoopLogger())
}

func TestSqlite_CreateAndGetAccount(t *testing.T) {
	ctx := context.Background()
	s := newSqliteStore(t)

	created, err := s.CreateAccount(ctx, models.CreateAccountParams{
		Username:     "alice",
		Email:        testutil.StrPtr("alice@example.com"),
		PasswordHash: "$2a$10$hash",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "$2a$10$hash", got.PasswordHash)
	require.NotNil(t, got.Email)
	assert.Equal(t, "alice@example.com", *got.Email)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.LastLoginIP)

	byID, err := s.GetAccountByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
}

func TestSqlite_UsernameIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	s := newSqliteStore(t)

	_, err := s.CreateAccount(ctx, models.CreateAccountParams{Username: "Alice", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = s.GetAccountByUsername(ctx, "alice")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// a different case is a different account
	_, err = s.CreateAccount(ctx, models.CreateAccountParams{Username: "alice", PasswordHash: "h"})
	assert.NoError(t, err)
}

func TestSqlite_GetMissingAccount(t *testing.T) {
	ctx := context.Background()
	s := newSqliteStore(t)

	_, err := s.GetAccountByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.GetAccountByID(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.GetAccountByID(ctx, uuid.Nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSqlite_DuplicatesAreGeneric(t *testing.T) {
	ctx := context.Background()
	s := newSqliteStore(t)

	_, err := s.CreateAccount(ctx, models.CreateAccountParams{
		Username: "alice", Email: testutil.StrPtr("a@example.com"), PasswordHash: "h",
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		params models.CreateAccountParams
	}{
		{"same username", models.CreateAccountParams{Username: "alice", Email: testutil.StrPtr("other@example.com"), PasswordHash: "h"}},
		{"same email", models.CreateAccountParams{Username: "bob", Email: testutil.StrPtr("a@example.com"), PasswordHash: "h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateAccount(ctx, tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrDuplicate)
			assert.Equal(t, "account already exists", err.Error())
		})
	}
}

func TestSqlite_EmptyEmailStoredAsNull(t *testing.T) {
	ctx := context.Background()
	s := newSqliteStore(t)

	for _, name := range []string{"carol", "dave"} {
		acct, err := s.CreateAccount(ctx, models.CreateAccountParams{
			Username: name, Email: testutil.StrPtr(""), PasswordHash: "h",
		})
		require.NoError(t, err)
		assert.Nil(t, acct.Email)
	}
}

func TestSqlite_ConcurrentRegistrationOneWinner(t *testing.T) {
	ctx := context.Background()
	s := newSqliteStore(t)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dups      int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateAccount(ctx, models.CreateAccountParams{
				Username:     "racer",
				Email:        testutil.StrPtr(fmt.Sprintf("racer%d@example.com", i)),
				PasswordHash: "h",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, models.ErrDuplicate):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, dups)

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestSqlite_UpdateLastLogin(t *testing.T) {
	ctx := context.Background()
	s := newSqliteStore(t)

	acct, err := s.CreateAccount(ctx, models.CreateAccountParams{Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateLastLogin(ctx, acct.ID, "203.0.113.7", "Berlin, Germany"))

	got, err := s.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginIP)
	require.NotNil(t, got.LastLocation)
	assert.Equal(t, "203.0.113.7", *got.LastLoginIP)
	assert.Equal(t, "Berlin, Germany", *got.LastLocation)

	err = s.UpdateLastLogin(ctx, uuid.New(), "1.1.1.1", "x")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSqlite_ListAccountsOrdered(t *testing.T) {
	ctx := context.Background()
	s := newSqliteStore(t)

	for _, name := range []string{"zed", "amy", "mike"} {
		_, err := s.CreateAccount(ctx, models.CreateAccountParams{Username: name, PasswordHash: "h"})
		require.NoError(t, err)
	}

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, "amy", accounts[0].Username)
	assert.Equal(t, "mike", accounts[1].Username)
	assert.Equal(t, "zed", accounts[2].Username)
}

func TestSqlite_ClosedDBIsTransient(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSqliteDB(t)
	s := NewWithSqliteStore(db, testutil.NoopLogger())
	require.NoError(t, db.Close())

	_, err := s.GetAccountByUsername(ctx, "alice")
	var sErr *models.TransientStoreError
	assert.True(t, errors.As(err, &sErr))
}
