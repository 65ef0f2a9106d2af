package auditstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Ryan-Har/authgate/internal/authstore"
	"github.com/Ryan-Har/authgate/internal/testutil"
	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Store = (*sqliteAuditStore)(nil)
	_ Store = (*postgresAuditStore)(nil)
)

func TestSqlite_RecordAndList(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSqliteDB(t)
	accounts := authstore.NewWithSqliteStore(db, testutil.NoopLogger())
	s := NewWithSqliteStore(db, testutil.NoopLogger())

	alice, err := accounts.CreateAccount(ctx, models.CreateAccountParams{Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)
	bob, err := accounts.CreateAccount(ctx, models.CreateAccountParams{Username: "bob", PasswordHash: "h"})
	require.NoError(t, err)

	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(ctx, models.LoginEvent{
		AccountID: alice.ID, IP: "1.1.1.1", Location: "Sydney, Australia", Device: "curl/8", LoggedAt: base,
	}))
	require.NoError(t, s.Record(ctx, models.LoginEvent{
		AccountID: bob.ID, IP: "::1", Location: "Unknown, Unknown", Device: "Firefox", LoggedAt: base.Add(time.Minute),
	}))
	require.NoError(t, s.Record(ctx, models.LoginEvent{
		AccountID: alice.ID, IP: "2.2.2.2", Location: "Oslo, Norway", Device: "Safari", LoggedAt: base.Add(2 * time.Minute),
	}))

	events, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "alice", events[0].Username)
	assert.Equal(t, "Oslo, Norway", events[0].Location)
	assert.Equal(t, "bob", events[1].Username)
	assert.Equal(t, "alice", events[2].Username)
	assert.True(t, base.Equal(events[2].LoggedAt))

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, events[0].ID, limited[0].ID)
}

func TestSqlite_RecordDefaultsTimestamp(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSqliteDB(t)
	accounts := authstore.NewWithSqliteStore(db, testutil.NoopLogger())
	s := NewWithSqliteStore(db, testutil.NoopLogger())

	acct, err := accounts.CreateAccount(ctx, models.CreateAccountParams{Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)

	before := time.Now().Add(-time.Second)
	require.NoError(t, s.Record(ctx, models.LoginEvent{AccountID: acct.ID, IP: "1.1.1.1", Location: "x", Device: "y"}))

	events, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].LoggedAt.After(before))
}

func TestSqlite_RecordUnknownAccountFails(t *testing.T) {
	s := NewWithSqliteStore(testutil.NewSqliteDB(t), testutil.NoopLogger())

	err := s.Record(context.Background(), models.LoginEvent{AccountID: uuid.New(), IP: "1.1.1.1", Location: "x", Device: "y"})
	var sErr *models.TransientStoreError
	assert.True(t, errors.As(err, &sErr))
}

func TestPostgres_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewWithPostgresStore(db, testutil.NoopLogger())

	id := uuid.New()
	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO login_events (account_id, ip, location, device, logged_at) VALUES ($1, $2, $3, $4, $5)`)).
		WithArgs(id.String(), "1.2.3.4", "Lima, Peru", "curl", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Record(context.Background(), models.LoginEvent{
		AccountID: id, IP: "1.2.3.4", Location: "Lima, Peru", Device: "curl", LoggedAt: at,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewWithPostgresStore(db, testutil.NoopLogger())

	id := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY e.logged_at DESC, e.id DESC`)).
		WithArgs(DefaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "username", "ip", "location", "device", "logged_at"}).
			AddRow(int64(2), id.String(), "admin", "::1", "Unknown, Unknown", "curl", now).
			AddRow(int64(1), id.String(), "admin", "10.0.0.1", "Rome, Italy", "curl", now.Add(-time.Hour)))

	events, err := s.List(context.Background(), -1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].ID)
	assert.Equal(t, id, events[1].AccountID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewWithPostgresStore(db, testutil.NoopLogger())

	mock.ExpectQuery(regexp.QuoteMeta(`FROM login_events`)).WillReturnError(errors.New("timeout"))

	_, err = s.List(context.Background(), 5)
	var sErr *models.TransientStoreError
	assert.True(t, errors.As(err, &sErr))
}
