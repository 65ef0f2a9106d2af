package sessionstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const badgerKeyPrefix = "session:"

type badgerSessionStore struct {
	*baseSessionStore
	db *badger.DB
}

// NewWithBadgerStore returns a durable session store on an embedded badger database.
// Entries carry a TTL so badger drops them on compaction. The database is owned by
// the caller and is not closed by Close.
func NewWithBadgerStore(db *badger.DB, logger *slog.Logger, opts ...Option) *badgerSessionStore {
	s := &badgerSessionStore{
		baseSessionStore: newBase(logger, opts...),
		db:               db,
	}
	s.startCleanupWorker(s)
	return s
}

func (s *badgerSessionStore) Create(ctx context.Context, identity models.Identity, ipAddress, userAgent *string) (*models.Session, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed badger txn", "method", "create session")()

	if err := s.checkCtx(ctx, "creation"); err != nil {
		return nil, err
	}

	session, err := s.newSession(identity, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, "failed to encode session", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(badgerKeyPrefix+session.ID), data).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, "failed to create session",
			models.NewTransientStoreError(err))
	}
	return session, nil
}

func (s *badgerSessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, &SessionExpiredError{}
	}
	if err := s.checkCtx(ctx, "get"); err != nil {
		return nil, err
	}

	var session models.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &session)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &SessionExpiredError{ID: sessionID}
	}
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, "failed to get session",
			models.NewTransientStoreError(err))
	}

	if session.IsExpired(s.now()) {
		if err := s.Delete(ctx, sessionID); err != nil {
			s.log.Warn("failed to remove expired session", "err", err)
		}
		return nil, &SessionExpiredError{ID: sessionID}
	}
	return &session, nil
}

func (s *badgerSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.checkCtx(ctx, "delete"); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(badgerKeyPrefix + sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return logutil.LogAndWrapErr(s.log, "failed to delete session",
			models.NewTransientStoreError(err))
	}
	return nil
}

// CleanupExpired runs a value log GC pass. Expired keys are already invisible
// to readers, this reclaims their disk space.
func (s *badgerSessionStore) CleanupExpired(ctx context.Context) error {
	if err := s.checkCtx(ctx, "cleanup"); err != nil {
		return err
	}
	if s.db.Opts().InMemory {
		return nil
	}

	err := s.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return logutil.LogAndWrapErr(s.log, "failed to run badger value log gc", err)
	}
	return nil
}

func (s *badgerSessionStore) Close() error {
	s.stop()
	return nil
}
