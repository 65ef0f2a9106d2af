package auditstore

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/google/uuid"
)

type postgresAuditStore struct {
	db  *sql.DB
	log *slog.Logger
}

func (s *postgresAuditStore) Record(ctx context.Context, event models.LoginEvent) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "RecordLoginEvent")()

	if event.LoggedAt.IsZero() {
		event.LoggedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_events (account_id, ip, location, device, logged_at) VALUES ($1, $2, $3, $4, $5)`,
		event.AccountID.String(), event.IP, event.Location, event.Device, event.LoggedAt.UTC())
	if err != nil {
		return logutil.LogAndWrapErr(s.log, "failed to record login event",
			models.NewTransientStoreError(err), "account_id", event.AccountID.String())
	}
	return nil
}

func (s *postgresAuditStore) List(ctx context.Context, limit int) ([]*models.LoginEvent, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "ListLoginEvents")()
	errMsg := "failed to list login events"

	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.account_id, a.username, e.ip, e.location, e.device, e.logged_at
		 FROM login_events e
		 JOIN accounts a ON a.id = e.account_id
		 ORDER BY e.logged_at DESC, e.id DESC
		 LIMIT $1`, normaliseLimit(limit))
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
	}
	defer rows.Close()

	var events []*models.LoginEvent
	for rows.Next() {
		var (
			ev        models.LoginEvent
			accountID string
		)
		if err := rows.Scan(&ev.ID, &accountID, &ev.Username, &ev.IP, &ev.Location, &ev.Device, &ev.LoggedAt); err != nil {
			return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
		}
		if ev.AccountID, err = uuid.Parse(accountID); err != nil {
			return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
	}
	return events, nil
}
