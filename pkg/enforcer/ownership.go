package enforcer

import (
	"database/sql"

	"github.com/Ryan-Har/authgate/pkg/models"
)

// CheckOwnedMutation interprets the result of an UPDATE or DELETE that is
// scoped to the caller, e.g. "DELETE FROM comments WHERE id = ? AND account_id = ?".
//
// Zero affected rows returns models.ErrUnauthorized, so a missing resource and
// one owned by somebody else look the same to the caller.
func CheckOwnedMutation(res sql.Result, err error) error {
	if err != nil {
		return models.NewTransientStoreError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.NewTransientStoreError(err)
	}
	if n == 0 {
		return models.ErrUnauthorized
	}
	return nil
}
