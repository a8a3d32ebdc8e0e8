// Package store implements the destination stores for weather readings.
// Every store scopes rows to the session identity: a session only sees the
// rows it owns and may only insert rows carrying its own user id.
package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/i474232898/weather-period-tracker/internal/auth"
	"github.com/i474232898/weather-period-tracker/internal/weather"
)

// ErrPolicyViolation is returned when a write is rejected by access control.
var ErrPolicyViolation = errors.New("row-level policy violation")

func requireSession(sess auth.Session) error {
	if sess.UserID == uuid.Nil {
		return fmt.Errorf("%w: %w: unauthenticated session", weather.ErrWrite, ErrPolicyViolation)
	}
	return nil
}

func checkOwner(sess auth.Session, r weather.Reading) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if r.UserID != sess.UserID {
		return fmt.Errorf("%w: %w: user_id %s does not match caller %s", weather.ErrWrite, ErrPolicyViolation, r.UserID, sess.UserID)
	}
	if !r.Period.Valid() {
		return fmt.Errorf("%w: invalid period %q", weather.ErrWrite, r.Period)
	}
	return nil
}
