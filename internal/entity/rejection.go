package entity

import "errors"

// Rejection is a recoverable failure that carries the session as it is now,
// so the caller can resync before retrying.
type Rejection struct {
	Err     error
	Session *Session
}

// Reject wraps err together with a snapshot of session.
func Reject(err error, session *Session) error {
	return &Rejection{Err: err, Session: session.Clone()}
}

func (that *Rejection) Error() string {
	return that.Err.Error()
}

func (that *Rejection) Unwrap() error {
	return that.Err
}

// SnapshotOf extracts the session carried by a rejection anywhere in err's chain.
func SnapshotOf(err error) (*Session, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) && rejection.Session != nil {
		return rejection.Session, true
	}
	return nil, false
}
