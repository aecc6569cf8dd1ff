package discussions

import "errors"

var (
	ErrNotFound           = errors.New("discussion not found")
	ErrNotConfirmed       = errors.New("deletion not confirmed")
	ErrNoActiveDiscussion = errors.New("no active discussion")
	ErrMessageNotFound    = errors.New("message not found")
)

// PersistError reports a failed settings write. The in-memory state is kept
// and the next successful save includes the change.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return "persist discussions (" + e.Op + "): " + e.Err.Error()
}

func (e *PersistError) Unwrap() error { return e.Err }
