package apperror

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session is full")
	ErrAlreadyJoined   = errors.New("already joined this session")
	ErrSessionNotReady = errors.New("session is waiting for a second participant")
	ErrSessionFinished = errors.New("session is already finished")
	ErrNotYourTurn     = errors.New("it's not your turn")
	ErrInvalidMove     = errors.New("invalid move")
	ErrConflict        = errors.New("session version conflict")
	ErrBusy            = errors.New("session is busy")

	// ErrTransient wraps store I/O failures; callers retry with backoff.
	ErrTransient = errors.New("transient store failure")

	ErrSessionExists = errors.New("session already exists")
	ErrUnknownStatus = errors.New("unknown session status")
	ErrUnknownAction = errors.New("unknown action")

	ErrUnknownVariant = errors.New("unknown game variant")
	ErrInvalidOptions = errors.New("invalid session options")
	ErrNotParticipant = errors.New("not a participant of this session")
	ErrCodesExhausted = errors.New("could not generate a free session code")
)

// Code returns a stable, wire-friendly name for a taxonomy error.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionFull):
		return "session_full"
	case errors.Is(err, ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, ErrSessionNotReady):
		return "session_not_ready"
	case errors.Is(err, ErrSessionFinished):
		return "session_finished"
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, ErrInvalidMove):
		return "invalid_move"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrUnknownVariant), errors.Is(err, ErrInvalidOptions), errors.Is(err, ErrUnknownAction):
		return "bad_request"
	case errors.Is(err, ErrNotParticipant):
		return "not_participant"
	default:
		return "internal"
	}
}
