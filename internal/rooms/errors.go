package rooms

import "errors"

// Request-scoped failures. Each is reported back to the originating
// connection only and never crosses room state.
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room already exists")
	ErrAlreadyJoined   = errors.New("connection already joined a room")
	ErrUnauthorized    = errors.New("not authorized for this action")
	ErrNameTaken       = errors.New("name already taken in this room")
	ErrPollInProgress  = errors.New("a poll is already in progress")
	ErrPollNotActive   = errors.New("no active poll")
	ErrNotInRoom       = errors.New("not a student in this room")
	ErrAlreadyAnswered = errors.New("answer already submitted for this poll")
	ErrPollTimeExpired = errors.New("poll time expired")
)

// ValidationError describes a malformed join or create_poll request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
