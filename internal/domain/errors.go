package domain

import "errors"

var (
	// ErrRoomNotFound is returned for unknown or expired room codes.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned when creating a room with an active code.
	ErrRoomExists = errors.New("room code already active")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrLateSubmission is returned when the answering window already closed.
	ErrLateSubmission = errors.New("submission rejected: too late")
	// ErrDuplicateSubmission is returned for a second answer to the same question.
	ErrDuplicateSubmission = errors.New("submission rejected: already answered")
	// ErrInvalidTransition is returned when advance is called outside the
	// waiting or revealed phases. Treated as an ordering bug, not user input.
	ErrInvalidTransition = errors.New("invalid phase transition")
	// ErrUnauthorized is returned when a non-host calls a host-only action.
	ErrUnauthorized = errors.New("action restricted to session host")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question index is invalid.
	ErrQuestionNotFound = errors.New("question not found")
)
