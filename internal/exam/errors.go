package exam

import "errors"

var (
	ErrNotStarted       = errors.New("exam session has not started")
	ErrAlreadyStarted   = errors.New("exam session already started")
	ErrAlreadySubmitted = errors.New("exam already submitted")
	ErrUnknownOption    = errors.New("option is not part of the current question")
	ErrInvalidDirection = errors.New("direction must be previous or next")
	ErrNothingToRetry   = errors.New("no failed request to retry")
	ErrRequestInFlight  = errors.New("a request to the exam service is already in flight")
	ErrClosed           = errors.New("exam view was closed")
	ErrNoQuestions      = errors.New("exam service returned no questions")

	// ErrStartFailed and ErrSubmitFailed wrap remote failures so callers can
	// tell the two apart without inspecting the transport error.
	ErrStartFailed  = errors.New("could not start exam")
	ErrSubmitFailed = errors.New("could not submit exam")
)
