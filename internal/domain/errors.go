package domain

import "errors"

var (
	// ErrInvalidQuiz is returned when session content is missing, empty, or malformed.
	ErrInvalidQuiz = errors.New("quiz content is missing or malformed")
	// ErrAlreadyStarted is returned when start is called outside the waiting phase.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrSessionNotActive is returned when next is called from waiting or completed.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrSessionNotJoinable is returned when a join arrives outside the allowed window.
	ErrSessionNotJoinable = errors.New("session is not joinable")
	// ErrQuestionNotActive is returned when a submission misses the active window.
	ErrQuestionNotActive = errors.New("question is not active")
	// ErrDuplicateSubmission is the idempotency rejection for repeated answers.
	ErrDuplicateSubmission = errors.New("answer already submitted for this question")
	// ErrInvalidResponse is returned when a response shape mismatches the question type.
	ErrInvalidResponse = errors.New("response does not match question type")
	// ErrSessionNotFound is returned when a session id resolves to nothing live.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCodeNotFound is returned when a join code maps to no live session.
	ErrCodeNotFound = errors.New("join code not found")
	// ErrParticipantNotFound is returned when a participant acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrNotHost is returned when a host-only command comes from someone else.
	ErrNotHost = errors.New("caller is not the session host")
	// ErrQuizNotFound indicates the referenced quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
)
