package domain

import "errors"

var (
	// ErrSignallingUnavailable is returned when the rendezvous service cannot be reached.
	// Hosts retry with a fresh room code.
	ErrSignallingUnavailable = errors.New("signalling service unavailable")
	// ErrRoomTaken indicates the room code is already registered by another host.
	ErrRoomTaken = errors.New("room code already registered")
	// ErrRoomNotFound indicates no reachable host is registered under the room code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidRoomID rejects codes that are not six characters of digits or letters.
	ErrInvalidRoomID = errors.New("invalid room code")
	// ErrConnectionLost is reported when the peer channel drops.
	ErrConnectionLost = errors.New("peer connection lost")
	// ErrGenerationFailed wraps malformed or empty output from the quiz generator.
	ErrGenerationFailed = errors.New("quiz generation failed")
	// ErrInvalidQuiz indicates a question set or config failed validation.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrMalformedMessage indicates an inbound message matched neither known kind.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrQuizAlreadyDelivered indicates a repeated INIT_QUIZ.
	ErrQuizAlreadyDelivered = errors.New("quiz already delivered")
	// ErrInvalidState indicates an operation the current match state does not allow.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrSettling indicates an answer arrived during the settle delay.
	ErrSettling = errors.New("answer submitted during settle delay")
	// ErrSessionClosed indicates the match was closed.
	ErrSessionClosed = errors.New("session closed")
)
