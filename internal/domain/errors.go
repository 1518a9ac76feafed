package domain

import "errors"

// Error taxonomy shared by the store and the orchestrator. Handlers match
// with errors.Is; the gateway maps each class to a wire code. Wrapping
// with fmt.Errorf("...: %w", ...) adds context without losing the class.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrPermissionDenied = errors.New("permission denied")
	ErrPhase            = errors.New("invalid phase for command")
	ErrValidation       = errors.New("invalid command payload")
	ErrConflict         = errors.New("conflict")
	ErrInvalidClaim     = errors.New("win condition not met")
)
