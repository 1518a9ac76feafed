package game

import (
	"errors"

	"github.com/khanhnq1406/lo-to-sub001/internal/domain"
)

// ErrorCode maps an error to its wire code. Unknown errors report as
// "internal" rather than leaking details to the client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, domain.ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, domain.ErrPhase):
		return "phase_error"
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidClaim):
		return "invalid_claim"
	default:
		return "internal"
	}
}
