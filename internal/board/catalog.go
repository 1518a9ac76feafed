package board

import (
	"errors"

	"github.com/khanhnq1406/lo-to-sub001/internal/domain"
)

// CatalogSize is the number of selectable predefined tickets.
const CatalogSize = 16

var ErrUnknownSlot = errors.New("unknown catalog slot")

// Each catalog slot regenerates from its own fixed seed, so slot N is the
// same ticket today, after a restart, and on every node.
const catalogSeedBase int64 = 19455

func slotSeed(slot int) int64 {
	return catalogSeedBase + int64(slot)*7919
}

// FromSlot materializes the predefined ticket for a 1-based catalog slot.
func FromSlot(slot int) (domain.Board, error) {
	if slot < 1 || slot > CatalogSize {
		return domain.Board{}, ErrUnknownSlot
	}
	return Generate(slotSeed(slot)), nil
}
