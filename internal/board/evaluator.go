package board

import "github.com/khanhnq1406/lo-to-sub001/internal/domain"

// Hit identifies the first winning line found on a player's tickets.
type Hit struct {
	BoardIndex int
	Row        int
}

// RowsCompleted lists the rows of b whose five numbers are all in called,
// top to bottom. Only horizontal rows count; columns and diagonals never
// complete a ticket.
func RowsCompleted(b domain.Board, called map[int]bool) []int {
	var done []int
	for r := 0; r < domain.BoardRows; r++ {
		hits := 0
		for c := 0; c < domain.BoardCols; c++ {
			if b[r][c] != 0 && called[b[r][c]] {
				hits++
			}
		}
		// a full complement of called numbers, never a vacuous blank row
		if hits == domain.NumbersPerRow {
			done = append(done, r)
		}
	}
	return done
}

// Evaluate scans boards in assignment order, rows top to bottom, and
// returns the first completed row. The scan order is the tie-break when
// one call completes several lines at once.
func Evaluate(boards []domain.Board, called map[int]bool) (Hit, bool) {
	for i, b := range boards {
		if rows := RowsCompleted(b, called); len(rows) > 0 {
			return Hit{BoardIndex: i, Row: rows[0]}, true
		}
	}
	return Hit{}, false
}
