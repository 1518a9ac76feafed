// Package domain contains the game entities without transport or
// scheduling logic, just state and small invariant helpers.
package domain

const (
	// BoardRows and BoardCols fix the lô tô ticket shape.
	BoardRows = 9
	BoardCols = 9

	// MaxNumber is the highest callable number.
	MaxNumber = 90

	// NumbersPerRow is the count of filled cells in every row.
	NumbersPerRow = 5

	// NumbersPerBoard is NumbersPerRow * BoardRows.
	NumbersPerBoard = 45
)

// Board is one 9×9 ticket. A cell holds a number in 1..90 or 0 for blank.
// Boards are immutable once issued; nothing in this package mutates them.
type Board [BoardRows][BoardCols]int

// Has reports whether n appears anywhere on the board.
func (b Board) Has(n int) bool {
	for r := 0; r < BoardRows; r++ {
		for c := 0; c < BoardCols; c++ {
			if b[r][c] == n {
				return true
			}
		}
	}
	return false
}

// Row returns the numbers of row r in column order, blanks skipped.
func (b Board) Row(r int) []int {
	out := make([]int, 0, NumbersPerRow)
	for c := 0; c < BoardCols; c++ {
		if b[r][c] != 0 {
			out = append(out, b[r][c])
		}
	}
	return out
}
