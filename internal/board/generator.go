// Package board generates and checks lô tô tickets. Everything here is
// pure and deterministic for a given seed, so callers need no locking and
// tests can pin exact fixtures.
package board

import (
	"math/rand"

	"github.com/khanhnq1406/lo-to-sub001/internal/domain"
)

// ColumnRange is the reserved number range of a 0-indexed column:
// column 0 holds 1–9, columns 1–7 hold 10c–10c+9, column 8 holds 80–90.
func ColumnRange(c int) (lo, hi int) {
	switch c {
	case 0:
		return 1, 9
	case domain.BoardCols - 1:
		return 80, domain.MaxNumber
	default:
		return 10 * c, 10*c + 9
	}
}

// Generate produces one valid ticket from a seed. The same seed always
// yields the same ticket.
func Generate(seed int64) domain.Board {
	rng := rand.New(rand.NewSource(seed))
	pools := columnPools(rng)
	rows := dealColumns(rng)

	var b domain.Board
	for r := range rows {
		for _, c := range rows[r] {
			b[r][c] = pools[c][0]
			pools[c] = pools[c][1:]
		}
	}
	sortColumns(&b)
	return b
}

// columnPools builds a shuffled pool of candidate numbers per column.
func columnPools(rng *rand.Rand) [domain.BoardCols][]int {
	var pools [domain.BoardCols][]int
	for c := 0; c < domain.BoardCols; c++ {
		lo, hi := ColumnRange(c)
		pool := make([]int, 0, hi-lo+1)
		for n := lo; n <= hi; n++ {
			pool = append(pool, n)
		}
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		pools[c] = pool
	}
	return pools
}

// dealColumns hands each row five distinct columns, drawing from a pool
// that holds every column index exactly five times — so each column also
// ends up with exactly five numbers. An assignment that would repeat a
// column inside the current row is re-queued for a later row. If a row
// cycles the whole remaining pool without progress the deal cannot finish
// (the remainder collapsed onto too few columns), so the deal restarts
// with a fresh shuffle; the rng advances, which guarantees termination.
func dealColumns(rng *rand.Rand) [domain.BoardRows][]int {
	for {
		pool := make([]int, 0, domain.NumbersPerBoard)
		for c := 0; c < domain.BoardCols; c++ {
			for i := 0; i < domain.NumbersPerRow; i++ {
				pool = append(pool, c)
			}
		}
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

		var rows [domain.BoardRows][]int
		stalled := false
		for r := 0; r < domain.BoardRows && !stalled; r++ {
			row := make([]int, 0, domain.NumbersPerRow)
			sinceProgress := 0
			for len(row) < domain.NumbersPerRow {
				if sinceProgress > len(pool) {
					stalled = true
					break
				}
				c := pool[0]
				pool = pool[1:]
				if containsInt(row, c) {
					pool = append(pool, c)
					sinceProgress++
					continue
				}
				row = append(row, c)
				sinceProgress = 0
			}
			rows[r] = row
		}
		if !stalled {
			return rows
		}
	}
}

// sortColumns orders each column's numbers ascending top-to-bottom,
// keeping the blank pattern untouched. Applied to every generated ticket,
// catalog ones included, so Validate can enforce it uniformly.
func sortColumns(b *domain.Board) {
	for c := 0; c < domain.BoardCols; c++ {
		var filled []int
		var vals []int
		for r := 0; r < domain.BoardRows; r++ {
			if b[r][c] != 0 {
				filled = append(filled, r)
				vals = append(vals, b[r][c])
			}
		}
		for i := 0; i < len(vals); i++ {
			for j := i + 1; j < len(vals); j++ {
				if vals[j] < vals[i] {
					vals[i], vals[j] = vals[j], vals[i]
				}
			}
		}
		for i, r := range filled {
			b[r][c] = vals[i]
		}
	}
}

// Validate independently re-checks every ticket invariant. Any code path
// accepting a board it did not just generate must run it through here.
func Validate(b domain.Board) bool {
	numbers := 0
	seen := make(map[int]bool, domain.NumbersPerBoard)
	for r := 0; r < domain.BoardRows; r++ {
		inRow := 0
		for c := 0; c < domain.BoardCols; c++ {
			v := b[r][c]
			if v == 0 {
				continue
			}
			lo, hi := ColumnRange(c)
			if v < lo || v > hi {
				return false
			}
			if seen[v] {
				return false
			}
			seen[v] = true
			inRow++
			numbers++
		}
		if inRow != domain.NumbersPerRow {
			return false
		}
	}
	if numbers != domain.NumbersPerBoard {
		return false
	}
	for c := 0; c < domain.BoardCols; c++ {
		prev := 0
		for r := 0; r < domain.BoardRows; r++ {
			v := b[r][c]
			if v == 0 {
				continue
			}
			if v <= prev {
				return false
			}
			prev = v
		}
	}
	return true
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
