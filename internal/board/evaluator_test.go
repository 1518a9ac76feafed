package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnq1406/lo-to-sub001/internal/domain"
)

func calledSet(nums ...int) map[int]bool {
	set := make(map[int]bool, len(nums))
	for _, n := range nums {
		set[n] = true
	}
	return set
}

func TestRowsCompleted(t *testing.T) {
	b := Generate(11)

	t.Run("exact row zero", func(t *testing.T) {
		rows := RowsCompleted(b, calledSet(b.Row(0)...))
		require.Equal(t, []int{0}, rows)
	})

	t.Run("every row missing one number", func(t *testing.T) {
		var nums []int
		for r := 0; r < domain.BoardRows; r++ {
			nums = append(nums, b.Row(r)[1:]...) // drop the first of each row
		}
		assert.Empty(t, RowsCompleted(b, calledSet(nums...)))
	})

	t.Run("whole board called", func(t *testing.T) {
		var nums []int
		for r := 0; r < domain.BoardRows; r++ {
			nums = append(nums, b.Row(r)...)
		}
		rows := RowsCompleted(b, calledSet(nums...))
		require.Len(t, rows, domain.BoardRows)
		assert.Equal(t, 0, rows[0])
	})

	t.Run("nothing called", func(t *testing.T) {
		assert.Empty(t, RowsCompleted(b, nil))
	})
}

func TestEvaluateTieBreak(t *testing.T) {
	// the evaluator only reads cells, so sparse hand-built boards do
	var first, second domain.Board
	for c := 0; c < 5; c++ {
		first[3][c] = 1 + c   // row 3: 1..5
		first[6][c] = 40 + c  // row 6: 40..44
		second[0][c] = 20 + c // row 0: 20..24
	}

	called := calledSet(1, 2, 3, 4, 5, 20, 21, 22, 23, 24, 40, 41, 42, 43, 44)
	hit, won := Evaluate([]domain.Board{first, second}, called)
	require.True(t, won)
	assert.Equal(t, 0, hit.BoardIndex, "boards scan in assignment order")
	assert.Equal(t, 3, hit.Row, "rows scan top to bottom")
}

func TestEvaluateNoWin(t *testing.T) {
	_, won := Evaluate([]domain.Board{Generate(5)}, calledSet(1, 2, 3))
	assert.False(t, won)

	_, won = Evaluate(nil, calledSet(1, 2, 3))
	assert.False(t, won)
}
