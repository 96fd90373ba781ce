// Package windetector decides game outcomes from board values. Nothing here
// holds state, so every function is safe to call concurrently.
package windetector

import "github.com/rocketscienceinc/gamesession-backend/internal/entity"

const GridSize = 9

var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// EvaluateGrid reports the outcome of a 3x3 board. Several lines completed by
// the same move all belong to the same mark, so the first match is enough.
func EvaluateGrid(board []entity.Cell) entity.Outcome {
	if len(board) != GridSize {
		return entity.NoOutcome()
	}

	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != entity.EmptyCell && a == b && b == c {
			if slot, ok := entity.SlotOf(a); ok {
				return entity.WinFor(slot)
			}
		}
	}

	// the game continues until every cell is taken
	for _, cell := range board {
		if cell == entity.EmptyCell {
			return entity.NoOutcome()
		}
	}

	return entity.Draw()
}
