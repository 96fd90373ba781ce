package tictactoe

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	"github.com/rocketscienceinc/gamesession-backend/internal/windetector"
)

var (
	ErrCellOccupied = errors.New("cell is already occupied")
	ErrInvalidCell  = errors.New("invalid cell index")
)

// GameController applies grid marks. First places X, second places O.
type GameController struct{}

func NewGameController() *GameController {
	return &GameController{}
}

func (that *GameController) Variant() entity.Variant {
	return entity.VariantGrid
}

func (that *GameController) Setup(session *entity.Session, _ entity.Options) error {
	session.Board = make([]entity.Cell, windetector.GridSize)
	return nil
}

func (that *GameController) Apply(session *entity.Session, slot entity.Slot, action entity.Action) (entity.Outcome, error) {
	if err := validateMove(session, action); err != nil {
		return entity.NoOutcome(), fmt.Errorf("%w: %w", apperror.ErrInvalidMove, err)
	}

	session.Board[action.Cell] = entity.MarkOf(slot)

	return windetector.EvaluateGrid(session.Board), nil
}

// validateMove - checks if the move is valid.
func validateMove(session *entity.Session, action entity.Action) error {
	if action.Kind != entity.ActionMark {
		return fmt.Errorf("%w: %s", apperror.ErrUnknownAction, action.Kind)
	}

	if action.Cell < 0 || action.Cell >= len(session.Board) {
		return ErrInvalidCell
	}

	if session.Board[action.Cell] != entity.EmptyCell {
		return ErrCellOccupied
	}

	return nil
}
