// Package reveal implements the image-reveal guessing variant. Participants
// take turns uncovering cells of a hidden picture or guessing what it shows.
// Any guess closes the round; a correct one scores the cells still hidden.
package reveal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	"github.com/rocketscienceinc/gamesession-backend/internal/windetector"
)

const (
	DefaultCells = 256

	// MaxCells and MaxRounds bound what a session creator may ask for.
	MaxCells  = 4096
	MaxRounds = 64
)

var (
	ErrCellRevealed  = errors.New("cell is already revealed")
	ErrInvalidCell   = errors.New("invalid cell index")
	ErrRoundResolved = errors.New("round is already resolved")
	ErrUnknownRound  = errors.New("round is not in play")
	ErrEmptyGuess    = errors.New("guess is empty")
	ErrNoRounds      = errors.New("at least one round answer is required")
	ErrTooManyRounds = errors.New("too many rounds")
	ErrTooManyCells  = errors.New("too many cells")
	ErrBlankAnswer   = errors.New("round answer is blank")
)

type Rules struct {
	cells int
}

// New returns reveal rules whose boards have cells cells unless a session asks
// for its own size.
func New(cells int) *Rules {
	if cells <= 0 || cells > MaxCells {
		cells = DefaultCells
	}
	return &Rules{cells: cells}
}

func (that *Rules) Variant() entity.Variant {
	return entity.VariantReveal
}

func (that *Rules) Setup(session *entity.Session, options entity.Options) error {
	if len(options.Answers) == 0 {
		return fmt.Errorf("%w: %w", apperror.ErrInvalidOptions, ErrNoRounds)
	}

	if len(options.Answers) > MaxRounds {
		return fmt.Errorf("%w: %w: %d > %d", apperror.ErrInvalidOptions, ErrTooManyRounds, len(options.Answers), MaxRounds)
	}

	for i, answer := range options.Answers {
		if strings.TrimSpace(answer) == "" {
			return fmt.Errorf("%w: %w: round %d", apperror.ErrInvalidOptions, ErrBlankAnswer, i)
		}
	}

	if options.Cells > MaxCells {
		return fmt.Errorf("%w: %w: %d > %d", apperror.ErrInvalidOptions, ErrTooManyCells, options.Cells, MaxCells)
	}

	cells := options.Cells
	if cells <= 0 {
		cells = that.cells
	}

	session.Board = make([]entity.Cell, cells)
	session.Rounds = &entity.Rounds{
		Total:   len(options.Answers),
		Scores:  map[entity.Slot]int{entity.SlotFirst: 0, entity.SlotSecond: 0},
		Results: []entity.RoundResult{},
		Answers: append([]string(nil), options.Answers...),
	}

	return nil
}

func (that *Rules) Apply(session *entity.Session, slot entity.Slot, action entity.Action) (entity.Outcome, error) {
	if session.Rounds == nil {
		return entity.NoOutcome(), fmt.Errorf("%w: %w", apperror.ErrInvalidMove, ErrNoRounds)
	}

	switch action.Kind {
	case entity.ActionReveal:
		if err := reveal(session, action.Cell); err != nil {
			return entity.NoOutcome(), fmt.Errorf("%w: %w", apperror.ErrInvalidMove, err)
		}
		return entity.NoOutcome(), nil
	case entity.ActionGuess:
		outcome, err := guess(session, slot, action)
		if err != nil {
			return entity.NoOutcome(), fmt.Errorf("%w: %w", apperror.ErrInvalidMove, err)
		}
		return outcome, nil
	default:
		return entity.NoOutcome(), fmt.Errorf("%w: %w: %s", apperror.ErrInvalidMove, apperror.ErrUnknownAction, action.Kind)
	}
}

func reveal(session *entity.Session, cell int) error {
	if cell < 0 || cell >= len(session.Board) {
		return ErrInvalidCell
	}

	if session.Board[cell] == entity.RevealedCell {
		return ErrCellRevealed
	}

	session.Board[cell] = entity.RevealedCell

	return nil
}

func guess(session *entity.Session, slot entity.Slot, action entity.Action) (entity.Outcome, error) {
	rounds := session.Rounds

	switch {
	case action.Round < rounds.Index:
		return entity.NoOutcome(), ErrRoundResolved
	case action.Round > rounds.Index || action.Round >= rounds.Total:
		return entity.NoOutcome(), ErrUnknownRound
	case action.Guess == "":
		return entity.NoOutcome(), ErrEmptyGuess
	}

	correct := windetector.IsCorrectGuess(action.Guess, rounds.Answers[rounds.Index])
	score := windetector.RoundScore(session.Board, correct)

	rounds.Scores[slot] += score
	rounds.Results = append(rounds.Results, entity.RoundResult{
		Index:   rounds.Index,
		Guesser: slot,
		Correct: correct,
		Score:   score,
	})

	if windetector.SessionComplete(rounds) {
		return windetector.EvaluateScores(rounds.Scores), nil
	}

	// next picture starts fully hidden
	rounds.Index++
	session.Board = make([]entity.Cell, len(session.Board))

	return entity.NoOutcome(), nil
}
