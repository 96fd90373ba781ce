package windetector

import (
	"strings"

	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
)

// RoundScore is the number of cells still hidden when a correct guess lands.
// An incorrect guess scores nothing.
func RoundScore(board []entity.Cell, correct bool) int {
	if !correct {
		return 0
	}

	hidden := 0
	for _, cell := range board {
		if cell != entity.RevealedCell {
			hidden++
		}
	}

	return hidden
}

// IsCorrectGuess compares a guess with the round answer, ignoring case and
// surrounding whitespace.
func IsCorrectGuess(guess, answer string) bool {
	guess = strings.TrimSpace(guess)
	answer = strings.TrimSpace(answer)

	return answer != "" && strings.EqualFold(guess, answer)
}

// RoundOutcome resolves a single round: any guess ends it, and the guesser
// takes the round only when the guess was right.
func RoundOutcome(guesser entity.Slot, correct bool) entity.Outcome {
	if correct {
		return entity.WinFor(guesser)
	}
	return entity.NoOutcome()
}

// SessionComplete reports whether the last configured round has been resolved.
func SessionComplete(rounds *entity.Rounds) bool {
	if rounds == nil || rounds.Total <= 0 {
		return false
	}
	return len(rounds.Results) >= rounds.Total
}

// EvaluateScores turns the per-slot totals into a session outcome.
func EvaluateScores(scores map[entity.Slot]int) entity.Outcome {
	first, second := scores[entity.SlotFirst], scores[entity.SlotSecond]

	switch {
	case first > second:
		return entity.WinFor(entity.SlotFirst)
	case second > first:
		return entity.WinFor(entity.SlotSecond)
	default:
		return entity.Draw()
	}
}
