package entity

type ActionKind string

const (
	ActionMark   ActionKind = "mark"
	ActionReveal ActionKind = "reveal"
	ActionGuess  ActionKind = "guess"
)

// Action is what a participant wants to do on their turn.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Cell  int        `json:"cell"`
	Round int        `json:"round,omitempty"`
	Guess string     `json:"guess,omitempty"`
}

func Mark(cell int) Action {
	return Action{Kind: ActionMark, Cell: cell}
}

func Reveal(cell int) Action {
	return Action{Kind: ActionReveal, Cell: cell}
}

func Guess(round int, guess string) Action {
	return Action{Kind: ActionGuess, Round: round, Guess: guess}
}

// Move is a submitted action, bound to the version the submitter last saw.
type Move struct {
	SessionID       string `json:"session_id"`
	Submitter       string `json:"submitter"`
	ObservedVersion int64  `json:"observed_version"`
	Action          Action `json:"action"`
}
