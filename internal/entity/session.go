package entity

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

type Slot string

const (
	SlotFirst  Slot = "first"
	SlotSecond Slot = "second"
)

// Other returns the opposite slot.
func (that Slot) Other() Slot {
	if that == SlotFirst {
		return SlotSecond
	}
	return SlotFirst
}

type Variant string

const (
	VariantGrid   Variant = "grid"
	VariantReveal Variant = "reveal"
)

type Cell string

const (
	EmptyCell Cell = ""

	MarkX Cell = "X"
	MarkO Cell = "O"

	RevealedCell Cell = "*"
)

// MarkOf returns the grid mark placed by a slot.
func MarkOf(slot Slot) Cell {
	if slot == SlotFirst {
		return MarkX
	}
	return MarkO
}

// SlotOf returns the slot that places the given grid mark.
func SlotOf(mark Cell) (Slot, bool) {
	switch mark {
	case MarkX:
		return SlotFirst, true
	case MarkO:
		return SlotSecond, true
	default:
		return "", false
	}
}

type OutcomeKind string

const (
	OutcomeNone OutcomeKind = "none"
	OutcomeWin  OutcomeKind = "win"
	OutcomeDraw OutcomeKind = "draw"
)

type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Winner Slot        `json:"winner,omitempty"`
}

func NoOutcome() Outcome {
	return Outcome{Kind: OutcomeNone}
}

func WinFor(slot Slot) Outcome {
	return Outcome{Kind: OutcomeWin, Winner: slot}
}

func Draw() Outcome {
	return Outcome{Kind: OutcomeDraw}
}

func (that Outcome) IsTerminal() bool {
	return that.Kind == OutcomeWin || that.Kind == OutcomeDraw
}

func (that Outcome) String() string {
	if that.Kind == OutcomeWin {
		return fmt.Sprintf("%s-wins", that.Winner)
	}
	return string(that.Kind)
}

// RoundResult records how one reveal round was resolved.
type RoundResult struct {
	Index   int  `json:"index"`
	Guesser Slot `json:"guesser"`
	Correct bool `json:"correct"`
	Score   int  `json:"score"`
}

// Rounds is the reveal-variant progress attached to a session.
type Rounds struct {
	Index   int           `json:"index"`
	Total   int           `json:"total"`
	Scores  map[Slot]int  `json:"scores"`
	Results []RoundResult `json:"results"`

	// Answers are never sent to participants.
	Answers []string `json:"answers,omitempty"`
}

type Session struct {
	ID             string          `json:"id"`
	Variant        Variant         `json:"variant"`
	Participants   map[Slot]string `json:"participants"`
	Board          []Cell          `json:"board"`
	TurnOwner      Slot            `json:"turn_owner,omitempty"`
	Status         Status          `json:"status"`
	Outcome        Outcome         `json:"outcome"`
	Version        int64           `json:"version"`
	Revision       int64           `json:"revision"`
	Rounds         *Rounds         `json:"rounds,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

// NewSession returns a waiting session seated with its creator in the first slot.
func NewSession(id string, variant Variant, creator string, boardSize int, now time.Time) *Session {
	return &Session{
		ID:             id,
		Variant:        variant,
		Participants:   map[Slot]string{SlotFirst: creator},
		Board:          make([]Cell, boardSize),
		Status:         StatusWaiting,
		Outcome:        NoOutcome(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func (that *Session) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *Session) IsActive() bool {
	return that.Status == StatusActive
}

func (that *Session) IsWaiting() bool {
	return that.Status == StatusWaiting
}

// ConfirmActiveState reports why a session cannot accept moves, if it can't.
func (that *Session) ConfirmActiveState() error {
	switch that.Status {
	case StatusActive:
		return nil
	case StatusWaiting:
		return apperror.ErrSessionNotReady
	case StatusFinished:
		return apperror.ErrSessionFinished
	default:
		return fmt.Errorf("%w: %s", apperror.ErrUnknownStatus, that.Status)
	}
}

// SlotFor returns the slot occupied by identity.
func (that *Session) SlotFor(identity string) (Slot, bool) {
	for _, slot := range []Slot{SlotFirst, SlotSecond} {
		if id, ok := that.Participants[slot]; ok && id == identity {
			return slot, true
		}
	}
	return "", false
}

func (that *Session) IsFull() bool {
	return len(that.Participants) >= 2
}

// Seat assigns identity to the second slot and starts the game.
func (that *Session) Seat(identity string, now time.Time) error {
	if _, ok := that.SlotFor(identity); ok {
		return apperror.ErrAlreadyJoined
	}

	if that.IsFull() {
		return apperror.ErrSessionFull
	}

	that.Participants[SlotSecond] = identity
	that.Status = StatusActive
	that.TurnOwner = SlotFirst
	that.LastActivityAt = now

	return nil
}

// Finish moves the session into its terminal state. The outcome is set exactly once.
func (that *Session) Finish(outcome Outcome) {
	if that.IsFinished() {
		return
	}

	that.Status = StatusFinished
	that.Outcome = outcome
	that.TurnOwner = ""
}

// PassTurn hands the turn to the other slot.
func (that *Session) PassTurn() {
	that.TurnOwner = that.TurnOwner.Other()
}

// IsIdle reports whether the session has seen no activity since cutoff.
func (that *Session) IsIdle(cutoff time.Time) bool {
	return that.LastActivityAt.Before(cutoff)
}

// Clone returns a deep copy, so mutators never touch the canonical record.
func (that *Session) Clone() *Session {
	if that == nil {
		return nil
	}

	clone := *that

	clone.Participants = make(map[Slot]string, len(that.Participants))
	for slot, id := range that.Participants {
		clone.Participants[slot] = id
	}

	clone.Board = append([]Cell(nil), that.Board...)

	if that.Rounds != nil {
		rounds := *that.Rounds
		rounds.Scores = make(map[Slot]int, len(that.Rounds.Scores))
		for slot, score := range that.Rounds.Scores {
			rounds.Scores[slot] = score
		}
		rounds.Results = append([]RoundResult(nil), that.Rounds.Results...)
		rounds.Answers = append([]string(nil), that.Rounds.Answers...)
		clone.Rounds = &rounds
	}

	return &clone
}

// Masked returns a copy safe to hand to participants and observers.
func (that *Session) Masked() *Session {
	clone := that.Clone()
	if clone != nil && clone.Rounds != nil {
		clone.Rounds.Answers = nil
	}
	return clone
}
