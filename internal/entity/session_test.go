package entity

import (
	"testing"
	"time"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestSessionStatusMethods(t *testing.T) {
	t.Run("IsFinished returns true when session status is finished", func(t *testing.T) {
		// Given: a session with StatusFinished
		session := &Session{Status: StatusFinished}

		// When: checking if the session is finished
		isFinished := session.IsFinished()

		// Then: it should return true
		assert.True(t, isFinished)
	})

	t.Run("IsActive returns true when session status is active", func(t *testing.T) {
		// Given: a session with StatusActive
		session := &Session{Status: StatusActive}

		// When: checking if the session is active
		isActive := session.IsActive()

		// Then: it should return true
		assert.True(t, isActive)
	})

	t.Run("IsWaiting returns true when session status is waiting", func(t *testing.T) {
		// Given: a session with StatusWaiting
		session := &Session{Status: StatusWaiting}

		// When: checking if the session is waiting
		isWaiting := session.IsWaiting()

		// Then: it should return true
		assert.True(t, isWaiting)
	})
}

func TestSession_ConfirmActiveState(t *testing.T) {
	t.Run("Returns nil when session is active", func(t *testing.T) {
		// Given: a session with StatusActive
		session := &Session{Status: StatusActive}

		// When: checking if the session accepts moves
		err := session.ConfirmActiveState()

		// Then: it should return nil error
		assert.NoError(t, err)
	})

	t.Run("Returns ErrSessionNotReady when session is waiting", func(t *testing.T) {
		// Given: a session with StatusWaiting
		session := &Session{Status: StatusWaiting}

		// When: checking if the session accepts moves
		err := session.ConfirmActiveState()

		// Then: it should return ErrSessionNotReady
		assert.ErrorIs(t, err, apperror.ErrSessionNotReady)
	})

	t.Run("Returns ErrSessionFinished when session is finished", func(t *testing.T) {
		// Given: a session with StatusFinished
		session := &Session{Status: StatusFinished}

		// When: checking if the session accepts moves
		err := session.ConfirmActiveState()

		// Then: it should return ErrSessionFinished
		assert.ErrorIs(t, err, apperror.ErrSessionFinished)
	})

	t.Run("Returns error for unknown session status", func(t *testing.T) {
		// Given: a session with unknown status
		session := &Session{Status: "unknown"}

		// When: checking if the session accepts moves
		err := session.ConfirmActiveState()

		// Then: it should return ErrUnknownStatus
		require.ErrorIs(t, err, apperror.ErrUnknownStatus)
		assert.Contains(t, err.Error(), "unknown")
	})
}

func TestNewSession(t *testing.T) {
	// When: a session is created by alice
	session := NewSession("ABC123", VariantGrid, "alice", 9, testNow)

	// Then: alice holds the first slot and nobody owns the turn yet
	assert.Equal(t, map[Slot]string{SlotFirst: "alice"}, session.Participants)
	assert.Equal(t, StatusWaiting, session.Status)
	assert.Empty(t, session.TurnOwner)
	assert.Equal(t, NoOutcome(), session.Outcome)
	assert.Zero(t, session.Version)
	assert.Len(t, session.Board, 9)
	assert.Equal(t, testNow, session.LastActivityAt)
}

func TestSession_Seat(t *testing.T) {
	t.Run("First joiner takes the second slot and the game starts", func(t *testing.T) {
		// Given: a waiting session created by alice
		session := NewSession("ABC123", VariantGrid, "alice", 9, testNow)
		later := testNow.Add(time.Minute)

		// When: bob is seated
		err := session.Seat("bob", later)

		// Then: bob is second, the session is active and first owns the turn
		require.NoError(t, err)
		assert.Equal(t, "bob", session.Participants[SlotSecond])
		assert.Equal(t, StatusActive, session.Status)
		assert.Equal(t, SlotFirst, session.TurnOwner)
		assert.Equal(t, later, session.LastActivityAt)
		assert.Zero(t, session.Version)
	})

	t.Run("Seated identity gets ErrAlreadyJoined", func(t *testing.T) {
		// Given: a waiting session created by alice
		session := NewSession("ABC123", VariantGrid, "alice", 9, testNow)

		// When: alice tries to take a seat again
		err := session.Seat("alice", testNow)

		// Then: it is rejected and the session keeps waiting
		assert.ErrorIs(t, err, apperror.ErrAlreadyJoined)
		assert.Equal(t, StatusWaiting, session.Status)
	})

	t.Run("Full session gets ErrSessionFull", func(t *testing.T) {
		// Given: an active session with both slots taken
		session := NewSession("ABC123", VariantGrid, "alice", 9, testNow)
		require.NoError(t, session.Seat("bob", testNow))

		// When: carol tries to join
		err := session.Seat("carol", testNow)

		// Then: the second slot stays bob's
		assert.ErrorIs(t, err, apperror.ErrSessionFull)
		assert.Equal(t, "bob", session.Participants[SlotSecond])
	})
}

func TestSession_Finish(t *testing.T) {
	// Given: an active session
	session := NewSession("ABC123", VariantGrid, "alice", 9, testNow)
	require.NoError(t, session.Seat("bob", testNow))

	// When: it finishes twice with different outcomes
	session.Finish(WinFor(SlotFirst))
	session.Finish(Draw())

	// Then: the first outcome sticks and the turn owner is cleared
	assert.Equal(t, StatusFinished, session.Status)
	assert.Equal(t, WinFor(SlotFirst), session.Outcome)
	assert.Empty(t, session.TurnOwner)
}

func TestSession_SlotFor(t *testing.T) {
	session := NewSession("ABC123", VariantGrid, "alice", 9, testNow)
	require.NoError(t, session.Seat("bob", testNow))

	slot, ok := session.SlotFor("bob")
	assert.True(t, ok)
	assert.Equal(t, SlotSecond, slot)

	_, ok = session.SlotFor("carol")
	assert.False(t, ok)
}

func TestSession_Clone(t *testing.T) {
	// Given: a reveal session with rounds
	session := NewSession("ABC123", VariantReveal, "alice", 4, testNow)
	session.Rounds = &Rounds{
		Total:   2,
		Scores:  map[Slot]int{SlotFirst: 3},
		Answers: []string{"cat", "dog"},
	}

	// When: the clone is mutated
	clone := session.Clone()
	clone.Board[0] = RevealedCell
	clone.Participants[SlotSecond] = "bob"
	clone.Rounds.Scores[SlotFirst] = 10
	clone.Rounds.Answers[0] = "cow"

	// Then: the original is untouched
	assert.Equal(t, EmptyCell, session.Board[0])
	assert.NotContains(t, session.Participants, SlotSecond)
	assert.Equal(t, 3, session.Rounds.Scores[SlotFirst])
	assert.Equal(t, "cat", session.Rounds.Answers[0])
}

func TestSession_Masked(t *testing.T) {
	// Given: a reveal session holding answers
	session := NewSession("ABC123", VariantReveal, "alice", 4, testNow)
	session.Rounds = &Rounds{Total: 1, Answers: []string{"cat"}}

	// When: a masked snapshot is taken
	masked := session.Masked()

	// Then: answers are gone from the copy only
	assert.Nil(t, masked.Rounds.Answers)
	assert.Equal(t, []string{"cat"}, session.Rounds.Answers)
}

func TestOutcome(t *testing.T) {
	assert.False(t, NoOutcome().IsTerminal())
	assert.True(t, Draw().IsTerminal())
	assert.True(t, WinFor(SlotSecond).IsTerminal())
	assert.Equal(t, "second-wins", WinFor(SlotSecond).String())
	assert.Equal(t, "draw", Draw().String())
}

func TestRejection(t *testing.T) {
	// Given: a rejection carrying a snapshot
	session := NewSession("ABC123", VariantGrid, "alice", 9, testNow)
	err := Reject(apperror.ErrNotYourTurn, session)

	// When: the snapshot is extracted
	snapshot, ok := SnapshotOf(err)

	// Then: the sentinel is reachable and the snapshot is a copy
	require.True(t, ok)
	assert.ErrorIs(t, err, apperror.ErrNotYourTurn)
	assert.Equal(t, session.ID, snapshot.ID)
	assert.NotSame(t, session, snapshot)
}
