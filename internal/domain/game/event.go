package game

import (
	"time"

	"github.com/google/uuid"

	"board_sync/internal/domain/board"
)

type EventType string

const (
	EventMoveCommitted     EventType = "move_committed"
	EventMoveRejected      EventType = "move_rejected"
	EventNoiseStateChanged EventType = "noise_state_changed"
	EventPromotionRequired EventType = "promotion_required"
	EventGameEnded         EventType = "game_ended"
	EventSyncHalted        EventType = "sync_halted"
)

type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Event is a domain event published to the overlay and the recorder.
type Event struct {
	ID      string          `json:"id"`
	Type    EventType       `json:"type"`
	At      time.Time       `json:"at"`
	Move    *board.Move     `json:"move,omitempty"`
	FEN     string          `json:"fen,omitempty"`
	Origin  Origin          `json:"origin,omitempty"`
	Ply     int             `json:"ply,omitempty"` // 1-based history index of a committed move
	Reason  string          `json:"reason,omitempty"`
	State   string          `json:"state,omitempty"`
	Squares board.SquareSet `json:"squares,omitempty"`
	Options []board.Move    `json:"options,omitempty"`
}

func NewEvent(t EventType) Event {
	return Event{ID: uuid.NewString(), Type: t, At: time.Now().UTC()}
}

func MoveCommitted(m board.Move, ply int, fen string, origin Origin) Event {
	e := NewEvent(EventMoveCommitted)
	e.Move, e.Ply, e.FEN, e.Origin = &m, ply, fen, origin
	return e
}

func MoveRejected(m board.Move, reason string) Event {
	e := NewEvent(EventMoveRejected)
	e.Move, e.Reason = &m, reason
	return e
}

// PatternRejected reports a stabilized candidate that resolved to no move.
func PatternRejected(squares board.SquareSet, reason string) Event {
	e := NewEvent(EventMoveRejected)
	e.Squares, e.Reason = squares, reason
	return e
}

func NoiseStateChanged(s board.ArbiterState) Event {
	e := NewEvent(EventNoiseStateChanged)
	e.State = s.String()
	return e
}

func PromotionRequired(squares board.SquareSet, options []board.Move) Event {
	e := NewEvent(EventPromotionRequired)
	e.Squares, e.Options = squares, options
	return e
}

func GameEnded(reason, fen string) Event {
	e := NewEvent(EventGameEnded)
	e.Reason, e.FEN = reason, fen
	return e
}

func SyncHalted(reason string) Event {
	e := NewEvent(EventSyncHalted)
	e.Reason = reason
	return e
}
