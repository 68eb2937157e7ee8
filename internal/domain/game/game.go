package game

import (
	"time"

	"board_sync/internal/domain/board"
)

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is the rules oracle view of one FEN.
type Position struct {
	FEN        string          `json:"fen"`
	SideToMove board.Color     `json:"side_to_move"`
	Occupancy  board.SquareSet `json:"occupancy"`
	Legal      []board.Move    `json:"-"`
}

// LegalMove returns the legal move matching m by from, to and promotion,
// annotated with the oracle's flags.
func (p Position) LegalMove(m board.Move) (board.Move, bool) {
	for _, legal := range p.Legal {
		if legal.SameAs(m) {
			return legal, true
		}
	}
	return board.Move{}, false
}

// CanonicalState is the single accepted game state.
type CanonicalState struct {
	Position
	History []board.Move `json:"history"`
}

func (s CanonicalState) Clone() CanonicalState {
	out := s
	out.Legal = append([]board.Move(nil), s.Legal...)
	out.History = append([]board.Move(nil), s.History...)
	return out
}

func (s CanonicalState) Ply() int { return len(s.History) }

func (s CanonicalState) HistoryUCI() []string {
	out := make([]string, len(s.History))
	for i, m := range s.History {
		out[i] = m.UCI()
	}
	return out
}

// @name GameRecord
type GameRecord struct {
	SessionID  string     `json:"session_id" bson:"session_id"`
	GameID     string     `json:"game_id" bson:"game_id"`
	LocalColor string     `json:"local_color" bson:"local_color"`
	StartFEN   string     `json:"start_fen" bson:"start_fen"`
	Moves      []string   `json:"moves" bson:"moves"`
	FinalFEN   string     `json:"final_fen" bson:"final_fen"`
	Status     string     `json:"status" bson:"status"`
	StartedAt  time.Time  `json:"started_at" bson:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
}

// @name StateResponse
type StateResponse struct {
	SessionID  string         `json:"session_id"`
	GameID     string         `json:"game_id"`
	LocalColor board.Color    `json:"local_color"`
	State      CanonicalState `json:"state"`
	Arbiter    string         `json:"arbiter"`
	InFlight   bool           `json:"in_flight"`
	Halted     bool           `json:"halted"`
	HaltReason string         `json:"halt_reason,omitempty"`
	Ended      bool           `json:"ended"`
	EndReason  string         `json:"end_reason,omitempty"`
}

// @name PromotionRequest
type PromotionRequest struct {
	Piece string `json:"piece"`
}
