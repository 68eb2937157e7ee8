package repository

import (
	"fmt"

	gm "github.com/dylhunn/dragontoothmg"

	"board_sync/internal/domain/board"
	"board_sync/internal/domain/game"
	errs "board_sync/internal/errors"
)

// RulesOracle generates legal moves and applies them on FEN positions.
// It keeps no state between calls.
type RulesOracle struct{}

func NewRulesOracle() *RulesOracle {
	return &RulesOracle{}
}

func parseFen(fen string) (b gm.Board, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: fen %q: %v", errs.ErrInvalidMove, fen, r)
		}
	}()
	return gm.ParseFen(fen), nil
}

func (r *RulesOracle) Position(fen string) (game.Position, error) {
	b, err := parseFen(fen)
	if err != nil {
		return game.Position{}, err
	}
	return position(&b), nil
}

// Apply plays m on fen. Only from, to and promotion of m are read; the
// returned move carries the oracle's flags.
func (r *RulesOracle) Apply(fen string, m board.Move) (game.Position, board.Move, error) {
	b, err := parseFen(fen)
	if err != nil {
		return game.Position{}, board.Move{}, err
	}

	for _, candidate := range b.GenerateLegalMoves() {
		legal := convertMove(&b, candidate)
		if !legal.SameAs(m) {
			continue
		}
		b.Apply(candidate)
		return position(&b), legal, nil
	}

	return game.Position{}, board.Move{}, fmt.Errorf("%w: %s is not legal in %q", errs.ErrInvalidMove, m.UCI(), fen)
}

func position(b *gm.Board) game.Position {
	legal := b.GenerateLegalMoves()
	moves := make([]board.Move, 0, len(legal))
	for _, m := range legal {
		moves = append(moves, convertMove(b, m))
	}

	side := board.Black
	if b.Wtomove {
		side = board.White
	}

	return game.Position{
		FEN:        b.ToFen(),
		SideToMove: side,
		Occupancy:  board.SquareSet(b.White.All | b.Black.All),
		Legal:      moves,
	}
}

func convertMove(b *gm.Board, m gm.Move) board.Move {
	from := board.Square(m.From())
	to := board.Square(m.To())
	out := board.Move{From: from, To: to, Promotion: pieceKind(m.Promote())}

	us, them := b.White, b.Black
	if !b.Wtomove {
		us, them = b.Black, b.White
	}
	fromBit, toBit := uint64(1)<<from, uint64(1)<<to

	switch {
	case them.All&toBit != 0:
		out.Flags |= board.FlagCapture
	case us.Pawns&fromBit != 0 && from.File() != to.File():
		out.Flags |= board.FlagCapture | board.FlagEnPassant
	case us.Kings&fromBit != 0 && abs(from.File()-to.File()) == 2:
		out.Flags |= board.FlagCastle
	}
	return out
}

func pieceKind(p gm.Piece) board.PieceKind {
	switch p {
	case gm.Knight:
		return board.Knight
	case gm.Bishop:
		return board.Bishop
	case gm.Rook:
		return board.Rook
	case gm.Queen:
		return board.Queen
	default:
		return board.NoPiece
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
