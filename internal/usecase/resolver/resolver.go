package resolver

import (
	"fmt"

	"board_sync/internal/domain/board"
	"board_sync/internal/domain/game"
	errs "board_sync/internal/errors"
)

type Outcome uint8

const (
	// OutcomeMove resolved to exactly one legal move.
	OutcomeMove Outcome = iota
	// OutcomePendingPromotion needs a piece choice before Finalize.
	OutcomePendingPromotion
	// OutcomeSettled means the board already shows the expected position.
	OutcomeSettled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMove:
		return "move"
	case OutcomePendingPromotion:
		return "pending_promotion"
	case OutcomeSettled:
		return "settled"
	default:
		return "unknown"
	}
}

type Resolution struct {
	Outcome   Outcome
	Move      board.Move
	Options   []board.Move
	Signature board.Signature
	Candidate board.MoveCandidate
}

// Resolve maps the occupancy change of candidate against the expected
// occupancy of state onto the legal moves of state.
func Resolve(candidate board.MoveCandidate, state game.CanonicalState) (Resolution, error) {
	sig := board.SignatureOf(candidate, state.Occupancy)
	res := Resolution{Signature: sig, Candidate: candidate}

	kind := sig.Kind()
	switch kind {
	case board.PatternSettled:
		res.Outcome = OutcomeSettled
		return res, nil
	case board.PatternUnknown:
		return res, fmt.Errorf("%w: vacated %s occupied %s", errs.ErrNoMatch, sig.Vacated, sig.Occupied)
	}

	var matches []board.Move
	for _, m := range state.Legal {
		if !sig.Matches(m) {
			continue
		}
		if kind == board.PatternCapture && !candidate.Squares.Has(m.To) {
			continue
		}
		matches = append(matches, m)
	}

	switch {
	case len(matches) == 0:
		return res, fmt.Errorf("%w: %s pattern vacated %s occupied %s", errs.ErrNoMatch, kind, sig.Vacated, sig.Occupied)
	case len(matches) == 1 && matches[0].Promotion == board.NoPiece:
		res.Outcome = OutcomeMove
		res.Move = matches[0]
		return res, nil
	case promotionChoice(matches):
		res.Outcome = OutcomePendingPromotion
		res.Options = matches
		return res, nil
	default:
		return res, fmt.Errorf("%w: %d moves fit %s", errs.ErrAmbiguousPattern, len(matches), candidate.Squares)
	}
}

// promotionChoice reports whether moves differ only in promotion piece.
func promotionChoice(moves []board.Move) bool {
	for _, m := range moves {
		if m.Promotion == board.NoPiece || m.From != moves[0].From || m.To != moves[0].To {
			return false
		}
	}
	return true
}

// Finalize completes a pending promotion with the chosen piece.
func Finalize(res Resolution, piece board.PieceKind) (board.Move, error) {
	if res.Outcome == OutcomeMove {
		return res.Move, nil
	}
	for _, m := range res.Options {
		if m.Promotion == piece {
			return m, nil
		}
	}
	return board.Move{}, fmt.Errorf("%w: %s", errs.ErrPromotionUnavailable, piece)
}
