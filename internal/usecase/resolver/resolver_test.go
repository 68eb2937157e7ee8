package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"board_sync/internal/domain/board"
	"board_sync/internal/domain/game"
	errs "board_sync/internal/errors"
	"board_sync/internal/repository"
)

func stateOf(t *testing.T, fen string) game.CanonicalState {
	t.Helper()
	pos, err := repository.NewRulesOracle().Position(fen)
	require.NoError(t, err)
	return game.CanonicalState{Position: pos}
}

func squares(t *testing.T, names ...string) board.SquareSet {
	t.Helper()
	var set board.SquareSet
	for _, name := range names {
		sq, err := board.ParseSquare(name)
		require.NoError(t, err)
		set = set.Add(sq)
	}
	return set
}

func candidate(t *testing.T, changed, present []string) board.MoveCandidate {
	return board.MoveCandidate{Squares: squares(t, changed...), Present: squares(t, present...)}
}

func TestResolveSignatures(t *testing.T) {
	tests := []struct {
		name    string
		fen     string
		changed []string
		present []string
		want    string
		kind    board.PatternKind
	}{
		{
			name:    "ordinary",
			fen:     game.StartFEN,
			changed: []string{"e2", "e4"},
			present: []string{"e4"},
			want:    "e2e4",
			kind:    board.PatternOrdinary,
		},
		{
			name:    "capture",
			fen:     "rnbqkbnr/ppp1pppp/8/3p4/4P3/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 2",
			changed: []string{"e4", "d5"},
			present: []string{"d5"},
			want:    "e4d5",
			kind:    board.PatternCapture,
		},
		{
			name:    "castling",
			fen:     "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1",
			changed: []string{"e1", "f1", "g1", "h1"},
			present: []string{"f1", "g1"},
			want:    "e1g1",
			kind:    board.PatternCastling,
		},
		{
			name:    "queenside castling",
			fen:     "r3k2r/8/8/8/8/8/8/R3K2R b KQkq - 0 1",
			changed: []string{"a8", "c8", "d8", "e8"},
			present: []string{"c8", "d8"},
			want:    "e8c8",
			kind:    board.PatternCastling,
		},
		{
			name:    "en passant",
			fen:     "rnbqkbnr/ppp1p1pp/8/3pPp2/8/8/PPPP1PPP/RNBQKBNR w KQkq f6 0 3",
			changed: []string{"e5", "f5", "f6"},
			present: []string{"f6"},
			want:    "e5f6",
			kind:    board.PatternEnPassant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(candidate(t, tt.changed, tt.present), stateOf(t, tt.fen))
			require.NoError(t, err)
			assert.Equal(t, OutcomeMove, res.Outcome)
			assert.Equal(t, tt.want, res.Move.UCI())
			assert.Equal(t, tt.kind, res.Signature.Kind())
		})
	}
}

func TestResolvePromotion(t *testing.T) {
	state := stateOf(t, "8/4P3/8/8/8/8/k7/4K3 w - - 0 1")
	res, err := Resolve(candidate(t, []string{"e7", "e8"}, []string{"e8"}), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomePendingPromotion, res.Outcome)
	assert.Len(t, res.Options, 4)

	m, err := Finalize(res, board.Queen)
	require.NoError(t, err)
	assert.Equal(t, "e7e8q", m.UCI())

	m, err = Finalize(res, board.Knight)
	require.NoError(t, err)
	assert.Equal(t, "e7e8n", m.UCI())

	_, err = Finalize(res, board.King)
	assert.ErrorIs(t, err, errs.ErrPromotionUnavailable)
}

func TestResolveAmbiguousCapture(t *testing.T) {
	state := stateOf(t, "4k3/3p4/8/8/6p1/8/8/3QK3 w - - 0 1")
	before := state.Clone()

	_, err := Resolve(candidate(t, []string{"d1", "d7", "g4"}, []string{"d7", "g4"}), state)
	assert.ErrorIs(t, err, errs.ErrAmbiguousPattern)
	assert.ErrorIs(t, err, errs.ErrNoMatch)
	assert.Empty(t, cmp.Diff(before, state))
}

func TestResolveNoMatch(t *testing.T) {
	state := stateOf(t, game.StartFEN)

	_, err := Resolve(candidate(t, []string{"e2", "e5"}, []string{"e5"}), state)
	assert.ErrorIs(t, err, errs.ErrNoMatch)

	_, err = Resolve(candidate(t, []string{"e2", "d2"}, nil), state)
	assert.ErrorIs(t, err, errs.ErrNoMatch)
}

func TestResolveSettled(t *testing.T) {
	res, err := Resolve(candidate(t, []string{"e2", "e4"}, []string{"e2"}), stateOf(t, game.StartFEN))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
}
