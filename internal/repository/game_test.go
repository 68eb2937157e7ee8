package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"board_sync/internal/domain/game"
	errs "board_sync/internal/errors"
)

func TestGameRepositoryWithoutBackends(t *testing.T) {
	repo := NewGameRepository(zaptest.NewLogger(t).Sugar(), nil, nil)
	ctx := context.Background()
	rec := game.GameRecord{SessionID: "s1", GameID: "g1"}

	assert.NoError(t, repo.SaveSnapshot(ctx, rec))
	assert.NoError(t, repo.ArchiveGame(ctx, rec))
	assert.NoError(t, repo.DeleteSnapshot(ctx, "g1"))

	_, err := repo.LoadSnapshot(ctx, "g1")
	assert.ErrorIs(t, err, errs.ErrGameNotFound)
	_, err = repo.GetGameByID(ctx, "g1")
	assert.ErrorIs(t, err, errs.ErrGameNotFound)
}

func TestScoresheetWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sheets")
	sheet := NewScoresheet(dir)
	require.True(t, sheet.Enabled())

	path, err := sheet.Write(game.GameRecord{
		SessionID:  "s1",
		GameID:     "g1",
		LocalColor: "white",
		StartFEN:   game.StartFEN,
		Moves:      []string{"e2e4", "e7e5", "g1f3"},
		FinalFEN:   "rnbqkbnr/pppp1ppp/8/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R b KQkq - 1 2",
		Status:     "resign",
		StartedAt:  time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "g1.pdf"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.False(t, NewScoresheet("").Enabled())
}
