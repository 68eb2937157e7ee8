package game

import (
	"context"
	"time"

	"go.uber.org/zap"

	"board_sync/internal/domain/game"
)

const recorderQueue = 64

// Recorder persists the game off the publishing goroutine: a snapshot
// after every committed move, the archive and scoresheet at the end.
type Recorder struct {
	sessionID string
	gameID    string
	engine    *Engine
	store     GameStore
	sheet     ScoresheetWriter
	log       *zap.SugaredLogger

	startedAt time.Time
	queue     chan game.Event
}

func NewRecorder(sessionID, gameID string, engine *Engine, store GameStore, sheet ScoresheetWriter, log *zap.SugaredLogger) *Recorder {
	return &Recorder{
		sessionID: sessionID,
		gameID:    gameID,
		engine:    engine,
		store:     store,
		sheet:     sheet,
		log:       log,
		startedAt: time.Now().UTC(),
		queue:     make(chan game.Event, recorderQueue),
	}
}

// Handle is the Broadcaster subscriber. It never blocks.
func (r *Recorder) Handle(ev game.Event) {
	switch ev.Type {
	case game.EventMoveCommitted, game.EventGameEnded:
	default:
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.log.Warnw("recorder queue full, event dropped", "type", ev.Type)
	}
}

func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.queue:
			r.handle(ctx, ev)
			if ev.Type == game.EventGameEnded {
				return nil
			}
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev game.Event) {
	rec := r.Record()

	if ev.Type == game.EventMoveCommitted {
		if err := r.store.SaveSnapshot(ctx, rec); err != nil {
			r.log.Warnw("failed to save snapshot", "game", r.gameID, "error", err)
		}
		return
	}

	// shutdown usually follows the end of the game
	ctx = context.WithoutCancel(ctx)
	ended := ev.At
	rec.EndedAt = &ended
	rec.Status = ev.Reason
	if err := r.store.ArchiveGame(ctx, rec); err != nil {
		r.log.Errorw("failed to archive game", "game", r.gameID, "error", err)
	} else if err := r.store.DeleteSnapshot(ctx, r.gameID); err != nil {
		r.log.Warnw("failed to delete snapshot", "game", r.gameID, "error", err)
	}

	if r.sheet != nil && r.sheet.Enabled() {
		path, err := r.sheet.Write(rec)
		if err != nil {
			r.log.Errorw("failed to write scoresheet", "game", r.gameID, "error", err)
			return
		}
		r.log.Infow("scoresheet written", "path", path)
	}
}

// Record builds the archive document from the current canonical state.
func (r *Recorder) Record() game.GameRecord {
	state := r.engine.State()
	status := r.engine.Status()

	rec := game.GameRecord{
		SessionID:  r.sessionID,
		GameID:     r.gameID,
		LocalColor: r.engine.LocalColor().String(),
		StartFEN:   r.engine.StartFEN(),
		Moves:      state.HistoryUCI(),
		FinalFEN:   state.FEN,
		Status:     "started",
		StartedAt:  r.startedAt,
		UpdatedAt:  time.Now().UTC(),
	}
	if status.Halted {
		rec.Status = "halted"
	}
	return rec
}
