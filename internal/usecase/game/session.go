package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"board_sync/internal/domain/board"
	"board_sync/internal/domain/game"
	errs "board_sync/internal/errors"
	"board_sync/internal/usecase/arbiter"
	"board_sync/internal/usecase/detector"
	"board_sync/internal/usecase/resolver"
)

const streamReconnectDelay = 2 * time.Second

type SessionParams struct {
	PromotionTimeout time.Duration
	// AccountID is the remote account of the local player, used to pick
	// the local colour from the game's player ids.
	AccountID string
}

type SessionDeps struct {
	Engine     *Engine
	Model      *detector.BackgroundModel
	Classifier *detector.ChangeClassifier
	Presence   detector.PresenceOracle
	Arbiter    *arbiter.Arbiter
	Frames     FrameSource
	Remote     RemoteStream
	Promotion  PromotionOracle
	Events     Publisher
}

type commitResult struct {
	move    board.Move
	squares board.SquareSet
	err     error
}

// Session runs the sampling loop and the remote loop of one game.
type Session struct {
	id     string
	params SessionParams
	deps   SessionDeps
	log    *zap.SugaredLogger

	recalibrate  atomic.Bool
	arbiterState atomic.Uint32

	// sampling loop only
	seenVersion uint64
	lastFrame   board.Frame

	remoteMu    sync.Mutex
	remoteMoves []string
	remoteFEN   string
}

func NewSession(params SessionParams, deps SessionDeps, log *zap.SugaredLogger) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		params: params,
		deps:   deps,
		log:    log.With("session", id),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Engine() *Engine { return s.deps.Engine }

func (s *Session) ArbiterState() board.ArbiterState {
	return board.ArbiterState(s.arbiterState.Load())
}

// Recalibrate asks the sampling loop to rebuild the background model from
// the next frame.
func (s *Session) Recalibrate() {
	s.recalibrate.Store(true)
}

// Resync is the explicit recovery step after a halt: the canonical state
// is rebuilt from the last remote move list.
func (s *Session) Resync(ctx context.Context) error {
	s.remoteMu.Lock()
	fen, moves := s.remoteFEN, append([]string(nil), s.remoteMoves...)
	s.remoteMu.Unlock()
	if fen == "" {
		fen = s.deps.Engine.StartFEN()
	}

	if err := s.deps.Engine.WaitIdle(ctx); err != nil {
		return err
	}
	return s.deps.Engine.Reset(fen, moves)
}

func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-s.deps.Engine.Done():
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		return s.sampleLoop(gctx, g)
	})

	if s.deps.Remote != nil {
		g.Go(func() error {
			return s.remoteLoop(gctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Session) sampleLoop(ctx context.Context, g *errgroup.Group) error {
	results := make(chan commitResult, 1)
	frames := s.deps.Frames.Frames()
	busy := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-results:
			busy = false
			s.finishCommit(r)
		case frame, ok := <-frames:
			if !ok {
				s.log.Info("frame source closed")
				return nil
			}
			if candidate, res, ok := s.tick(frame); ok && !busy {
				busy = true
				g.Go(func() error {
					results <- s.commit(ctx, candidate, res)
					return nil
				})
			}
		}
	}
}

// tick runs detection on one frame and returns a resolved candidate that
// still has to be committed.
func (s *Session) tick(frame board.Frame) (board.MoveCandidate, resolver.Resolution, bool) {
	model, arb := s.deps.Model, s.deps.Arbiter
	s.lastFrame = frame

	if s.recalibrate.Swap(false) || !model.Calibrated() {
		if err := model.Calibrate(frame); err != nil {
			s.log.Warnw("calibration failed", "tick", frame.Tick, "error", err)
			return board.MoveCandidate{}, resolver.Resolution{}, false
		}
		s.log.Infow("background model calibrated", "tick", frame.Tick, "cells", len(frame.Cells))
		s.resetArbiter()
		return board.MoveCandidate{}, resolver.Resolution{}, false
	}

	if v := s.deps.Engine.Version(); v != s.seenVersion && !arb.Frozen() {
		s.seenVersion = v
		s.resetArbiter()
	}

	readings, err := model.Classify(frame)
	if err != nil {
		s.log.Debugw("frame not classified", "tick", frame.Tick, "error", err)
		return board.MoveCandidate{}, resolver.Resolution{}, false
	}
	cs := s.deps.Classifier.Build(frame, readings, s.deps.Presence)
	model.Update(frame, cs.Squares())

	d := arb.Observe(cs)
	s.noteArbiter(d.Previous)
	if d.Candidate == nil {
		return board.MoveCandidate{}, resolver.Resolution{}, false
	}

	candidate := *d.Candidate
	res, err := resolver.Resolve(candidate, s.deps.Engine.State())
	if err != nil {
		s.log.Warnw("rejected change pattern", "squares", candidate.Squares.String(), "error", err)
		s.publish(game.PatternRejected(candidate.Squares, err.Error()))
		s.completeArbiter(false)
		return board.MoveCandidate{}, resolver.Resolution{}, false
	}

	if res.Outcome == resolver.OutcomeSettled {
		s.log.Infow("board settled on expected position", "squares", candidate.Squares.String())
		model.Rebase(candidate.Squares, frame)
		s.completeArbiter(true)
		return board.MoveCandidate{}, resolver.Resolution{}, false
	}

	return candidate, res, true
}

// commit runs off the sampling loop: it may wait for a promotion choice
// and for the remote acknowledgement.
func (s *Session) commit(ctx context.Context, candidate board.MoveCandidate, res resolver.Resolution) commitResult {
	r := commitResult{move: res.Move, squares: candidate.Squares}

	if res.Outcome == resolver.OutcomePendingPromotion {
		s.publish(game.PromotionRequired(candidate.Squares, res.Options))
		if s.deps.Promotion == nil {
			r.err = errs.ErrPromotionUnavailable
			return r
		}

		pctx, cancel := context.WithTimeout(ctx, s.params.PromotionTimeout)
		piece, err := s.deps.Promotion.ChoosePromotion(pctx, res.Options)
		cancel()
		if err != nil {
			r.err = err
			return r
		}
		if r.move, err = resolver.Finalize(res, piece); err != nil {
			r.err = err
			return r
		}
	}

	r.move, r.err = s.deps.Engine.CommitLocal(ctx, r.move)
	return r
}

func (s *Session) finishCommit(r commitResult) {
	if r.err != nil {
		s.log.Warnw("local move not committed", "move", r.move.UCI(), "error", r.err)
		if !errors.Is(r.err, errs.ErrRemoteRejected) && !errors.Is(r.err, errs.ErrTransportFailure) {
			// the engine only reports failed sends itself
			s.publish(game.MoveRejected(r.move, r.err.Error()))
		}
		s.completeArbiter(false)
	} else {
		s.deps.Model.Rebase(r.squares.Union(r.move.Touched()), s.lastFrame)
		s.completeArbiter(true)
	}
	s.seenVersion = s.deps.Engine.Version()
}

func (s *Session) completeArbiter(accepted bool) {
	prev := s.deps.Arbiter.State()
	s.deps.Arbiter.Complete(accepted)
	s.noteArbiter(prev)
}

func (s *Session) resetArbiter() {
	prev := s.deps.Arbiter.State()
	s.deps.Arbiter.Reset()
	s.noteArbiter(prev)
}

func (s *Session) noteArbiter(prev board.ArbiterState) {
	cur := s.deps.Arbiter.State()
	s.arbiterState.Store(uint32(cur))
	if cur != prev {
		s.publish(game.NoiseStateChanged(cur))
	}
}

func (s *Session) remoteLoop(ctx context.Context) error {
	for {
		err := s.deps.Remote.Stream(ctx, func(ev game.RemoteEvent) error {
			return s.handleRemote(ctx, ev)
		})
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errs.ErrSessionEnded) {
			return nil
		}
		if errors.Is(err, errs.ErrRemoteRejected) {
			// auth or unknown game, reconnecting will not help
			return err
		}
		s.log.Warnw("remote stream interrupted", "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(streamReconnectDelay):
		}
	}
}

func (s *Session) handleRemote(ctx context.Context, ev game.RemoteEvent) error {
	engine := s.deps.Engine

	switch ev.Kind {
	case game.RemoteOther:
		return nil
	case game.RemoteGameFull:
		if c := s.colorOf(ev); c != board.NoColor {
			engine.SetLocalColor(c)
		}
	}

	s.remoteMu.Lock()
	if ev.InitialFEN != "" {
		s.remoteFEN = ev.InitialFEN
	}
	s.remoteMoves = append([]string(nil), ev.Moves...)
	s.remoteMu.Unlock()

	if ev.Kind == game.RemoteGameFull && ev.InitialFEN != "" && !engine.Status().Halted {
		if err := engine.WaitIdle(ctx); err != nil {
			return err
		}
		if engine.StartFEN() != ev.InitialFEN {
			if err := engine.Reset(ev.InitialFEN, ev.Moves); err != nil {
				s.log.Errorw("failed to load remote game", "error", err)
				return nil
			}
		}
	}

	if err := s.syncRemote(ctx, ev.Moves); err != nil {
		switch {
		case errors.Is(err, errs.ErrSessionEnded):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}
		// halts are latched in the engine and reported there
		s.log.Warnw("remote moves not applied", "error", err)
	}

	if ev.Kind == game.RemoteGameEnded {
		engine.End(ev.Status)
		return errs.ErrSessionEnded
	}
	return nil
}

// syncRemote retries after an in-flight local commit instead of dropping
// the remote move list.
func (s *Session) syncRemote(ctx context.Context, moves []string) error {
	for {
		_, err := s.deps.Engine.SyncRemote(ctx, moves)
		if !errors.Is(err, errs.ErrTurnLockBusy) {
			return err
		}
		if err := s.deps.Engine.WaitIdle(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) colorOf(ev game.RemoteEvent) board.Color {
	switch s.params.AccountID {
	case "":
		return board.NoColor
	case ev.WhiteID:
		return board.White
	case ev.BlackID:
		return board.Black
	}
	return board.NoColor
}

func (s *Session) publish(ev game.Event) {
	if s.deps.Events != nil {
		s.deps.Events.Publish(ev)
	}
}
