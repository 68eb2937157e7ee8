package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"board_sync/internal/domain/board"
	"board_sync/internal/domain/game"
	errs "board_sync/internal/errors"
)

type EngineParams struct {
	SendTimeout  time.Duration
	SendRetries  int
	RetryBackoff time.Duration
}

func DefaultEngineParams() EngineParams {
	return EngineParams{SendTimeout: 10 * time.Second, SendRetries: 3, RetryBackoff: 250 * time.Millisecond}
}

type EngineStatus struct {
	InFlight   bool
	Halted     bool
	HaltReason string
	Ended      bool
	EndReason  string
	Version    uint64
}

// Engine owns the canonical state and the turn lock. Local commits and
// remote applications are serialized through mu; a commit keeps the turn
// lock (inFlight) across the network send but never holds mu there.
type Engine struct {
	params EngineParams
	rules  Rules
	peer   Peer
	events Publisher
	log    *zap.SugaredLogger

	mu         sync.Mutex
	state      game.CanonicalState
	startFEN   string
	localColor board.Color
	inFlight   bool
	idle       chan struct{}
	haltReason string
	ended      bool
	endReason  string
	version    uint64

	done    chan struct{}
	endOnce sync.Once
}

func NewEngine(params EngineParams, rules Rules, peer Peer, events Publisher, log *zap.SugaredLogger) *Engine {
	return &Engine{
		params: params,
		rules:  rules,
		peer:   peer,
		events: events,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Reset replaces the canonical state with fen plus history and clears a
// halt. It is the explicit recovery step after a sync halt.
func (e *Engine) Reset(fen string, history []string) error {
	pos, err := e.rules.Position(fen)
	if err != nil {
		return err
	}
	state := game.CanonicalState{Position: pos}
	for _, uci := range history {
		m, err := board.ParseUCI(uci)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrInvalidMove, err)
		}
		pos, applied, err := e.rules.Apply(state.FEN, m)
		if err != nil {
			return err
		}
		state.Position = pos
		state.History = append(state.History, applied)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return errs.ErrTurnLockBusy
	}
	e.state = state
	e.startFEN = fen
	e.haltReason = ""
	e.version++
	e.log.Infow("canonical state reset", "fen", state.FEN, "ply", state.Ply())
	return nil
}

func (e *Engine) State() game.CanonicalState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

func (e *Engine) StartFEN() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startFEN
}

func (e *Engine) SetLocalColor(c board.Color) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localColor = c
}

func (e *Engine) LocalColor() board.Color {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localColor
}

func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineStatus{
		InFlight:   e.inFlight,
		Halted:     e.haltReason != "",
		HaltReason: e.haltReason,
		Ended:      e.ended,
		EndReason:  e.endReason,
		Version:    e.version,
	}
}

// Version changes on every mutation of the canonical state.
func (e *Engine) Version() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// gate checks the conditions shared by every mutation. Callers hold mu.
func (e *Engine) gate() error {
	switch {
	case e.ended:
		return errs.ErrSessionEnded
	case e.haltReason != "":
		return fmt.Errorf("%w: %s", errs.ErrSyncHalted, e.haltReason)
	case e.inFlight:
		return errs.ErrTurnLockBusy
	}
	return nil
}

// CommitLocal applies m, forwards it to the peer and waits for the
// answer. On rejection or transport failure the state is rolled back.
func (e *Engine) CommitLocal(ctx context.Context, m board.Move) (board.Move, error) {
	e.mu.Lock()
	if err := e.gate(); err != nil {
		e.mu.Unlock()
		return m, err
	}
	if e.localColor == board.NoColor || e.state.SideToMove != e.localColor {
		e.mu.Unlock()
		return m, fmt.Errorf("%w: %s to move", errs.ErrTurnViolation, e.state.SideToMove)
	}

	prev := e.state.Clone()
	pos, applied, err := e.rules.Apply(prev.FEN, m)
	if err != nil {
		e.mu.Unlock()
		return m, err
	}
	e.state = game.CanonicalState{
		Position: pos,
		History:  append(append([]board.Move(nil), prev.History...), applied),
	}
	e.inFlight = true
	e.idle = make(chan struct{})
	e.version++
	e.mu.Unlock()

	e.log.Infow("committing local move", "move", applied.UCI(), "fen", pos.FEN)
	sendErr := e.send(ctx, applied)

	e.mu.Lock()
	if sendErr != nil {
		e.state = prev
		e.version++
	}
	fen, ply := e.state.FEN, e.state.Ply()
	e.mu.Unlock()

	// the outcome is published before the turn lock is released
	if sendErr != nil {
		e.log.Warnw("local move rolled back", "move", applied.UCI(), "fen", fen, "error", sendErr)
		e.publish(game.MoveRejected(applied, sendErr.Error()))
	} else {
		e.log.Infow("local move committed", "move", applied.UCI(), "ply", ply, "fen", fen)
		e.publish(game.MoveCommitted(applied, ply, fen, game.OriginLocal))
	}

	e.mu.Lock()
	e.inFlight = false
	close(e.idle)
	e.mu.Unlock()
	return applied, sendErr
}

func (e *Engine) send(ctx context.Context, m board.Move) error {
	var lastErr error
	for attempt := 0; attempt <= e.params.SendRetries; attempt++ {
		if attempt > 0 {
			wait := time.NewTimer(time.Duration(attempt) * e.params.RetryBackoff)
			select {
			case <-ctx.Done():
				wait.Stop()
				return fmt.Errorf("%w: %w", errs.ErrTransportFailure, ctx.Err())
			case <-e.done:
				wait.Stop()
				return errs.ErrSessionEnded
			case <-wait.C:
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.params.SendTimeout)
		err := e.peer.SubmitMove(attemptCtx, m)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, errs.ErrRemoteRejected) {
			return err
		}
		lastErr = err
		e.log.Warnw("move send failed", "move", m.UCI(), "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("%w: %d attempts: %w", errs.ErrTransportFailure, e.params.SendRetries+1, lastErr)
}

// ApplyRemote applies a single move made by the remote side. A move that
// is illegal in the canonical state, or arrives on the local side's turn,
// halts synchronization.
func (e *Engine) ApplyRemote(m board.Move) (board.Move, error) {
	e.mu.Lock()
	if err := e.gate(); err != nil {
		e.mu.Unlock()
		return m, err
	}

	applied, err := e.applyRemoteLocked(m, true)
	if err != nil {
		e.haltLocked(err.Error())
		e.mu.Unlock()
		return m, e.reportHalt(err.Error(), errs.ErrIllegalRemoteMove)
	}
	fen, ply := e.state.FEN, e.state.Ply()
	e.mu.Unlock()

	e.log.Infow("remote move applied", "move", applied.UCI(), "ply", ply, "fen", fen)
	e.publish(game.MoveCommitted(applied, ply, fen, game.OriginRemote))
	return applied, nil
}

// applyRemoteLocked validates m against the canonical state and applies
// it. Callers hold mu.
//
// With checkTurn set a move on the local side's turn is refused: a single
// pushed move must be the opponent's. SyncRemote passes false because the
// remote move list is authoritative for both sides; its suffix may hold a
// local move whose acknowledgement was lost and then rolled back here,
// which replaying heals.
func (e *Engine) applyRemoteLocked(m board.Move, checkTurn bool) (board.Move, error) {
	if checkTurn && e.localColor != board.NoColor && e.state.SideToMove == e.localColor {
		return m, fmt.Errorf("remote move %s on the local side's turn", m.UCI())
	}
	pos, applied, err := e.rules.Apply(e.state.FEN, m)
	if err != nil {
		return m, err
	}
	e.state.Position = pos
	e.state.History = append(e.state.History, applied)
	e.version++
	return applied, nil
}

// SyncRemote reconciles the canonical history with the complete remote
// move list. Moves already known locally are echoes and are skipped; a
// missing suffix is applied; a diverging history halts synchronization.
func (e *Engine) SyncRemote(ctx context.Context, remote []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	if err := e.gate(); err != nil {
		e.mu.Unlock()
		return 0, err
	}

	local := e.state.HistoryUCI()
	for i := 0; i < len(local) && i < len(remote); i++ {
		if local[i] != remote[i] {
			reason := fmt.Sprintf("remote history diverges at ply %d: local %s remote %s", i+1, local[i], remote[i])
			e.haltLocked(reason)
			e.mu.Unlock()
			return 0, e.reportHalt(reason, errs.ErrSyncHalted)
		}
	}
	if len(remote) <= len(local) {
		e.mu.Unlock()
		return 0, nil
	}

	var committed []game.Event
	for _, uci := range remote[len(local):] {
		m, err := board.ParseUCI(uci)
		if err == nil {
			m, err = e.applyRemoteLocked(m, false)
		}
		if err != nil {
			reason := fmt.Sprintf("remote move %s: %v", uci, err)
			e.haltLocked(reason)
			e.mu.Unlock()
			e.publishAll(committed)
			return len(committed), e.reportHalt(reason, errs.ErrIllegalRemoteMove)
		}
		committed = append(committed, game.MoveCommitted(m, e.state.Ply(), e.state.FEN, game.OriginRemote))
	}
	fen := e.state.FEN
	e.mu.Unlock()

	e.log.Infow("remote history synced", "applied", len(committed), "fen", fen)
	e.publishAll(committed)
	return len(committed), nil
}

// WaitIdle blocks until no local commit is in flight.
func (e *Engine) WaitIdle(ctx context.Context) error {
	e.mu.Lock()
	if !e.inFlight {
		e.mu.Unlock()
		return nil
	}
	idle := e.idle
	e.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// haltLocked latches the halt in the same critical section that detected
// it. Callers hold mu and call reportHalt after releasing it.
func (e *Engine) haltLocked(reason string) {
	e.haltReason = reason
}

func (e *Engine) reportHalt(reason string, kind error) error {
	e.log.Errorw("synchronization halted", "reason", reason)
	e.publish(game.SyncHalted(reason))
	return fmt.Errorf("%w: %s", kind, reason)
}

// End marks the session finished. Later mutations fail with
// ErrSessionEnded and Done is closed.
func (e *Engine) End(reason string) {
	e.endOnce.Do(func() {
		e.mu.Lock()
		e.ended = true
		e.endReason = reason
		fen := e.state.FEN
		e.mu.Unlock()

		close(e.done)
		e.log.Infow("session ended", "reason", reason, "fen", fen)
		e.publish(game.GameEnded(reason, fen))
	})
}

func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) publish(ev game.Event) {
	if e.events != nil {
		e.events.Publish(ev)
	}
}

func (e *Engine) publishAll(evs []game.Event) {
	for _, ev := range evs {
		e.publish(ev)
	}
}
