package game

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"board_sync/internal/domain/board"
	"board_sync/internal/domain/game"
	errs "board_sync/internal/errors"
	"board_sync/internal/repository"
)

type fakePeer struct {
	mu      sync.Mutex
	calls   []string
	respond func(call int, m board.Move) error
	entered chan struct{}
	release chan struct{}
}

func (p *fakePeer) SubmitMove(ctx context.Context, m board.Move) error {
	p.mu.Lock()
	p.calls = append(p.calls, m.UCI())
	call := len(p.calls)
	p.mu.Unlock()

	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.respond != nil {
		return p.respond(call, m)
	}
	return nil
}

func (p *fakePeer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type eventLog struct {
	mu     sync.Mutex
	events []game.Event
}

func (l *eventLog) Publish(ev game.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) Types() []game.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]game.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) Plies() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []int
	for _, ev := range l.events {
		if ev.Type == game.EventMoveCommitted {
			out = append(out, ev.Ply)
		}
	}
	return out
}

func testParams() EngineParams {
	return EngineParams{SendTimeout: time.Second, SendRetries: 2, RetryBackoff: time.Millisecond}
}

func newTestEngine(t *testing.T, peer Peer, local board.Color) (*Engine, *eventLog) {
	t.Helper()
	events := &eventLog{}
	e := NewEngine(testParams(), repository.NewRulesOracle(), peer, events, zaptest.NewLogger(t).Sugar())
	require.NoError(t, e.Reset(game.StartFEN, nil))
	e.SetLocalColor(local)
	return e, events
}

func move(t *testing.T, s string) board.Move {
	t.Helper()
	m, err := board.ParseUCI(s)
	require.NoError(t, err)
	return m
}

func TestCommitLocalOrdinaryMove(t *testing.T) {
	peer := &fakePeer{}
	e, events := newTestEngine(t, peer, board.White)

	applied, err := e.CommitLocal(context.Background(), move(t, "e2e4"))
	require.NoError(t, err)
	assert.Equal(t, "e2e4", applied.UCI())

	state := e.State()
	assert.Equal(t, []string{"e2e4"}, state.HistoryUCI())
	assert.Equal(t, board.Black, state.SideToMove)
	assert.True(t, strings.HasPrefix(state.FEN, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b"))
	assert.Equal(t, []string{"e2e4"}, peer.Calls())
	assert.Equal(t, []game.EventType{game.EventMoveCommitted}, events.Types())
	assert.False(t, e.Status().InFlight)
}

func TestCommitLocalRollbackOnRejection(t *testing.T) {
	peer := &fakePeer{respond: func(int, board.Move) error {
		return errors.Join(errs.ErrRemoteRejected, errors.New("not your turn"))
	}}
	e, events := newTestEngine(t, peer, board.White)
	before := e.State()

	_, err := e.CommitLocal(context.Background(), move(t, "e2e4"))
	require.ErrorIs(t, err, errs.ErrRemoteRejected)

	after := e.State()
	assert.Empty(t, cmp.Diff(before, after))
	assert.Equal(t, before.FEN, after.FEN)
	assert.Len(t, peer.Calls(), 1, "rejections are not retried")
	assert.Equal(t, []game.EventType{game.EventMoveRejected}, events.Types())
}

func TestCommitLocalRetriesTransportFailures(t *testing.T) {
	peer := &fakePeer{respond: func(call int, _ board.Move) error {
		if call < 3 {
			return errors.New("connection reset")
		}
		return nil
	}}
	e, _ := newTestEngine(t, peer, board.White)

	_, err := e.CommitLocal(context.Background(), move(t, "d2d4"))
	require.NoError(t, err)
	assert.Len(t, peer.Calls(), 3)
	assert.Equal(t, 1, e.State().Ply())
}

func TestCommitLocalTransportFailureRollsBack(t *testing.T) {
	peer := &fakePeer{respond: func(int, board.Move) error {
		return errors.New("connection refused")
	}}
	e, _ := newTestEngine(t, peer, board.White)

	_, err := e.CommitLocal(context.Background(), move(t, "d2d4"))
	require.ErrorIs(t, err, errs.ErrTransportFailure)
	assert.Len(t, peer.Calls(), testParams().SendRetries+1)
	assert.Equal(t, 0, e.State().Ply())
	assert.Equal(t, board.White, e.State().SideToMove)
}

func TestCommitLocalTurnViolation(t *testing.T) {
	peer := &fakePeer{}
	e, _ := newTestEngine(t, peer, board.Black)

	_, err := e.CommitLocal(context.Background(), move(t, "e2e4"))
	assert.ErrorIs(t, err, errs.ErrTurnViolation)
	assert.Empty(t, peer.Calls())
	assert.Equal(t, 0, e.State().Ply())
}

func TestCommitLocalIllegalMove(t *testing.T) {
	e, _ := newTestEngine(t, &fakePeer{}, board.White)
	_, err := e.CommitLocal(context.Background(), move(t, "e2e5"))
	assert.ErrorIs(t, err, errs.ErrInvalidMove)
	assert.False(t, e.Status().InFlight)
}

func TestAtMostOneMutationInFlight(t *testing.T) {
	peer := &fakePeer{entered: make(chan struct{}, 1), release: make(chan struct{})}
	e, _ := newTestEngine(t, peer, board.White)

	first := move(t, "e2e4")
	done := make(chan error, 1)
	go func() {
		_, err := e.CommitLocal(context.Background(), first)
		done <- err
	}()
	<-peer.entered

	assert.True(t, e.Status().InFlight)

	_, err := e.ApplyRemote(move(t, "e7e5"))
	assert.ErrorIs(t, err, errs.ErrTurnLockBusy)

	_, err = e.CommitLocal(context.Background(), move(t, "d2d4"))
	assert.ErrorIs(t, err, errs.ErrTurnLockBusy)
	assert.ErrorIs(t, err, errs.ErrTurnViolation)

	_, err = e.SyncRemote(context.Background(), []string{"e2e4", "e7e5"})
	assert.ErrorIs(t, err, errs.ErrTurnLockBusy)

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, e.WaitIdle(waitCtx), context.DeadlineExceeded)
	cancel()

	close(peer.release)
	require.NoError(t, <-done)
	require.NoError(t, e.WaitIdle(context.Background()))

	applied, err := e.ApplyRemote(move(t, "e7e5"))
	require.NoError(t, err)
	assert.Equal(t, "e7e5", applied.UCI())
	assert.Equal(t, []string{"e2e4", "e7e5"}, e.State().HistoryUCI())
}

func TestIllegalRemoteMoveHalts(t *testing.T) {
	e, events := newTestEngine(t, &fakePeer{}, board.Black)

	_, err := e.ApplyRemote(move(t, "e2e5"))
	require.ErrorIs(t, err, errs.ErrIllegalRemoteMove)
	assert.True(t, e.Status().Halted)
	assert.Contains(t, events.Types(), game.EventSyncHalted)

	_, err = e.ApplyRemote(move(t, "e2e4"))
	assert.ErrorIs(t, err, errs.ErrSyncHalted)
	_, err = e.CommitLocal(context.Background(), move(t, "e7e5"))
	assert.ErrorIs(t, err, errs.ErrSyncHalted)

	require.NoError(t, e.Reset(game.StartFEN, []string{"e2e4"}))
	assert.False(t, e.Status().Halted)
	_, err = e.CommitLocal(context.Background(), move(t, "e7e5"))
	assert.NoError(t, err)
}

func TestRemoteMoveOnLocalTurnHalts(t *testing.T) {
	e, _ := newTestEngine(t, &fakePeer{}, board.White)
	_, err := e.ApplyRemote(move(t, "e2e4"))
	assert.ErrorIs(t, err, errs.ErrIllegalRemoteMove)
	assert.Equal(t, 0, e.State().Ply())
}

func TestSyncRemote(t *testing.T) {
	e, events := newTestEngine(t, &fakePeer{}, board.White)
	ctx := context.Background()

	_, err := e.CommitLocal(ctx, move(t, "e2e4"))
	require.NoError(t, err)

	n, err := e.SyncRemote(ctx, []string{})
	require.NoError(t, err)
	assert.Zero(t, n, "lagging remote list")

	n, err = e.SyncRemote(ctx, []string{"e2e4"})
	require.NoError(t, err)
	assert.Zero(t, n, "echo of the local move")

	n, err = e.SyncRemote(ctx, []string{"e2e4", "e7e5", "g1f3"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"e2e4", "e7e5", "g1f3"}, e.State().HistoryUCI())

	committed := 0
	for _, typ := range events.Types() {
		if typ == game.EventMoveCommitted {
			committed++
		}
	}
	assert.Equal(t, 3, committed)
	assert.Equal(t, []int{1, 2, 3}, events.Plies())

	_, err = e.SyncRemote(ctx, []string{"e2e4", "c7c5"})
	assert.ErrorIs(t, err, errs.ErrSyncHalted)
	assert.True(t, e.Status().Halted)
	assert.Equal(t, 3, e.State().Ply())
}

func TestSyncRemoteIllegalSuffixHalts(t *testing.T) {
	e, _ := newTestEngine(t, &fakePeer{}, board.Black)

	n, err := e.SyncRemote(context.Background(), []string{"e2e4", "e7e6", "e4e6"})
	assert.ErrorIs(t, err, errs.ErrIllegalRemoteMove)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, e.State().Ply())
}

func TestSyncRemoteReplaysLostLocalAck(t *testing.T) {
	peer := &fakePeer{respond: func(int, board.Move) error {
		return errors.New("connection reset")
	}}
	e, events := newTestEngine(t, peer, board.White)
	ctx := context.Background()

	_, err := e.CommitLocal(ctx, move(t, "d2d4"))
	require.ErrorIs(t, err, errs.ErrTransportFailure)
	require.Equal(t, 0, e.State().Ply())

	// the peer accepted d2d4 after all and the opponent answered
	n, err := e.SyncRemote(ctx, []string{"d2d4", "d7d5"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, e.Status().Halted)
	assert.Equal(t, []string{"d2d4", "d7d5"}, e.State().HistoryUCI())
	assert.Equal(t, []int{1, 2}, events.Plies())

	_, err = e.ApplyRemote(move(t, "g8f6"))
	assert.ErrorIs(t, err, errs.ErrIllegalRemoteMove, "a single remote move on the local turn")
}

func TestHaltLatchedBeforeEventsAreDelivered(t *testing.T) {
	b := NewBroadcaster()
	e := NewEngine(testParams(), repository.NewRulesOracle(), &fakePeer{}, b, zaptest.NewLogger(t).Sugar())
	require.NoError(t, e.Reset(game.StartFEN, nil))
	e.SetLocalColor(board.White)

	var commitErr error
	b.Subscribe(func(ev game.Event) {
		if ev.Type == game.EventMoveCommitted && ev.Ply == 2 {
			_, commitErr = e.CommitLocal(context.Background(), move(t, "g1f3"))
		}
	})

	n, err := e.SyncRemote(context.Background(), []string{"e2e4", "e7e5", "e4e6"})
	require.ErrorIs(t, err, errs.ErrIllegalRemoteMove)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, commitErr, errs.ErrSyncHalted)
	assert.Equal(t, []string{"e2e4", "e7e5"}, e.State().HistoryUCI())
}

func TestLocalCommitPublishedBeforeTurnLockRelease(t *testing.T) {
	b := NewBroadcaster()
	e := NewEngine(testParams(), repository.NewRulesOracle(), &fakePeer{}, b, zaptest.NewLogger(t).Sugar())
	require.NoError(t, e.Reset(game.StartFEN, nil))
	e.SetLocalColor(board.White)

	events := &eventLog{}
	var syncErr error
	b.Subscribe(func(ev game.Event) {
		if ev.Type == game.EventMoveCommitted && ev.Origin == game.OriginLocal {
			_, syncErr = e.SyncRemote(context.Background(), []string{"e2e4", "e7e5"})
		}
		events.Publish(ev)
	})

	_, err := e.CommitLocal(context.Background(), move(t, "e2e4"))
	require.NoError(t, err)
	assert.ErrorIs(t, syncErr, errs.ErrTurnLockBusy)

	_, err = e.SyncRemote(context.Background(), []string{"e2e4", "e7e5"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, events.Plies())
}

func TestEndStopsMutations(t *testing.T) {
	e, events := newTestEngine(t, &fakePeer{}, board.White)
	e.End("resign")
	e.End("again")

	select {
	case <-e.Done():
	default:
		t.Fatal("done not closed")
	}

	_, err := e.CommitLocal(context.Background(), move(t, "e2e4"))
	assert.ErrorIs(t, err, errs.ErrSessionEnded)
	_, err = e.ApplyRemote(move(t, "e2e4"))
	assert.ErrorIs(t, err, errs.ErrSessionEnded)

	assert.Equal(t, []game.EventType{game.EventGameEnded}, events.Types())
	assert.Equal(t, "resign", e.Status().EndReason)
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	var got []game.EventType
	unsubscribe := b.Subscribe(func(ev game.Event) { got = append(got, ev.Type) })

	b.Publish(game.NoiseStateChanged(board.StateNoiseActive))
	unsubscribe()
	unsubscribe()
	b.Publish(game.SyncHalted("x"))

	assert.Equal(t, []game.EventType{game.EventNoiseStateChanged}, got)
}
