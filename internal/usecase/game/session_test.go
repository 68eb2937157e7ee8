package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"board_sync/internal/domain/board"
	"board_sync/internal/domain/game"
	"board_sync/internal/usecase/arbiter"
	"board_sync/internal/usecase/detector"
)

const cellPixels = 64

type chanFrames chan board.Frame

func (c chanFrames) Frames() <-chan board.Frame { return c }

type scriptedStream struct {
	events []game.RemoteEvent
}

func (s *scriptedStream) Stream(ctx context.Context, fn func(game.RemoteEvent) error) error {
	for _, ev := range s.events {
		if err := fn(ev); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

type fixedPromotion board.PieceKind

func (p fixedPromotion) ChoosePromotion(context.Context, []board.Move) (board.PieceKind, error) {
	return board.PieceKind(p), nil
}

// boardFrame renders occupancy as presence hints; squares in moved get a
// partially changed patch.
func boardFrame(tick uint64, occupied, moved board.SquareSet) board.Frame {
	f := board.Frame{
		Tick:  tick,
		Cells: make(map[board.Square]board.Patch, board.NumSquares),
		Hints: make(map[board.Square]bool, board.NumSquares),
	}
	for sq := board.Square(0); sq < board.NumSquares; sq++ {
		p := make(board.Patch, cellPixels)
		for i := range p {
			p[i] = 120
			if moved.Has(sq) && i < cellPixels/2 {
				p[i] = 220
			}
		}
		f.Cells[sq] = p
		f.Hints[sq] = occupied.Has(sq)
	}
	return f
}

func newTestSession(t *testing.T, engine *Engine, frames FrameSource, remote RemoteStream, events Publisher, account string) *Session {
	log := zaptest.NewLogger(t).Sugar()
	return NewSession(
		SessionParams{PromotionTimeout: time.Second, AccountID: account},
		SessionDeps{
			Engine:     engine,
			Model:      detector.NewBackgroundModel(detector.DefaultParams()),
			Classifier: detector.NewChangeClassifier(),
			Presence:   detector.HintPresence{},
			Arbiter:    arbiter.New(arbiter.DefaultParams(), log),
			Frames:     frames,
			Remote:     remote,
			Promotion:  fixedPromotion(board.Queen),
			Events:     events,
		},
		log,
	)
}

func TestSessionCommitsObservedMove(t *testing.T) {
	peer := &fakePeer{}
	engine, events := newTestEngine(t, peer, board.White)
	frames := make(chanFrames)
	s := newTestSession(t, engine, frames, nil, events, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	start := engine.State().Occupancy
	e2, e4 := board.Square(12), board.Square(28)
	after := start.Minus(board.SetOf(e2)).Add(e4)

	go func() {
		frame := boardFrame(1, start, 0)
		for tick := uint64(1); ; tick++ {
			if tick > 1 {
				frame = boardFrame(tick, after, board.SetOf(e2, e4))
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		return engine.State().Ply() == 1
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"e2e4"}, engine.State().HistoryUCI())
	assert.Equal(t, []string{"e2e4"}, peer.Calls())
	assert.Contains(t, events.Types(), game.EventNoiseStateChanged)

	engine.End("test over")
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop after End")
	}
}

func TestSessionIgnoresTransientPattern(t *testing.T) {
	peer := &fakePeer{}
	engine, events := newTestEngine(t, peer, board.White)
	frames := make(chanFrames)
	s := newTestSession(t, engine, frames, nil, events, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	start := engine.State().Occupancy
	e2, e3, e4 := board.Square(12), board.Square(20), board.Square(28)
	passing := start.Minus(board.SetOf(e2)).Add(e3)
	after := start.Minus(board.SetOf(e2)).Add(e4)

	go func() {
		for tick := uint64(1); ; tick++ {
			var frame board.Frame
			switch tick {
			case 1:
				frame = boardFrame(tick, start, 0)
			case 2:
				// the pawn is glimpsed on e3 on its way to e4
				frame = boardFrame(tick, passing, board.SetOf(e2, e3))
			default:
				frame = boardFrame(tick, after, board.SetOf(e2, e4))
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		return engine.State().Ply() == 1
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"e2e4"}, engine.State().HistoryUCI())
	assert.Equal(t, []string{"e2e4"}, peer.Calls())

	engine.End("test over")
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop after End")
	}
}

func TestSessionAppliesRemoteStream(t *testing.T) {
	engine, events := newTestEngine(t, &fakePeer{}, board.NoColor)
	stream := &scriptedStream{events: []game.RemoteEvent{
		{Kind: game.RemoteGameFull, InitialFEN: game.StartFEN, WhiteID: "opponent", BlackID: "me", Status: "started"},
		{Kind: game.RemoteGameState, Moves: []string{"e2e4"}, Status: "started"},
		{Kind: game.RemoteGameEnded, Moves: []string{"e2e4"}, Status: "resign"},
	}}
	s := newTestSession(t, engine, make(chanFrames), stream, events, "me")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, board.Black, engine.LocalColor())
	assert.Equal(t, []string{"e2e4"}, engine.State().HistoryUCI())
	status := engine.Status()
	assert.True(t, status.Ended)
	assert.Equal(t, "resign", status.EndReason)
	assert.Contains(t, events.Types(), game.EventGameEnded)
}

func TestSessionResyncAfterHalt(t *testing.T) {
	engine, events := newTestEngine(t, &fakePeer{}, board.Black)
	s := newTestSession(t, engine, make(chanFrames), nil, events, "")

	s.remoteFEN = game.StartFEN
	s.remoteMoves = []string{"e2e4"}
	_, err := engine.ApplyRemote(move(t, "e2e5"))
	require.Error(t, err)
	require.True(t, engine.Status().Halted)

	require.NoError(t, s.Resync(context.Background()))
	assert.False(t, engine.Status().Halted)
	assert.Equal(t, []string{"e2e4"}, engine.State().HistoryUCI())
}

func TestRecorderRecord(t *testing.T) {
	engine, _ := newTestEngine(t, &fakePeer{}, board.White)
	_, err := engine.CommitLocal(context.Background(), move(t, "e2e4"))
	require.NoError(t, err)

	store := &memStore{}
	r := NewRecorder("s1", "g1", engine, store, nil, zaptest.NewLogger(t).Sugar())
	r.Handle(game.MoveCommitted(move(t, "e2e4"), 1, "", game.OriginLocal))
	r.Handle(game.NoiseStateChanged(board.StateIdle))
	r.Handle(game.GameEnded("mate", ""))

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, store.snapshots, 1)
	assert.Equal(t, []string{"e2e4"}, store.snapshots[0].Moves)
	assert.Equal(t, "white", store.snapshots[0].LocalColor)
	require.Len(t, store.archived, 1)
	assert.Equal(t, "mate", store.archived[0].Status)
	assert.NotNil(t, store.archived[0].EndedAt)
	assert.Equal(t, []string{"g1"}, store.deleted)
}

type memStore struct {
	snapshots []game.GameRecord
	archived  []game.GameRecord
	deleted   []string
}

func (m *memStore) SaveSnapshot(_ context.Context, rec game.GameRecord) error {
	m.snapshots = append(m.snapshots, rec)
	return nil
}

func (m *memStore) DeleteSnapshot(_ context.Context, gameID string) error {
	m.deleted = append(m.deleted, gameID)
	return nil
}

func (m *memStore) ArchiveGame(_ context.Context, rec game.GameRecord) error {
	m.archived = append(m.archived, rec)
	return nil
}
