package game

import (
	"context"

	"board_sync/internal/domain/board"
	"board_sync/internal/domain/game"
)

type Rules interface {
	Position(fen string) (game.Position, error)
	Apply(fen string, m board.Move) (game.Position, board.Move, error)
}

// Peer submits moves to the remote side. A refusal must wrap
// errors.ErrRemoteRejected; anything else counts as a transport failure.
type Peer interface {
	SubmitMove(ctx context.Context, m board.Move) error
}

type RemoteStream interface {
	Stream(ctx context.Context, fn func(game.RemoteEvent) error) error
}

type Publisher interface {
	Publish(ev game.Event)
}

type GameStore interface {
	SaveSnapshot(ctx context.Context, rec game.GameRecord) error
	DeleteSnapshot(ctx context.Context, gameID string) error
	ArchiveGame(ctx context.Context, rec game.GameRecord) error
}

type ScoresheetWriter interface {
	Enabled() bool
	Write(rec game.GameRecord) (string, error)
}

// FrameSource delivers rectified cell patches at the camera rate.
type FrameSource interface {
	Frames() <-chan board.Frame
}

// PromotionOracle returns the piece chosen for a pending promotion.
type PromotionOracle interface {
	ChoosePromotion(ctx context.Context, options []board.Move) (board.PieceKind, error)
}
