package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"board_sync/internal/domain/board"
	errs "board_sync/internal/errors"
)

var ErrNoPendingPromotion = errors.New("no promotion is pending")

// PromotionPrompt turns the overlay's POST /promotion into the answer of
// the session's blocking promotion choice.
type PromotionPrompt struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	options []board.Move
	answer  chan board.PieceKind
}

func NewPromotionPrompt(log *zap.SugaredLogger) *PromotionPrompt {
	return &PromotionPrompt{log: log}
}

func (p *PromotionPrompt) ChoosePromotion(ctx context.Context, options []board.Move) (board.PieceKind, error) {
	answer := make(chan board.PieceKind, 1)

	p.mu.Lock()
	p.options = options
	p.answer = answer
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.answer == answer {
			p.options, p.answer = nil, nil
		}
		p.mu.Unlock()
	}()

	p.log.Infow("waiting for promotion choice", "options", len(options))
	select {
	case piece := <-answer:
		return piece, nil
	case <-ctx.Done():
		return board.NoPiece, fmt.Errorf("promotion choice: %w", ctx.Err())
	}
}

// Pending lists the promotion moves awaiting a choice.
func (p *PromotionPrompt) Pending() []board.Move {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]board.Move(nil), p.options...)
}

func (p *PromotionPrompt) Answer(piece board.PieceKind) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.answer == nil {
		return ErrNoPendingPromotion
	}
	offered := false
	for _, m := range p.options {
		if m.Promotion == piece {
			offered = true
			break
		}
	}
	if !offered {
		return fmt.Errorf("%w: %s", errs.ErrPromotionUnavailable, piece)
	}

	select {
	case p.answer <- piece:
	default:
		return ErrNoPendingPromotion
	}
	p.options, p.answer = nil, nil
	p.log.Infow("promotion chosen", "piece", piece.String())
	return nil
}
