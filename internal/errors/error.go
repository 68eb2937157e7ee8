package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUncalibratedModel = errors.New("background model is not calibrated")

	ErrNoMatch          = errors.New("change pattern matches no legal move")
	ErrAmbiguousPattern = fmt.Errorf("%w: pattern matches more than one legal move", ErrNoMatch)

	ErrTurnViolation = errors.New("not the local side's turn")
	ErrTurnLockBusy  = fmt.Errorf("%w: another state mutation is in flight", ErrTurnViolation)

	ErrRemoteRejected    = errors.New("remote peer rejected move")
	ErrTransportFailure  = errors.New("remote transport failure")
	ErrIllegalRemoteMove = errors.New("remote move is illegal in canonical state")
	ErrSyncHalted        = errors.New("synchronization halted, reset required")
	ErrSessionEnded      = errors.New("session ended")

	ErrPromotionUnavailable = errors.New("promotion piece is not available for this move")
	ErrInvalidMove          = errors.New("invalid move")
	ErrGameNotFound         = errors.New("game not found")
	ErrInternal             = errors.New("internal error")
)
