package detector

import (
	"gonum.org/v1/gonum/stat"

	"board_sync/internal/domain/board"
)

type PresenceOracle interface {
	PiecePresent(frame board.Frame, sq board.Square) bool
}

// HintPresence trusts the presence hints shipped with the frame and asks
// Fallback for cells without one.
type HintPresence struct {
	Fallback PresenceOracle
}

func (h HintPresence) PiecePresent(frame board.Frame, sq board.Square) bool {
	if present, ok := frame.Hints[sq]; ok {
		return present
	}
	if h.Fallback != nil {
		return h.Fallback.PiecePresent(frame, sq)
	}
	return false
}

// ContrastPresence treats a high-contrast patch as a piece on an
// otherwise flat square.
type ContrastPresence struct {
	MinStdDev float64
}

func (c ContrastPresence) PiecePresent(frame board.Frame, sq board.Square) bool {
	patch, ok := frame.Cells[sq]
	if !ok || len(patch) < 2 {
		return false
	}
	return stat.StdDev(patch, nil) > c.MinStdDev
}
