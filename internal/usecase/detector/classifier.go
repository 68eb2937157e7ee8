package detector

import "board_sync/internal/domain/board"

// ChangeClassifier projects background readings onto a ChangeSet.
type ChangeClassifier struct {
	min board.Intensity
}

func NewChangeClassifier() *ChangeClassifier {
	return &ChangeClassifier{min: board.IntensityPartial}
}

// Build keeps readings of partial or full intensity and asks presence
// whether a piece is seen on each kept cell.
func (c *ChangeClassifier) Build(frame board.Frame, readings []board.CellReading, presence PresenceOracle) board.ChangeSet {
	entries := make([]board.ChangeEntry, 0, len(readings))
	for _, r := range readings {
		if r.Intensity < c.min {
			continue
		}
		entries = append(entries, board.ChangeEntry{
			Square:     r.Square,
			PeakZ:      r.PeakZ,
			PctChanged: r.PctChanged,
			Intensity:  r.Intensity,
			Present:    presence != nil && presence.PiecePresent(frame, r.Square),
		})
	}
	return board.NewChangeSet(frame.Tick, entries)
}
