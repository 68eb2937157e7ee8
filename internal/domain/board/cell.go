package board

import "sort"

// Patch is a rectified grayscale image region of one cell, row-major.
type Patch []float64

// Frame is one sampling tick delivered by the vision front end.
// Hints carries the optional piece-presence verdict per cell.
type Frame struct {
	Tick  uint64           `json:"tick"`
	Cells map[Square]Patch `json:"cells"`
	Hints map[Square]bool  `json:"hints,omitempty"`
}

type Intensity uint8

const (
	IntensityNone Intensity = iota
	IntensitySlight
	IntensityPartial
	IntensityFull
)

func (i Intensity) String() string {
	switch i {
	case IntensitySlight:
		return "slight"
	case IntensityPartial:
		return "partial"
	case IntensityFull:
		return "full"
	default:
		return "none"
	}
}

func (i Intensity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// CellReading is the background model verdict for one cell.
type CellReading struct {
	Square     Square    `json:"square"`
	PeakZ      float64   `json:"peak_z"`
	MeanZ      float64   `json:"mean_z"`
	PctChanged float64   `json:"pct_changed"`
	Intensity  Intensity `json:"intensity"`
}

type ChangeEntry struct {
	Square     Square    `json:"square"`
	PeakZ      float64   `json:"peak_z"`
	PctChanged float64   `json:"pct_changed"`
	Intensity  Intensity `json:"intensity"`
	Present    bool      `json:"present"`
}

// ChangeSet is the per-tick set of changed cells. It is never mutated
// after construction.
type ChangeSet struct {
	tick    uint64
	entries []ChangeEntry
	squares SquareSet
}

// NewChangeSet copies entries, ordering them by square. Duplicate
// squares keep the first entry.
func NewChangeSet(tick uint64, entries []ChangeEntry) ChangeSet {
	cs := ChangeSet{tick: tick, entries: make([]ChangeEntry, 0, len(entries))}
	for _, e := range entries {
		if !e.Square.Valid() || cs.squares.Has(e.Square) {
			continue
		}
		cs.squares = cs.squares.Add(e.Square)
		cs.entries = append(cs.entries, e)
	}
	sort.Slice(cs.entries, func(i, j int) bool {
		return cs.entries[i].Square < cs.entries[j].Square
	})
	return cs
}

func (c ChangeSet) Tick() uint64       { return c.tick }
func (c ChangeSet) Len() int           { return len(c.entries) }
func (c ChangeSet) Empty() bool        { return len(c.entries) == 0 }
func (c ChangeSet) Squares() SquareSet { return c.squares }

func (c ChangeSet) Entries() []ChangeEntry {
	out := make([]ChangeEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c ChangeSet) Entry(sq Square) (ChangeEntry, bool) {
	for _, e := range c.entries {
		if e.Square == sq {
			return e, true
		}
	}
	return ChangeEntry{}, false
}

func (c ChangeSet) FullCount() int {
	n := 0
	for _, e := range c.entries {
		if e.Intensity == IntensityFull {
			n++
		}
	}
	return n
}

// Present returns the changed squares on which a piece is currently seen.
func (c ChangeSet) Present() SquareSet {
	var set SquareSet
	for _, e := range c.entries {
		if e.Present {
			set = set.Add(e.Square)
		}
	}
	return set
}
