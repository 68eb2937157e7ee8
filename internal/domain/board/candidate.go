package board

// MoveCandidate is a stabilized set of changed squares handed from the
// arbiter to the resolver.
type MoveCandidate struct {
	Squares SquareSet `json:"squares"`
	// Present marks candidate squares on which a piece is currently seen.
	Present SquareSet `json:"present"`
	Tick    uint64    `json:"tick"`
}

func CandidateFrom(cs ChangeSet) MoveCandidate {
	return MoveCandidate{Squares: cs.Squares(), Present: cs.Present(), Tick: cs.Tick()}
}

type PatternKind uint8

const (
	PatternUnknown PatternKind = iota
	PatternSettled
	PatternOrdinary
	PatternCapture
	PatternCastling
	PatternEnPassant
)

func (k PatternKind) String() string {
	switch k {
	case PatternSettled:
		return "settled"
	case PatternOrdinary:
		return "ordinary"
	case PatternCapture:
		return "capture"
	case PatternCastling:
		return "castling"
	case PatternEnPassant:
		return "en_passant"
	default:
		return "unknown"
	}
}

// Signature is the occupancy difference between the expected board and
// the observed one, restricted to candidate squares.
type Signature struct {
	Vacated  SquareSet
	Occupied SquareSet
}

// SignatureOf compares observed presence against expected occupancy on
// the candidate squares.
func SignatureOf(c MoveCandidate, expected SquareSet) Signature {
	occupiedBefore := c.Squares.Intersect(expected)
	occupiedNow := c.Squares.Intersect(c.Present)
	return Signature{
		Vacated:  occupiedBefore.Minus(occupiedNow),
		Occupied: occupiedNow.Minus(occupiedBefore),
	}
}

func (s Signature) Kind() PatternKind {
	switch [2]int{s.Vacated.Len(), s.Occupied.Len()} {
	case [2]int{0, 0}:
		return PatternSettled
	case [2]int{1, 1}:
		return PatternOrdinary
	case [2]int{1, 0}:
		return PatternCapture
	case [2]int{2, 2}:
		return PatternCastling
	case [2]int{2, 1}:
		return PatternEnPassant
	default:
		return PatternUnknown
	}
}

// Matches reports whether m produces exactly this signature.
func (s Signature) Matches(m Move) bool {
	return m.Vacates() == s.Vacated && m.Occupies() == s.Occupied
}
