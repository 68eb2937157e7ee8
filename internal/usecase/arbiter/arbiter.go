package arbiter

import (
	"go.uber.org/zap"

	"board_sync/internal/domain/board"
)

type Params struct {
	// MaxMoveSquares is the most squares a legal move can touch; larger
	// change sets are noise.
	MaxMoveSquares int
	// NoiseFullCells full-intensity cells in one set look like a hand.
	NoiseFullCells int
	CooldownFrames int
	// StabilityFrames consecutive frames with the same squares and the
	// same presence are needed before a candidate is frozen.
	StabilityFrames int
}

func DefaultParams() Params {
	return Params{MaxMoveSquares: 4, NoiseFullCells: 2, CooldownFrames: 5, StabilityFrames: 12}
}

type Decision struct {
	Previous  board.ArbiterState
	State     board.ArbiterState
	Candidate *board.MoveCandidate
}

func (d Decision) Changed() bool { return d.Previous != d.State }

// Arbiter separates occlusion bursts from move candidates. It is driven
// by the sampling loop only and is not safe for concurrent use.
//
// MOVE_PENDING has two phases: the pattern first has to repeat for
// StabilityFrames frames, then the candidate is frozen until Complete.
type Arbiter struct {
	params Params
	log    *zap.SugaredLogger

	state  board.ArbiterState
	stable int
	// last and same track the run of identical non-noisy patterns.
	last      pattern
	same      int
	candidate *board.MoveCandidate
	// rejected is the last candidate that resolved to nothing; it is not
	// offered again until a different change set is seen.
	rejected *pattern
}

type pattern struct {
	squares board.SquareSet
	present board.SquareSet
}

func patternOf(cs board.ChangeSet) pattern {
	return pattern{squares: cs.Squares(), present: cs.Present()}
}

func New(params Params, log *zap.SugaredLogger) *Arbiter {
	if params.StabilityFrames < 1 {
		params.StabilityFrames = 1
	}
	return &Arbiter{params: params, log: log}
}

func (a *Arbiter) State() board.ArbiterState { return a.state }
func (a *Arbiter) StableFrames() int         { return a.stable }

// SameFrames is the length of the current run of identical patterns.
func (a *Arbiter) SameFrames() int { return a.same }

// Frozen reports whether a candidate has been handed out and awaits
// Complete.
func (a *Arbiter) Frozen() bool { return a.candidate != nil }

// IsNoise reports whether cs looks like a hand over the board rather
// than a move.
func (a *Arbiter) IsNoise(cs board.ChangeSet) bool {
	return cs.Len() > a.params.MaxMoveSquares || cs.FullCount() >= a.params.NoiseFullCells
}

func (a *Arbiter) coherent(cs board.ChangeSet) bool {
	return cs.Len() >= 2 && cs.Len() <= a.params.MaxMoveSquares
}

func (a *Arbiter) suppressed(p pattern) bool {
	return a.rejected != nil && p == *a.rejected
}

// Observe advances the state machine by one change set.
func (a *Arbiter) Observe(cs board.ChangeSet) Decision {
	d := Decision{Previous: a.state}
	if a.Frozen() {
		// frozen until Complete
		d.State = a.state
		return d
	}

	p := patternOf(cs)
	if a.rejected != nil && p != *a.rejected {
		a.rejected = nil
	}
	a.track(cs, p)

	switch a.state {
	case board.StateIdle:
		switch {
		case cs.Empty():
		case a.IsNoise(cs):
			a.enter(board.StateNoiseActive)
		case cs.Len() == 2:
			if !a.suppressed(p) {
				a.enter(board.StateMovePending)
			}
		default:
			a.enter(board.StateNoiseActive)
			a.stable = 1
		}

	case board.StateNoiseActive:
		if a.IsNoise(cs) {
			a.stable = 0
			break
		}
		a.stable++
		if a.stable >= a.params.CooldownFrames {
			if a.coherent(cs) && !a.suppressed(p) {
				a.enter(board.StateMovePending)
			} else {
				a.enter(board.StateIdle)
			}
		}

	case board.StateMovePending:
		switch {
		case a.IsNoise(cs):
			a.enter(board.StateNoiseActive)
		case cs.Empty():
			a.enter(board.StateIdle)
		}
	}

	if a.state == board.StateMovePending && a.same >= a.params.StabilityFrames && a.coherent(cs) {
		a.freeze(cs)
		c := *a.candidate
		d.Candidate = &c
	}
	d.State = a.state
	return d
}

// track extends or restarts the run of identical patterns. Empty and
// noisy sets never count.
func (a *Arbiter) track(cs board.ChangeSet, p pattern) {
	switch {
	case cs.Empty() || a.IsNoise(cs):
		a.last, a.same = pattern{}, 0
	case a.same > 0 && p == a.last:
		a.same++
	default:
		if a.same > 0 && a.state == board.StateMovePending {
			a.log.Debugw("pending pattern changed", "from", a.last.squares.String(), "to", p.squares.String())
		}
		a.last, a.same = p, 1
	}
}

func (a *Arbiter) freeze(cs board.ChangeSet) {
	c := board.CandidateFrom(cs)
	a.candidate = &c
	a.log.Infow("move candidate frozen", "squares", c.Squares.String(), "frames", a.same)
}

// Complete releases the frozen candidate. A rejected candidate's squares
// are suppressed until a different change set is seen.
func (a *Arbiter) Complete(accepted bool) {
	if !a.Frozen() {
		return
	}
	a.rejected = nil
	if !accepted {
		a.rejected = &pattern{squares: a.candidate.Squares, present: a.candidate.Present}
		a.log.Debugw("suppressing rejected pattern", "squares", a.candidate.Squares.String())
	}
	a.candidate = nil
	a.last, a.same = pattern{}, 0
	a.enter(board.StateIdle)
}

// Reset returns to IDLE and forgets any suppression.
func (a *Arbiter) Reset() {
	a.candidate = nil
	a.rejected = nil
	a.last, a.same = pattern{}, 0
	a.enter(board.StateIdle)
}

func (a *Arbiter) enter(s board.ArbiterState) {
	if s != a.state {
		a.log.Infow("arbiter state changed", "from", a.state.String(), "to", s.String())
	}
	a.state = s
	a.stable = 0
}
