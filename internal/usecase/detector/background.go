package detector

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"board_sync/internal/domain/board"
	errs "board_sync/internal/errors"
)

// Params tunes the background model. Percentages are 0..100.
type Params struct {
	Alpha           float64
	InitialVariance float64
	MinVariance     float64
	ZThreshold      float64
	FullPct         float64
	PartialPct      float64
	SlightPct       float64
}

func DefaultParams() Params {
	return Params{
		Alpha:           0.15,
		InitialVariance: 400,
		MinVariance:     1.0,
		ZThreshold:      2.5,
		FullPct:         75,
		PartialPct:      15,
		SlightPct:       5,
	}
}

func (p Params) intensity(pct float64) board.Intensity {
	switch {
	case pct > p.FullPct:
		return board.IntensityFull
	case pct > p.PartialPct:
		return board.IntensityPartial
	case pct > p.SlightPct:
		return board.IntensitySlight
	default:
		return board.IntensityNone
	}
}

type cellModel struct {
	mean     []float64
	variance []float64
}

// BackgroundModel keeps a per-cell mean and variance image. It is owned by
// the sampling loop and is not safe for concurrent use.
type BackgroundModel struct {
	params Params
	cells  map[board.Square]*cellModel
}

func NewBackgroundModel(params Params) *BackgroundModel {
	return &BackgroundModel{params: params}
}

func (m *BackgroundModel) Calibrated() bool { return len(m.cells) > 0 }

// Calibrate replaces the whole model with the frame: mean = sample,
// variance = initial variance.
func (m *BackgroundModel) Calibrate(frame board.Frame) error {
	cells := make(map[board.Square]*cellModel, len(frame.Cells))
	for sq, patch := range frame.Cells {
		if !sq.Valid() || len(patch) == 0 {
			continue
		}
		cells[sq] = m.reference(patch)
	}
	if len(cells) == 0 {
		return fmt.Errorf("calibration frame %d has no cells", frame.Tick)
	}
	m.cells = cells
	return nil
}

func (m *BackgroundModel) reference(patch board.Patch) *cellModel {
	c := &cellModel{
		mean:     make([]float64, len(patch)),
		variance: make([]float64, len(patch)),
	}
	copy(c.mean, patch)
	for i := range c.variance {
		c.variance[i] = m.params.InitialVariance
	}
	return c
}

// Update smooths every calibrated cell in the frame except those in skip.
func (m *BackgroundModel) Update(frame board.Frame, skip board.SquareSet) {
	a := m.params.Alpha
	for sq, c := range m.cells {
		if skip.Has(sq) {
			continue
		}
		sample, ok := frame.Cells[sq]
		if !ok || len(sample) != len(c.mean) {
			continue
		}

		floats.Scale(1-a, c.mean)
		floats.AddScaled(c.mean, a, sample)

		diff := make([]float64, len(sample))
		floats.SubTo(diff, sample, c.mean)
		floats.Mul(diff, diff)

		floats.Scale(1-a, c.variance)
		floats.AddScaled(c.variance, a, diff)
		for i, v := range c.variance {
			if v < m.params.MinVariance {
				c.variance[i] = m.params.MinVariance
			}
		}
	}
}

// Rebase re-references the given squares on the frame, used once the
// canonical position has settled on them.
func (m *BackgroundModel) Rebase(squares board.SquareSet, frame board.Frame) {
	if !m.Calibrated() {
		return
	}
	for _, sq := range squares.Squares() {
		if patch, ok := frame.Cells[sq]; ok && len(patch) > 0 {
			m.cells[sq] = m.reference(patch)
		}
	}
}

// Classify scores every calibrated cell and returns readings of at least
// slight intensity, ordered by square.
func (m *BackgroundModel) Classify(frame board.Frame) ([]board.CellReading, error) {
	if !m.Calibrated() {
		return nil, errs.ErrUncalibratedModel
	}

	readings := make([]board.CellReading, 0, 8)
	for sq, c := range m.cells {
		sample, ok := frame.Cells[sq]
		if !ok || len(sample) != len(c.mean) {
			continue
		}

		z := make([]float64, len(sample))
		floats.SubTo(z, sample, c.mean)
		changed := 0
		for i := range z {
			z[i] = math.Abs(z[i]) / math.Sqrt(c.variance[i])
			if z[i] > m.params.ZThreshold {
				changed++
			}
		}

		pct := 100 * float64(changed) / float64(len(z))
		intensity := m.params.intensity(pct)
		if intensity == board.IntensityNone {
			continue
		}
		readings = append(readings, board.CellReading{
			Square:     sq,
			PeakZ:      floats.Max(z),
			MeanZ:      stat.Mean(z, nil),
			PctChanged: pct,
			Intensity:  intensity,
		})
	}

	sort.Slice(readings, func(i, j int) bool {
		return readings[i].Square < readings[j].Square
	})
	return readings, nil
}

// Stats returns copies of the reference images of sq.
func (m *BackgroundModel) Stats(sq board.Square) (mean, variance []float64, ok bool) {
	c, ok := m.cells[sq]
	if !ok {
		return nil, nil, false
	}
	return append([]float64(nil), c.mean...), append([]float64(nil), c.variance...), true
}

// Clear drops the reference so the next frame can recalibrate.
func (m *BackgroundModel) Clear() {
	m.cells = nil
}
