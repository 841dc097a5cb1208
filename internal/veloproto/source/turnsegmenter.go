package source

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// fullRotation is the azimuth modulus: hundredths of a degree per turn.
const fullRotation = 36000

// statsWindow bounds how many recent turn lengths TurnSegmenter keeps for
// Stats; it is a diagnostic, not a buffer of point data.
const statsWindow = 64

// Turn is one completed sensor rotation: every point projected since the
// previous crossing, plus a snapshot of whatever status the caller's
// PointSource tracks (hdl64.Status for the 64-laser sensor, or any
// placeholder type for the 32-laser one, which has none).
type Turn[S any] struct {
	Points []FullPoint
	Status S
}

// TurnSegmenter wraps a PointSource, accumulating points until the packet
// azimuth crosses a configured split line, then yields the accumulated
// turn. It is parameterised over the caller's status snapshot type so it
// works identically for both sensor families.
type TurnSegmenter[S any] struct {
	ps             *PointSource
	statusSnapshot func() S

	splitAzimuth uint16
	buf          []FullPoint
	bufCap       int
	prevAzimuth  uint16
	haveAzimuth  bool

	lengths []float64
	lenPos  int
}

// NewTurnSegmenter builds a segmenter over ps, cutting turns at
// splitAzimuth (hundredths of a degree, normalised modulo 36000).
// statusSnapshot is called once per completed turn to capture the status
// to attach to it.
func NewTurnSegmenter[S any](ps *PointSource, splitAzimuth uint16, statusSnapshot func() S) *TurnSegmenter[S] {
	return &TurnSegmenter[S]{
		ps:             ps,
		statusSnapshot: statusSnapshot,
		splitAzimuth:   splitAzimuth % fullRotation,
		bufCap:         384,
	}
}

// SetSplitAzimuth changes the crossing line. Setting the same value twice
// is a no-op; the value is normalised modulo 36000 either way.
func (t *TurnSegmenter[S]) SetSplitAzimuth(v uint16) {
	t.splitAzimuth = v % fullRotation
}

// NextTurn drains packets from the underlying PointSource until an azimuth
// crossing completes a turn, returning it. The second return is false when
// the underlying packet source is exhausted before a turn completes.
func (t *TurnSegmenter[S]) NextTurn() (Turn[S], bool, error) {
	for {
		_, meta, err := t.ps.ProcessPacket(func(fp FullPoint) {
			t.buf = append(t.buf, fp)
		})
		if err != nil {
			return Turn[S]{}, false, err
		}
		if meta == nil {
			return Turn[S]{}, false, nil
		}

		azimuth := meta.Azimuth
		crossed := false
		if t.haveAzimuth {
			if t.prevAzimuth > azimuth {
				crossed = !(t.prevAzimuth >= t.splitAzimuth && t.splitAzimuth > azimuth)
			} else {
				crossed = azimuth >= t.splitAzimuth && t.splitAzimuth > t.prevAzimuth
			}
		}
		t.prevAzimuth = azimuth
		t.haveAzimuth = true

		if crossed {
			pts := t.buf
			t.recordLength(len(pts))
			if grown := (11 * len(pts)) / 10; grown > t.bufCap {
				t.bufCap = grown
			}
			t.buf = make([]FullPoint, 0, t.bufCap)
			return Turn[S]{Points: pts, Status: t.statusSnapshot()}, true, nil
		}
	}
}

func (t *TurnSegmenter[S]) recordLength(n int) {
	v := float64(n)
	if len(t.lengths) < statsWindow {
		t.lengths = append(t.lengths, v)
		return
	}
	t.lengths[t.lenPos] = v
	t.lenPos = (t.lenPos + 1) % statsWindow
}

// Stats reports the mean, median and 95th percentile point count across
// the last statsWindow completed turns. It holds no point data itself —
// only their counts — so it carries nothing the "no point storage" scope
// excludes.
func (t *TurnSegmenter[S]) Stats() (mean, p50, p95 float64) {
	if len(t.lengths) == 0 {
		return 0, 0, 0
	}
	sorted := append([]float64(nil), t.lengths...)
	sort.Float64s(sorted)
	mean = stat.Mean(sorted, nil)
	p50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return mean, p50, p95
}
