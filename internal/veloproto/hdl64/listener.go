package hdl64

import "github.com/cartograph-labs/velodecode/internal/veloproto/packet"

// StatusListener owns the live Status and CalibDb alongside the
// accumulator that rebuilds them, so callers never have to thread the
// mutable status/calibration state through themselves.
type StatusListener struct {
	status  Status
	calibDb CalibDb
	accum   *StatusAccumulator
}

// NewStatusListener blocks, pulling packets from src, until the
// accumulator completes a full calibration cycle. src returns a nil
// packet with a nil error to signal source exhaustion, matching
// packet-source convention elsewhere in this module.
func NewStatusListener(src func() (*packet.RawPacket, error)) (*StatusListener, error) {
	accum := NewStatusAccumulator()
	status, calibDb, err := accum.Init(src)
	if err != nil {
		return nil, err
	}
	return &StatusListener{status: status, calibDb: calibDb, accum: accum}, nil
}

// Feed advances the accumulator with one packet's telemetry byte pair.
func (l *StatusListener) Feed(sb packet.StatusBytes) {
	l.accum.Feed(sb, &l.status, &l.calibDb)
}

// Status returns the current reconstructed telemetry record.
func (l *StatusListener) Status() Status {
	return l.status
}

// CalibDb returns a copy of the calibration table stored in the sensor,
// with DistLSB overridden to distLSB — the on-the-wire table carries no
// distance scale of its own, so callers must supply one (0.2 is the
// factory default for the HDL-64).
func (l *StatusListener) CalibDb(distLSB float32) CalibDb {
	db := l.calibDb
	db.DistLSB = distLSB
	return db
}
