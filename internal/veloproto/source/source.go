// Package source composes a packet source, a sensor-specific projector and
// a status feeder into a single pull-based point stream, then groups that
// stream into per-rotation turns.
package source

import (
	"net/netip"

	"github.com/cartograph-labs/velodecode/internal/veloproto/hdl32"
	"github.com/cartograph-labs/velodecode/internal/veloproto/hdl64"
	"github.com/cartograph-labs/velodecode/internal/veloproto/packet"
)

// FullPoint is the sensor-agnostic projected measurement PointSource hands
// to its caller. Both sensor families project into this same shape.
type FullPoint struct {
	X, Y, Z   float32
	LaserID   uint8
	Intensity uint8
	Timestamp uint32
}

// PacketSource supplies raw datagrams one at a time. NextPacket returns a
// nil packet with a nil error to signal the source is exhausted — a UDP
// read timeout or pcap end-of-file, never an error value.
type PacketSource interface {
	NextPacket() (netip.AddrPort, *packet.RawPacket, error)
}

// Projector turns one packet's raw points into FullPoints.
type Projector interface {
	Project(raw *packet.RawPacket, emit func(FullPoint)) (packet.Meta, error)
}

// StatusFeeder receives each packet's telemetry byte pair. The HDL-32 has
// no telemetry to reconstruct, so it uses a no-op feeder; the HDL-64 uses
// an hdl64.StatusListener.
type StatusFeeder interface {
	Feed(sb packet.StatusBytes)
}

type noopFeeder struct{}

func (noopFeeder) Feed(packet.StatusBytes) {}

type hdl32Adapter struct {
	p *hdl32.Projector
}

func (a hdl32Adapter) Project(raw *packet.RawPacket, emit func(FullPoint)) (packet.Meta, error) {
	return a.p.Project(raw, func(fp hdl32.FullPoint) {
		emit(FullPoint(fp))
	})
}

type hdl64Adapter struct {
	p *hdl64.Projector
}

func (a hdl64Adapter) Project(raw *packet.RawPacket, emit func(FullPoint)) (packet.Meta, error) {
	return a.p.Project(raw, func(fp hdl64.FullPoint) {
		emit(FullPoint(fp))
	})
}

// PointSource composes a PacketSource, a Projector and a StatusFeeder: one
// call pulls one packet, projects its surviving points through emit, and
// feeds its telemetry byte pair to the feeder.
type PointSource struct {
	src       PacketSource
	projector Projector
	feeder    StatusFeeder
}

// NewHDL32PointSource builds a PointSource for the 32-laser sensor, which
// carries no telemetry to accumulate.
func NewHDL32PointSource(src PacketSource) *PointSource {
	return &PointSource{
		src:       src,
		projector: hdl32Adapter{p: hdl32.NewProjector()},
		feeder:    noopFeeder{},
	}
}

// NewHDL64PointSource builds a PointSource for the 64-laser sensor.
// listener must already be initialised (see hdl64.NewStatusListener); its
// calibration table seeds the projector and it continues to receive every
// packet's telemetry byte pair.
func NewHDL64PointSource(src PacketSource, listener *hdl64.StatusListener, distLSB float32) *PointSource {
	db := listener.CalibDb(distLSB)
	return NewHDL64PointSourceWithCalib(src, listener, db)
}

// NewHDL64PointSourceWithCalib is like NewHDL64PointSource but seeds the
// projector from a caller-supplied calibration table instead of the one
// reconstructed from the sensor's own telemetry — for use with a vendor
// XML calibration file, which is more precise than the on-the-wire table.
// listener still receives every packet's telemetry byte pair so Status()
// stays current.
func NewHDL64PointSourceWithCalib(src PacketSource, listener *hdl64.StatusListener, db hdl64.CalibDb) *PointSource {
	return &PointSource{
		src:       src,
		projector: hdl64Adapter{p: hdl64.NewProjector(&db)},
		feeder:    listener,
	}
}

// ProcessPacket pulls one packet, projects it through emit, and feeds the
// accumulator. A nil Meta and nil error with no emit calls signals the
// underlying source is exhausted.
func (ps *PointSource) ProcessPacket(emit func(FullPoint)) (netip.AddrPort, *packet.Meta, error) {
	addr, raw, err := ps.src.NextPacket()
	if err != nil {
		return addr, nil, err
	}
	if raw == nil {
		return addr, nil, nil
	}
	meta, err := ps.projector.Project(raw, emit)
	if err != nil {
		return addr, nil, err
	}
	ps.feeder.Feed(meta.Status)
	return addr, &meta, nil
}
