package hdl64

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cartograph-labs/velodecode/internal/veloproto/packet"
)

// initTimeout bounds how long Init will wait for a full calibration cycle.
const initTimeout = 5 * time.Second

// ErrInitTimeout is returned by Init when the mini-cycle/cycle state
// machines fail to complete a full pass within initTimeout.
var ErrInitTimeout = errors.New("hdl64: accumulator did not initialise in time")

// ErrSourceExhausted is returned by Init when the packet source it is
// reading from runs out before initialisation completes.
var ErrSourceExhausted = errors.New("hdl64: packet source exhausted during initialisation")

// cycleKind identifies which phase of the higher-level calibration cycle
// the accumulator is in. The mini-cycle position and this state together
// form the two nested state machines called for in the accumulator design.
type cycleKind int

const (
	cycleFirst cycleKind = iota
	cycleLasers
	cycleCalibDT
	cycleSensorState
)

type cycleState struct {
	kind  cycleKind
	laser int // valid when kind == cycleLasers
	part  int // valid when kind in {cycleLasers, cycleSensorState}
}

// StatusAccumulator reconstructs Status and CalibDb from the one
// telemetry byte pair attached to each HDL-64 datagram. It runs two nested
// state machines: a 16-position mini-cycle position counter, and a
// higher-level cycleState across mini-cycles.
type StatusAccumulator struct {
	initialised bool

	dt         [6]byte
	gpsVal     byte
	tempVal    byte
	versionVal byte

	cyclePos    int
	cycleIDs    [7]byte
	cycleValues [7]byte
	cycleState  cycleState

	lasers      [64][21]byte
	sensorState [21]byte
}

// NewStatusAccumulator returns an accumulator ready to consume telemetry
// byte pairs from a fresh packet stream.
func NewStatusAccumulator() *StatusAccumulator {
	return &StatusAccumulator{}
}

// Initialised reports whether a full calibration cycle has ever completed.
func (a *StatusAccumulator) Initialised() bool {
	return a.initialised
}

// Init blocks, pulling packets from src and feeding their status bytes,
// until one full calibration cycle completes. It returns the reconstructed
// Status and CalibDb, or ErrInitTimeout / ErrSourceExhausted.
func (a *StatusAccumulator) Init(src func() (*packet.RawPacket, error)) (Status, CalibDb, error) {
	status := defaultStatus()
	db := CalibDb{}

	deadline := time.Now().Add(initTimeout)
	for {
		if time.Now().After(deadline) {
			return status, db, ErrInitTimeout
		}
		raw, err := src()
		if err != nil {
			return status, db, fmt.Errorf("hdl64: reading packet during init: %w", err)
		}
		if raw == nil {
			return status, db, ErrSourceExhausted
		}
		a.Feed(raw.Status(), &status, &db)
		if a.initialised {
			return status, db, nil
		}
	}
}

// Feed consumes one packet's telemetry byte pair, advancing the mini-cycle
// and, every 16 packets, the higher-level cycle state machine. It never
// fails: malformed input causes a logged soft-reset, never a panic or an
// unwind of `initialised` back to false.
func (a *StatusAccumulator) Feed(sb packet.StatusBytes, status *Status, db *CalibDb) {
	inOrder := true
	switch sb.ID {
	case 'H':
		a.dt[3] = sb.Value
		inOrder = a.cyclePos == 0
	case 'M':
		a.dt[4] = sb.Value
		inOrder = a.cyclePos == 1
	case 'S':
		a.dt[5] = sb.Value
		inOrder = a.cyclePos == 2
	case 'D':
		a.dt[2] = sb.Value
		inOrder = a.cyclePos == 3
	case 'N':
		a.dt[1] = sb.Value
		inOrder = a.cyclePos == 4
	case 'Y':
		a.dt[0] = sb.Value
		inOrder = a.cyclePos == 5
	case 'G':
		a.gpsVal = sb.Value
		inOrder = a.cyclePos == 6
	case 'T':
		a.tempVal = sb.Value
		inOrder = a.cyclePos == 7
	case 'V':
		a.versionVal = sb.Value
		inOrder = a.cyclePos == 8
	default:
		inOrder = a.cyclePos > 8 && a.cyclePos < 16
	}

	if !inOrder {
		a.logReset("wrong mini-cycle position, resetting")
		a.cyclePos = 0
		return
	}

	if a.cyclePos == 8 {
		if err := a.updateStatus(status); err != nil {
			a.warn(err.Error())
			a.cycleState = cycleState{kind: cycleFirst}
		}
	}

	if a.cyclePos <= 8 {
		a.cyclePos++
		return
	}

	a.cycleIDs[a.cyclePos-9] = sb.ID
	a.cycleValues[a.cyclePos-9] = sb.Value

	if a.cyclePos == 15 {
		ok, err := a.consumeCycle(status, db)
		if err != nil {
			a.warn(err.Error())
			a.cycleState = cycleState{kind: cycleFirst}
		} else if !ok {
			a.logReset("wrong cycle state, resetting")
			a.cycleState = cycleState{kind: cycleFirst}
		}
		a.cyclePos = 0
	} else {
		a.cyclePos++
	}
}

func (a *StatusAccumulator) logReset(msg string) {
	if a.initialised {
		log.Printf("[warn] hdl64 accumulator: %s", msg)
	} else {
		log.Printf("[debug] hdl64 accumulator: %s", msg)
	}
}

func (a *StatusAccumulator) warn(msg string) {
	a.logReset(msg)
}

func (a *StatusAccumulator) updateStatus(status *Status) error {
	dt, err := buildDT(a.dt[0], a.dt[1], a.dt[2], a.dt[3], a.dt[4], a.dt[5])
	if err != nil {
		return err
	}
	status.DT = dt

	switch a.gpsVal {
	case 0x41:
		status.GPS = GpsSyncNmea
	case 0x56:
		status.GPS = GpsNmeaOnly
	case 0x50:
		status.GPS = GpsSyncOnly
	case 0x00:
		status.GPS = GpsNotConnected
	default:
		return fmt.Errorf("hdl64: unknown GPS status code 0x%02x", a.gpsVal)
	}
	status.Temperature = a.tempVal
	status.Version = a.versionVal
	return nil
}

// consumeCycle advances the higher-level state machine using the 7
// id/value pairs accumulated over mini-cycle positions 9..15. A false
// return means the ids/values didn't match what the current state
// expects and the caller must reset to cycleFirst; an error means the
// payload was structurally valid but semantically bad (e.g. a bad date).
func (a *StatusAccumulator) consumeCycle(status *Status, db *CalibDb) (bool, error) {
	ids := a.cycleIDs
	vals := a.cycleValues

	switch a.cycleState.kind {
	case cycleFirst:
		if !(ids[0] == '1' && ids[1] == '2' && ids[2] == '3' && ids[3] == '4' &&
			ids[4] == '5' && ids[5] == 0xf7 && ids[6] == 0xf6) {
			return false, nil
		}
		if !(vals[0] == 'U' && vals[1] == 'N' && vals[2] == 'I' && vals[3] == 'T' && vals[4] == '#') {
			return false, nil
		}
		status.UpperThreshold = vals[5]
		status.LowerThreshold = vals[6]
		a.cycleState = cycleState{kind: cycleLasers, laser: 0, part: 0}
		return true, nil

	case cycleLasers:
		laser, part := a.cycleState.laser, a.cycleState.part
		switch part {
		case 0, 1, 2:
			if ids != sequentialIDs {
				return false, nil
			}
			if part == 0 && vals[0] != byte(laser) {
				return false, nil
			}
			if !a.initialised {
				copy(a.lasers[laser][7*part:7*part+7], vals[:])
			}
			if laser == 63 && part == 2 {
				a.cycleState = cycleState{kind: cycleCalibDT}
			} else {
				a.cycleState = cycleState{kind: cycleLasers, laser: laser, part: part + 1}
			}
			return true, nil
		case 3:
			if ids != warningIDs {
				return false, nil
			}
			a.processWarning(vals[0], status)
			a.cycleState = cycleState{kind: cycleLasers, laser: laser + 1, part: 0}
			return true, nil
		default:
			return false, fmt.Errorf("hdl64: unreachable laser cycle part %d", part)
		}

	case cycleCalibDT:
		if ids != sequentialIDs {
			return false, nil
		}
		dt, err := buildDT(vals[0], vals[1], vals[2], vals[3], vals[4], vals[5])
		if err != nil {
			return false, err
		}
		status.CalibDT = dt
		status.Humidity = vals[6]
		a.cycleState = cycleState{kind: cycleSensorState, part: 0}
		return true, nil

	case cycleSensorState:
		part := a.cycleState.part
		switch part {
		case 0:
			if ids != sensorStatePart0IDs {
				return false, nil
			}
			copy(a.sensorState[0:7], vals[:])
			a.cycleState = cycleState{kind: cycleSensorState, part: 1}
			return true, nil
		case 1:
			if ids != sequentialIDs {
				return false, nil
			}
			copy(a.sensorState[7:14], vals[:])
			a.cycleState = cycleState{kind: cycleSensorState, part: 2}
			return true, nil
		case 2:
			if ids != sensorStatePart2IDs {
				return false, nil
			}
			copy(a.sensorState[14:21], vals[:])
			if err := a.processFullCycle(status, db); err != nil {
				return false, err
			}
			a.cycleState = cycleState{kind: cycleFirst}
			return true, nil
		default:
			return false, fmt.Errorf("hdl64: unreachable sensor state part %d", part)
		}
	}
	return false, fmt.Errorf("hdl64: unreachable cycle state")
}

var (
	sequentialIDs       = [7]byte{'1', '2', '3', '4', '5', '6', '7'}
	warningIDs          = [7]byte{'W', '2', '3', '4', '5', '6', '7'}
	sensorStatePart0IDs = [7]byte{0xfe, 0xff, 0xfc, 0xfd, 0xfa, 0xfb, 0x37}
	sensorStatePart2IDs = [7]byte{0x31, 0x32, 0xf9, 0x34, 0xf8, 0x36, 0x37}
)

// processWarning decodes the health-flag byte using the active bit mapping:
// lens contamination is bit 0, hot is bit 1, cold is bit 2, PPS presence is
// bit 5 and GPS time sync is bit 6.
func (a *StatusAccumulator) processWarning(b byte, status *Status) {
	status.LensContamination = b&0b0000_0001 != 0
	status.Hot = b&0b0000_0010 != 0
	status.Cold = b&0b0000_0100 != 0
	status.PPS = b&0b0010_0000 != 0
	status.GPSTime = b&0b0100_0000 != 0
}

func (a *StatusAccumulator) processFullCycle(status *Status, db *CalibDb) error {
	if !a.initialised {
		log.Printf("[info] hdl64 accumulator: initialisation complete")
		a.initialised = true
	}

	d := a.sensorState
	status.RPM = binary.LittleEndian.Uint16(d[0:2])
	status.FOVStart = binary.LittleEndian.Uint16(d[2:4])
	status.FOVEnd = binary.LittleEndian.Uint16(d[4:6])
	status.RealLifeTime = binary.LittleEndian.Uint16(d[6:8])
	copy(status.IPSource[:], d[8:12])
	copy(status.IPDest[:], d[12:16])

	switch d[16] {
	case 0:
		status.ReturnType = ReturnStrongest
	case 1:
		status.ReturnType = ReturnLast
	case 2:
		status.ReturnType = ReturnBoth
	default:
		return fmt.Errorf("hdl64: invalid return type byte 0x%02x", d[16])
	}

	switch v := d[18]; {
	case v == 0xA8:
		status.PowerLevel = PowerLevel{Kind: PowerAutoNormalized}
	case v == 0xA0:
		status.PowerLevel = PowerLevel{Kind: PowerAutoRaw}
	case v&0x0f == 8 && (v&0xf0)>>4 < 8:
		status.PowerLevel = PowerLevel{Kind: PowerManual, Value: (v & 0xf0) >> 4}
	default:
		return fmt.Errorf("hdl64: invalid power level byte 0x%02x", v)
	}

	a.decodeCalibDb(db)
	return nil
}

func (a *StatusAccumulator) decodeCalibDb(db *CalibDb) {
	for i, data := range a.lasers {
		if int(data[0]) != i {
			log.Printf("[warn] hdl64 accumulator: laser calibration index mismatch: want %d got %d", i, data[0])
			continue
		}
		dst := &db.Lasers[i]

		vertCorr := float32(int16(binary.LittleEndian.Uint16(data[1:3]))) / 100
		rotCorr := float32(int16(binary.LittleEndian.Uint16(data[3:5]))) / 100
		dst.VertCorrSin, dst.VertCorrCos = sincos(vertCorr)
		dst.RotCorrSin, dst.RotCorrCos = sincos(rotCorr)

		dst.DistCorrection = float32(int16(binary.LittleEndian.Uint16(data[5:7]))) / 10
		dst.DistCorrX = float32(int16(binary.LittleEndian.Uint16(data[7:9]))) / 10
		dst.DistCorrY = float32(int16(binary.LittleEndian.Uint16(data[9:11]))) / 10
		dst.VertOffset = float32(int16(binary.LittleEndian.Uint16(data[11:13]))) / 10
		dst.HorizOffset = float32(int16(binary.LittleEndian.Uint16(data[13:15]))) / 10
		dst.FocalDist = float32(int16(binary.LittleEndian.Uint16(data[15:17]))) / 10
		dst.FocalSlope = float32(int16(binary.LittleEndian.Uint16(data[17:19]))) / 10

		dst.MinIntensity = data[19]
		dst.MaxIntensity = data[20]
	}
}

func buildDT(year, month, day, h, m, s byte) (time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("hdl64: invalid month %d", month)
	}
	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("hdl64: invalid day %d", day)
	}
	if h >= 24 || m >= 60 || s >= 60 {
		return time.Time{}, fmt.Errorf("hdl64: invalid time %02d:%02d:%02d", h, m, s)
	}
	dt := time.Date(2000+int(year), time.Month(month), int(day), int(h), int(m), int(s), 0, time.UTC)
	if dt.Day() != int(day) || dt.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("hdl64: invalid date %04d-%02d-%02d", 2000+int(year), month, day)
	}
	return dt, nil
}
