// Package hdl64 implements the 64-laser sensor family: its telemetry and
// embedded-calibration accumulator, and its projection math, which is
// considerably more involved than the 32-laser sensor's fixed table.
package hdl64

import "time"

// GpsStatus describes the sensor's connection to an external GPS unit.
type GpsStatus int

const (
	GpsNotConnected GpsStatus = iota
	GpsSyncNmea
	GpsNmeaOnly
	GpsSyncOnly
)

// ReturnType identifies which of the sensor's dual returns are reported.
type ReturnType int

const (
	ReturnStrongest ReturnType = iota
	ReturnLast
	ReturnBoth
)

// PowerLevelKind discriminates the laser power level reporting mode.
type PowerLevelKind int

const (
	PowerAutoNormalized PowerLevelKind = iota
	PowerAutoRaw
	PowerManual
)

// PowerLevel is the sensor's laser power level. Value is meaningful only
// when Kind is PowerManual, and ranges 0..7.
type PowerLevel struct {
	Kind  PowerLevelKind
	Value uint8
}

// Status is the HDL-64's reconstructed telemetry record, rebuilt a byte at
// a time by the StatusAccumulator over roughly 4160 packets.
type Status struct {
	DT          time.Time
	GPS         GpsStatus
	Temperature uint8
	Version     uint8

	LensContamination bool
	Hot               bool
	Cold              bool
	PPS               bool
	GPSTime           bool

	RPM          uint16
	FOVStart     uint16
	FOVEnd       uint16
	RealLifeTime uint16
	IPSource     [4]byte
	IPDest       [4]byte
	ReturnType   ReturnType
	PowerLevel   PowerLevel

	Humidity       uint8
	UpperThreshold uint8
	LowerThreshold uint8

	CalibDT time.Time
}

// LaserCalib holds the per-laser intrinsic calibration constants, with the
// two correction angles precomputed into sin/cos pairs since every
// projection needs both.
type LaserCalib struct {
	MinIntensity uint8
	MaxIntensity uint8

	RotCorrSin  float32
	RotCorrCos  float32
	VertCorrSin float32
	VertCorrCos float32

	DistCorrection float32
	DistCorrX      float32
	DistCorrY      float32
	VertOffset     float32
	HorizOffset    float32
	FocalDist      float32
	FocalSlope     float32
}

// CalibDb is the full per-sensor calibration table: a raw-count-to-centimetre
// multiplier plus one record per laser.
type CalibDb struct {
	DistLSB float32
	Lasers  [64]LaserCalib
}

func defaultStatus() Status {
	dt := mustDT(0, 1, 1, 0, 0, 0)
	return Status{
		DT:         dt,
		GPS:        GpsNotConnected,
		ReturnType: ReturnStrongest,
		PowerLevel: PowerLevel{Kind: PowerAutoNormalized},
		CalibDT:    dt,
	}
}

func mustDT(year, month, day, h, m, s uint8) time.Time {
	dt, err := buildDT(year, month, day, h, m, s)
	if err != nil {
		panic(err)
	}
	return dt
}
