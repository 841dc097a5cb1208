package hdl64

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartograph-labs/velodecode/internal/veloproto/packet"
)

// miniCycle returns the 16 status byte pairs for one mini-cycle: the nine
// fixed-schedule id/value pairs, followed by the seven payload pairs
// belonging to whichever high-level cycle step is active.
func miniCycle(dt [6]byte, gps, temp, version byte, payloadIDs, payloadVals [7]byte) []packet.StatusBytes {
	out := []packet.StatusBytes{
		{ID: 'H', Value: dt[3]},
		{ID: 'M', Value: dt[4]},
		{ID: 'S', Value: dt[5]},
		{ID: 'D', Value: dt[2]},
		{ID: 'N', Value: dt[1]},
		{ID: 'Y', Value: dt[0]},
		{ID: 'G', Value: gps},
		{ID: 'T', Value: temp},
		{ID: 'V', Value: version},
	}
	for i := 0; i < 7; i++ {
		out = append(out, packet.StatusBytes{ID: payloadIDs[i], Value: payloadVals[i]})
	}
	return out
}

func i16le(v int16) (lo, hi byte) {
	return byte(v), byte(v >> 8)
}

func TestStatusAccumulatorFullCycleRoundTrip(t *testing.T) {
	dt := [6]byte{26, 1, 2, 3, 4, 5} // year, month, day, hour, minute, second
	const gps, temp, version = 0x41, 55, 0x47

	var laserData [64][21]byte
	for i := 0; i < 64; i++ {
		laserData[i][0] = byte(i)
		vlo, vhi := i16le(int16(i * 10))
		laserData[i][1], laserData[i][2] = vlo, vhi
		rlo, rhi := i16le(int16(i * 5))
		laserData[i][3], laserData[i][4] = rlo, rhi
		dclo, dchi := i16le(int16(i))
		laserData[i][5], laserData[i][6] = dclo, dchi
		dcxlo, dcxhi := i16le(int16(i + 1))
		laserData[i][7], laserData[i][8] = dcxlo, dcxhi
		dcylo, dcyhi := i16le(int16(i + 2))
		laserData[i][9], laserData[i][10] = dcylo, dcyhi
		volo, vohi := i16le(int16(i + 3))
		laserData[i][11], laserData[i][12] = volo, vohi
		holo, hohi := i16le(int16(i + 4))
		laserData[i][13], laserData[i][14] = holo, hohi
		fdlo, fdhi := i16le(int16(i + 5))
		laserData[i][15], laserData[i][16] = fdlo, fdhi
		fslo, fshi := i16le(int16(i + 6))
		laserData[i][17], laserData[i][18] = fslo, fshi
		laserData[i][19] = byte(i)
		laserData[i][20] = byte(i + 1)
	}
	const warningByte = 0x25 // lens(bit0)=1, cold(bit2)=1, pps(bit5)=1

	var seq []packet.StatusBytes
	pl := func(ids, vals [7]byte) {
		seq = append(seq, miniCycle(dt, gps, temp, version, ids, vals)...)
	}

	pl([7]byte{'1', '2', '3', '4', '5', 0xf7, 0xf6}, [7]byte{'U', 'N', 'I', 'T', '#', 11, 22})

	for laser := 0; laser < 64; laser++ {
		d := laserData[laser]
		pl([7]byte{'1', '2', '3', '4', '5', '6', '7'}, [7]byte(d[0:7]))
		pl([7]byte{'1', '2', '3', '4', '5', '6', '7'}, [7]byte(d[7:14]))
		pl([7]byte{'1', '2', '3', '4', '5', '6', '7'}, [7]byte(d[14:21]))
		// The last laser's third part is followed directly by the
		// calibration date cycle, with no warning cycle in between.
		if laser < 63 {
			pl([7]byte{'W', '2', '3', '4', '5', '6', '7'}, [7]byte{warningByte, 0, 0, 0, 0, 0, 0})
		}
	}

	pl([7]byte{'1', '2', '3', '4', '5', '6', '7'}, [7]byte{26, 6, 15, 10, 20, 30, 77})

	sensorState := [21]byte{}
	sensorState[0], sensorState[1] = i16le(600)  // rpm
	sensorState[2], sensorState[3] = i16le(100)  // fov start
	sensorState[4], sensorState[5] = i16le(30000) // fov end
	sensorState[6], sensorState[7] = i16le(1234) // real life time
	copy(sensorState[8:12], []byte{10, 0, 0, 1})
	copy(sensorState[12:16], []byte{192, 168, 1, 2})
	sensorState[16] = 2    // both returns
	sensorState[17] = 0    // reserved
	sensorState[18] = 0xA8 // auto-normalised power

	pl([7]byte{0xfe, 0xff, 0xfc, 0xfd, 0xfa, 0xfb, 0x37}, [7]byte(sensorState[0:7]))
	pl([7]byte{'1', '2', '3', '4', '5', '6', '7'}, [7]byte(sensorState[7:14]))
	pl([7]byte{0x31, 0x32, 0xf9, 0x34, 0xf8, 0x36, 0x37}, [7]byte(sensorState[14:21]))

	acc := NewStatusAccumulator()
	status := defaultStatus()
	db := CalibDb{}
	for _, sb := range seq {
		acc.Feed(sb, &status, &db)
	}

	require.True(t, acc.Initialised())

	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), status.DT)
	assert.Equal(t, GpsSyncNmea, status.GPS)
	assert.EqualValues(t, 55, status.Temperature)
	assert.EqualValues(t, 0x47, status.Version)
	assert.True(t, status.LensContamination)
	assert.False(t, status.Hot)
	assert.True(t, status.Cold)
	assert.True(t, status.PPS)
	assert.False(t, status.GPSTime)

	assert.EqualValues(t, 11, status.UpperThreshold)
	assert.EqualValues(t, 22, status.LowerThreshold)
	assert.Equal(t, time.Date(2026, 6, 15, 10, 20, 30, 0, time.UTC), status.CalibDT)
	assert.EqualValues(t, 77, status.Humidity)

	assert.EqualValues(t, 600, status.RPM)
	assert.EqualValues(t, 100, status.FOVStart)
	assert.EqualValues(t, 30000, status.FOVEnd)
	assert.EqualValues(t, 1234, status.RealLifeTime)
	assert.Equal(t, [4]byte{10, 0, 0, 1}, status.IPSource)
	assert.Equal(t, [4]byte{192, 168, 1, 2}, status.IPDest)
	assert.Equal(t, ReturnBoth, status.ReturnType)
	assert.Equal(t, PowerLevel{Kind: PowerAutoNormalized}, status.PowerLevel)

	for i := 0; i < 64; i++ {
		wantVertSin, wantVertCos := sincos(float32(i*10) / 100)
		wantRotSin, wantRotCos := sincos(float32(i*5) / 100)
		want := LaserCalib{
			MinIntensity:   byte(i),
			MaxIntensity:   byte(i + 1),
			RotCorrSin:     wantRotSin,
			RotCorrCos:     wantRotCos,
			VertCorrSin:    wantVertSin,
			VertCorrCos:    wantVertCos,
			DistCorrection: float32(i) / 10,
			DistCorrX:      float32(i+1) / 10,
			DistCorrY:      float32(i+2) / 10,
			VertOffset:     float32(i+3) / 10,
			HorizOffset:    float32(i+4) / 10,
			FocalDist:      float32(i+5) / 10,
			FocalSlope:     float32(i+6) / 10,
		}
		if diff := cmp.Diff(want, db.Lasers[i]); diff != "" {
			t.Fatalf("laser %d calibration mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestStatusAccumulatorSoftResetNeverUninitialises(t *testing.T) {
	acc := NewStatusAccumulator()
	acc.initialised = true
	status := defaultStatus()
	db := CalibDb{}

	// Feed a burst of garbage out-of-schedule bytes: must not panic and
	// must never clear initialised.
	for i := 0; i < 64; i++ {
		acc.Feed(packet.StatusBytes{ID: byte(i), Value: byte(i * 3)}, &status, &db)
	}
	assert.True(t, acc.Initialised())
}
