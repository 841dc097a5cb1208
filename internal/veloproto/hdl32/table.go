package hdl32

// verticalAngles holds the fixed per-slot vertical angle, in degrees, for
// the 32 laser positions of an HDL-32E firing block. Unlike the HDL-64, the
// HDL-32E ships no per-unit calibration: every sensor of this model shares
// this table.
var verticalAngles = [32]float32{
	-30.67, -9.33, -29.33, -8.00, -28.00, -6.67, -26.67, -5.33,
	-25.33, -4.00, -24.00, -2.67, -22.67, -1.33, -21.33, 0.00,
	-20.00, 1.33, -18.67, 2.67, -17.33, 4.00, -16.00, 5.33,
	-14.67, 6.67, -13.33, 8.00, -12.00, 9.33, -10.67, 10.67,
}
