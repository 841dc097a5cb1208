package hdl64

import (
	"encoding/xml"
	"fmt"
	"os"
)

// calibFile mirrors the subset of the vendor XML calibration document this
// loader cares about: a global distance LSB plus, per laser, intensity
// bounds and the point-geometry corrections.
type calibFile struct {
	XMLName      xml.Name `xml:"DB"`
	DistLSB      float32  `xml:"distLSB_"`
	MinIntensity struct {
		Items []uint8 `xml:"item"`
	} `xml:"minIntensity_"`
	MaxIntensity struct {
		Items []uint8 `xml:"item"`
	} `xml:"maxIntensity_"`
	Points struct {
		Items []struct {
			Px struct {
				ID                    int     `xml:"id_"`
				RotCorrection         float32 `xml:"rotCorrection_"`
				VertCorrection        float32 `xml:"vertCorrection_"`
				DistCorrection        float32 `xml:"distCorrection_"`
				DistCorrectionX       float32 `xml:"distCorrectionX_"`
				DistCorrectionY       float32 `xml:"distCorrectionY_"`
				VertOffsetCorrection  float32 `xml:"vertOffsetCorrection_"`
				HorizOffsetCorrection float32 `xml:"horizOffsetCorrection_"`
				FocalDistance         float32 `xml:"focalDistance_"`
				FocalSlope            float32 `xml:"focalSlope_"`
			} `xml:"px"`
		} `xml:"item"`
	} `xml:"points_"`
}

// LoadCalibDb reads the vendor-supplied XML calibration file at path. It is
// more precise than the table the sensor reports over the wire and is the
// preferred calibration source when available.
func LoadCalibDb(path string) (CalibDb, error) {
	f, err := os.Open(path)
	if err != nil {
		return CalibDb{}, fmt.Errorf("hdl64: opening calibration file: %w", err)
	}
	defer f.Close()

	var doc calibFile
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return CalibDb{}, fmt.Errorf("hdl64: decoding calibration file: %w", err)
	}

	if len(doc.MinIntensity.Items) != 64 {
		return CalibDb{}, fmt.Errorf("hdl64: expected 64 minIntensity_ entries, got %d", len(doc.MinIntensity.Items))
	}
	if len(doc.MaxIntensity.Items) != 64 {
		return CalibDb{}, fmt.Errorf("hdl64: expected 64 maxIntensity_ entries, got %d", len(doc.MaxIntensity.Items))
	}
	if len(doc.Points.Items) != 64 {
		return CalibDb{}, fmt.Errorf("hdl64: expected 64 points_ entries, got %d", len(doc.Points.Items))
	}

	db := CalibDb{DistLSB: doc.DistLSB}
	for i, item := range doc.Points.Items {
		px := item.Px
		if px.ID < 0 || px.ID >= 64 {
			return CalibDb{}, fmt.Errorf("hdl64: calibration entry %d has out-of-range id_ %d", i, px.ID)
		}
		dst := &db.Lasers[px.ID]
		dst.RotCorrSin, dst.RotCorrCos = sincos(px.RotCorrection)
		dst.VertCorrSin, dst.VertCorrCos = sincos(px.VertCorrection)
		dst.DistCorrection = px.DistCorrection
		dst.DistCorrX = px.DistCorrectionX
		dst.DistCorrY = px.DistCorrectionY
		dst.VertOffset = px.VertOffsetCorrection
		dst.HorizOffset = px.HorizOffsetCorrection
		dst.FocalDist = px.FocalDistance
		dst.FocalSlope = px.FocalSlope
		dst.MinIntensity = doc.MinIntensity.Items[px.ID]
		dst.MaxIntensity = doc.MaxIntensity.Items[px.ID]
	}
	return db, nil
}
