package calib

import (
	"encoding/json"
	"fmt"
	"io"
)

// Input is the on-disk calibration request.
type Input struct {
	PitchLength     float64          `json:"pitch_length"`
	PitchWidth      float64          `json:"pitch_width"`
	Correspondences []Correspondence `json:"correspondences"`
}

// ReadInput decodes an Input. Missing pitch dimensions are filled from
// the supplied defaults.
func ReadInput(r io.Reader, defaultLength, defaultWidth float64) (Input, error) {
	var in Input
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return Input{}, fmt.Errorf("decode calibration input: %w", err)
	}
	if in.PitchLength <= 0 {
		in.PitchLength = defaultLength
	}
	if in.PitchWidth <= 0 {
		in.PitchWidth = defaultWidth
	}
	return in, nil
}
