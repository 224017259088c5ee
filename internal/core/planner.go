package core

import "fmt"

// Offset is a projected (x, y) offset from the target in degrees; x follows
// azimuth and y elevation.
type Offset struct {
	X float64
	Y float64
}

// ScanSegment is one leg of a raster: the antennas slew to Start and then
// scan to End.
type ScanSegment struct {
	Index int
	// Scanning is the offset along the scanning coordinate at the start of the
	// segment, alternating between +extent/2 and -extent/2.
	Scanning float64
	// Stepping is the offset along the stepping coordinate as emitted, negated
	// when scanning in azimuth so the first segment is the top-most one.
	Stepping float64
	Start    Offset
	End      Offset
	// Forward is true for segments scanned in the direction of the first one.
	Forward bool
}

// Plan computes the raster segments for a scan geometry. It emits
// 2*(numSegments/2)+1 segments stepped symmetrically about the target, so
// an even request yields one extra segment. Consecutive segments run in
// opposite directions and the first always starts at +extent/2.
func Plan(numSegments int, extent, spacing float64, scanInAzimuth bool) ([]ScanSegment, error) {
	if numSegments < 1 {
		return nil, fmt.Errorf("%w: need at least one segment, got %d", ErrInvalidPlan, numSegments)
	}
	if extent < 0 || spacing < 0 {
		return nil, fmt.Errorf("%w: extent %g and spacing %g must not be negative", ErrInvalidPlan, extent, spacing)
	}
	k := numSegments / 2
	segments := make([]ScanSegment, 0, 2*k+1)
	for i := -k; i <= k; i++ {
		j := i + k
		scanning := extent / 2
		if j%2 == 1 {
			scanning = -scanning
		}
		seg := ScanSegment{Index: j, Scanning: scanning, Forward: j%2 == 0}
		if scanInAzimuth {
			// Negated on the integer so the centre leg keeps a positive zero.
			stepping := spacing * float64(-i)
			seg.Stepping = stepping
			seg.Start = Offset{X: scanning, Y: stepping}
			seg.End = Offset{X: -scanning, Y: stepping}
		} else {
			stepping := spacing * float64(i)
			seg.Stepping = stepping
			seg.Start = Offset{X: stepping, Y: -scanning}
			seg.End = Offset{X: stepping, Y: scanning}
		}
		segments = append(segments, seg)
	}
	return segments, nil
}
