package session

import "math"

// NoSlice is the highlight value for the center zone.
const NoSlice = -1

const sectorWidth = 45.0

// AngleToSector maps a pointer angle in degrees, clockwise from up, to one of
// eight 45° sectors with sector 0 centered on up. Points closer than radius
// to the anchor, and non-finite input, map to NoSlice.
func AngleToSector(angle, distance, radius float64) int {
	if math.IsNaN(angle) || math.IsInf(angle, 0) || math.IsNaN(distance) {
		return NoSlice
	}
	if distance < radius {
		return NoSlice
	}
	a := math.Mod(angle+sectorWidth/2, 360)
	if a < 0 {
		a += 360
	}
	idx := int(math.Floor(a / sectorWidth))
	// guards against a == 360 after float rounding
	if idx >= 8 {
		idx = 0
	}
	return idx
}
