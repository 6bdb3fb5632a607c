package schema

import (
	"math"
	"strconv"
)

// displayPrecision is the number of decimals kept when rendering restored
// numerics; it hides inverse-scaling float noise (12.000000000000002 → 12).
const displayPrecision = 1e9

// FormatNumber renders a numeric attribute value for display and audit.
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	r := math.Round(v*displayPrecision) / displayPrecision
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
