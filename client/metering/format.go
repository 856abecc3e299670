package metering

import (
	"fmt"
	"math"
)

// FormatTime renders a minute count as an MM:SS display string, truncating
// to whole seconds.
func FormatTime(minutes float64) string {
	if minutes < 0 {
		minutes = 0
	}
	totalSeconds := int(minutes * 60)
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}

// CalculateCost is the live "cost so far" display estimate in whole
// currency units: the accrued amount rounded strictly up past every unit
// boundary, so 2.3 minutes at 10/minute shows 24. It intentionally works in
// floats and can transiently disagree with the amounts actually debited
// until Stop reconciles.
func CalculateCost(minutes, pricePerMinute float64) int64 {
	accrued := minutes * pricePerMinute
	if accrued <= 0 {
		return 0
	}
	return int64(math.Trunc(accrued)) + 1
}
