// Package display renders second counts for the working-hours and offline figures.
package display

import "fmt"

// Format renders totalSeconds as "{hours} hrs - {minutes} mins".
// Minutes are rounded down and negative input is treated as zero.
func Format(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	return fmt.Sprintf("%d hrs - %d mins", hours, minutes)
}
