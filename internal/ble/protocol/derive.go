package protocol

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// UnknownFilterDays is reported when the schedule makes the remaining filter
// time undefined (time_on == 0).
const UnknownFilterDays = -1

// FilterLifeDays is the nominal filter life at 100% in normal mode.
const FilterLifeDays = 30.0

// RemainingFilterDays estimates the days of filter life left. In smart mode
// the pump only runs timeOn out of every timeOn+timeOff minutes, which
// stretches the filter life proportionally.
func RemainingFilterDays(filterPercentage float64, timeOn, timeOff int) int {
	if timeOn == 0 {
		return UnknownFilterDays
	}
	return int(math.Ceil(((filterPercentage * FilterLifeDays) * float64(timeOn+timeOff)) / float64(timeOn)))
}

// ScheduleFor returns the on/off duty cycle used by RemainingFilterDays.
// Normal mode runs continuously.
func ScheduleFor(mode, smartTimeOn, smartTimeOff int) (timeOn, timeOff int) {
	if mode == ModeNormal {
		return 1, 0
	}
	return smartTimeOn, smartTimeOff
}

// WaterPurified estimates litres of water pumped through the filter for the
// given pump runtime in seconds.
func WaterPurified(alias string, runtimeSeconds int) float64 {
	rate, divisor := 1.5, 2.0
	switch alias {
	case "W5C":
		rate, divisor = 1.3, 1.0
	case "W4X":
		divisor = 1.8
	}
	return ((rate * float64(runtimeSeconds)) / 60.0) / divisor
}

// EnergyConsumed estimates kWh used for the given pump runtime in seconds.
// The W5C constant does not scale with runtime; the vendor app does the same.
func EnergyConsumed(alias string, runtimeSeconds int) float64 {
	var watts float64
	if alias == "W5C" {
		watts = 0.182
	} else {
		watts = 0.75 * float64(runtimeSeconds)
	}
	return watts / 3600000
}

// FormatEnergy renders an energy value as six-digit fixed point.
func FormatEnergy(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// MinutesToTimestamp renders a minute count as "HH:MM". Values past 24h are
// not wrapped to a time of day; negative values use floor division.
func MinutesToTimestamp(totalMinutes int) string {
	hours := floorDiv(totalMinutes, 60)
	minutes := totalMinutes - hours*60
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// RuntimeDays renders a total-runtime counter the way the vendor app does:
// the seconds are read as a UTC timestamp and shown as day-of-month and hour.
func RuntimeDays(seconds int) string {
	t := time.Unix(int64(seconds), 0).UTC()
	return fmt.Sprintf("%d days, %d hours", t.Day(), t.Hour())
}

// RuntimeHours renders a daily runtime counter as "H:Mh".
func RuntimeHours(seconds int) string {
	t := time.Unix(int64(seconds), 0).UTC()
	return fmt.Sprintf("%d:%dh", t.Hour(), t.Minute())
}

// epoch2000 is the reference point for device clocks.
var epoch2000 = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// DatetimePayload encodes now as the cmd 84 payload: seconds since
// 2000-01-01 UTC, big-endian in bytes 1..4, with a fixed trailer.
func DatetimePayload(now time.Time) []byte {
	seconds := int64(now.UTC().Sub(epoch2000) / time.Second)
	return []byte{
		0,
		byte(seconds >> 24),
		byte(seconds >> 16),
		byte(seconds >> 8),
		byte(seconds),
		13,
	}
}

// DefaultSecret is used for sync before the device identity is known.
var DefaultSecret = []byte{0, 0, 0, 0, 0, 0, 13, 37}

// DeriveSecret builds the per-device secret: the identifier bytes reversed,
// the last two replaced by 13,37 when both are zero, left-padded to 8 bytes.
func DeriveSecret(deviceIDBytes []byte) []byte {
	rev := make([]byte, len(deviceIDBytes))
	for i, b := range deviceIDBytes {
		rev[len(deviceIDBytes)-1-i] = b
	}
	if n := len(rev); n >= 2 && rev[n-1] == 0 && rev[n-2] == 0 {
		rev[n-2] = 13
		rev[n-1] = 37
	}
	return PadLeft(rev, 8)
}

// PadLeft prefixes data with zeros up to size bytes. Longer input is
// returned unchanged.
func PadLeft(data []byte, size int) []byte {
	if len(data) >= size {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	out := make([]byte, size)
	copy(out[size-len(data):], data)
	return out
}
