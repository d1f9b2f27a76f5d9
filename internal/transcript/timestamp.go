package transcript

import "fmt"

// FormatTimestamp renders a centisecond timestamp as HH:MM:SS.mmm, or
// HH:MM:SS,mmm when comma is set (SRT style).
//
//	 500 -> 00:00:05.000
//	6000 -> 00:01:00.000
func FormatTimestamp(t int64, comma bool) string {
	msec := t * 10
	hr := msec / (1000 * 60 * 60)
	msec -= hr * (1000 * 60 * 60)
	mins := msec / (1000 * 60)
	msec -= mins * (1000 * 60)
	sec := msec / 1000
	msec -= sec * 1000

	sep := "."
	if comma {
		sep = ","
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", hr, mins, sec, sep, msec)
}

// FormatRange renders "[t0 --> t1]" using FormatTimestamp.
func FormatRange(t0, t1 int64, comma bool) string {
	return "[" + FormatTimestamp(t0, comma) + " --> " + FormatTimestamp(t1, comma) + "]"
}
