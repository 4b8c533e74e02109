//go:build linux

package clockadj

import (
	"time"

	"golang.org/x/sys/unix"
)

// slew применяет плавную коррекцию через adjtimex (ADJ_OFFSET, микросекунды).
// Требует CAP_SYS_TIME или root.
func slew(offset time.Duration) error {
	offsetUs := offset.Microseconds()
	if offsetUs == 0 {
		return nil
	}
	buf := &unix.Timex{
		Modes:  unix.ADJ_OFFSET,
		Offset: offsetUs,
	}
	_, err := unix.Adjtimex(buf)
	return err
}

// step устанавливает системное время скачком. Требует CAP_SYS_TIME или root.
func step(t time.Time) error {
	ts := unix.NsecToTimespec(t.UnixNano())
	return unix.ClockSettime(unix.CLOCK_REALTIME, &ts)
}
