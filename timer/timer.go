// Package timer provides the engine's single blocking primitive
// (§5): a one-shot, absolute-deadline CLOCK_MONOTONIC timer. The
// scheduler (§4.4) never sleeps on the device; it only ever blocks
// here.
package timer

import "golang.org/x/sys/unix"

// Timer is armed with an absolute monotonic deadline and fires once.
// Re-arming before it fires replaces the pending deadline.
type Timer interface {
	// ArmAbsolute schedules a single wake at deadline (monotonic
	// nanoseconds, comparable with Now()).
	ArmAbsolute(deadlineNS int64) error
	// Disarm cancels a pending wake, if any. Idempotent (§5
	// cancellation: "Pause cancels by disarming the timer").
	Disarm() error
	// C is signalled once per fired wake.
	C() <-chan struct{}
	// Close releases the underlying OS resource.
	Close() error
}

// Now returns the current CLOCK_MONOTONIC time in nanoseconds since
// boot, on the same clock TimerFD arms its TFD_TIMER_ABSTIME deadlines
// against. time.Now().UnixNano() would not do: converting a Time to
// an absolute value like that strips its monotonic reading and yields
// wall-clock-since-epoch, which a CLOCK_MONOTONIC timerfd does not
// compare against.
func Now() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}
