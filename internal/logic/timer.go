package logic

import "time"

// Timer is a single pending deadline owned by the poll loop.
// It never runs code on its own goroutine; the owner polls Fire on each tick.
type Timer struct {
	due   time.Time
	armed bool
}

// Arm (re)starts the timer so it fires d after now.
func (t *Timer) Arm(now time.Time, d time.Duration) {
	t.due = now.Add(d)
	t.armed = true
}

// Cancel disarms the timer. Canceling a fired or idle timer is a no-op.
func (t *Timer) Cancel() {
	t.armed = false
}

// Pending reports whether the timer is armed.
func (t *Timer) Pending() bool {
	return t.armed
}

// Due returns the deadline of an armed timer.
func (t *Timer) Due() time.Time {
	return t.due
}

// Fire reports true exactly once, on the first call at or after the deadline.
func (t *Timer) Fire(now time.Time) bool {
	if !t.armed || now.Before(t.due) {
		return false
	}
	t.armed = false
	return true
}
