package app

import (
	"time"
)

// recoveryTimer is the supervisor deadline: armed on the first
// disconnect/failure of an episode, disarmed the moment the connection
// is healthy again. Firing posts an evDeadline into the loop; the loop
// decides whether a teardown-and-reinit is still warranted.
type recoveryTimer struct {
	deadline time.Duration
	fire     func(gen int)

	timer *time.Timer
	armed bool
}

func newRecoveryTimer(deadline time.Duration, fire func(gen int)) *recoveryTimer {
	return &recoveryTimer{deadline: deadline, fire: fire}
}

func (r *recoveryTimer) Arm(gen int) {
	if r.armed {
		return
	}
	r.armed = true
	r.timer = time.AfterFunc(r.deadline, func() { r.fire(gen) })
}

func (r *recoveryTimer) Disarm() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.armed = false
}
