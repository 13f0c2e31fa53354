package console

import "time"

// Phase is a state of the reply completion detector.
type Phase int

const (
	PhaseSending Phase = iota
	PhaseAwaitingData
	PhaseQuiescent
	PhaseTimedOut
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseSending:
		return "sending"
	case PhaseAwaitingData:
		return "awaiting-data"
	case PhaseQuiescent:
		return "quiescent"
	case PhaseTimedOut:
		return "timed-out"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Detector decides when a command reply is complete. The console has no
// framing, so a reply ends after IdlePolls consecutive empty polls or once
// Timeout has passed since the command was written, whichever comes first.
//
// Detector is driven by the caller's clock and holds no timers, so it can be
// exercised with synthetic timestamps.
type Detector struct {
	IdlePolls int
	Timeout   time.Duration

	phase  Phase
	sentAt time.Time
	idle   int
}

// NewDetector returns a detector in PhaseSending.
func NewDetector(idlePolls int, timeout time.Duration) *Detector {
	if idlePolls < 1 {
		idlePolls = 1
	}
	return &Detector{IdlePolls: idlePolls, Timeout: timeout}
}

// Phase returns the current phase.
func (d *Detector) Phase() Phase {
	return d.phase
}

// Sent records that the command was written at now.
func (d *Detector) Sent(now time.Time) {
	if d.phase != PhaseSending {
		return
	}
	d.sentAt = now
	d.idle = 0
	d.phase = PhaseAwaitingData
}

// Observe feeds the result of one poll: n bytes read at now. It returns the
// phase after the observation. Once the phase leaves AwaitingData further
// observations are ignored.
func (d *Detector) Observe(n int, now time.Time) Phase {
	if d.phase != PhaseAwaitingData {
		return d.phase
	}

	if n > 0 {
		d.idle = 0
	} else {
		d.idle++
	}

	switch {
	case d.idle >= d.IdlePolls:
		d.phase = PhaseQuiescent
	case d.Timeout > 0 && now.Sub(d.sentAt) >= d.Timeout:
		d.phase = PhaseTimedOut
	}
	return d.phase
}

// Finish moves a completed detector to PhaseDone and reports why the reply
// ended. An incomplete detector is treated as timed out.
func (d *Detector) Finish() CompletionReason {
	reason := ReasonTimeout
	if d.phase == PhaseQuiescent {
		reason = ReasonQuiescence
	}
	d.phase = PhaseDone
	return reason
}
