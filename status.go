package mailqueue

// Status represents the lifecycle state of a queued email.
type Status string

const (
	// StatusPending indicates the email is queued and waiting for its first attempt.
	StatusPending Status = "pending"
	// StatusSending indicates a delivery attempt is in progress.
	StatusSending Status = "sending"
	// StatusSent indicates the transport accepted the email.
	StatusSent Status = "sent"
	// StatusDelayed indicates a delivery attempt exceeded the max sending time and was reclaimed.
	StatusDelayed Status = "delayed"
	// StatusFailed indicates the last delivery attempt failed.
	StatusFailed Status = "failed"
	// StatusCanceled indicates the email was canceled before it was sent.
	StatusCanceled Status = "canceled"
	// StatusRead indicates the recipient opened the email or followed a tracked link.
	StatusRead Status = "read"
)

var (
	// dispatchable lists the states a delivery attempt may start from.
	dispatchable = []Status{StatusPending, StatusDelayed, StatusFailed}
	// inFlight lists the states a finished attempt may be recorded from. DELAYED is included
	// because the recovery pass can reclaim a slow attempt before it returns.
	inFlight = []Status{StatusSending, StatusDelayed}
	// cancelable lists the states Cancel may transition from.
	cancelable = []Status{StatusPending, StatusDelayed, StatusFailed}
	// readable lists the states MarkRead may transition from.
	readable = []Status{StatusSent}
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusDelayed, StatusFailed, StatusCanceled, StatusRead:
		return true
	default:
		return false
	}
}

// Final reports whether no further delivery attempt may happen for s.
func (s Status) Final() bool {
	return s == StatusSent || s == StatusRead || s == StatusCanceled
}

// Cancelable reports whether an email in status s can be canceled.
func (s Status) Cancelable() bool {
	return s.in(cancelable)
}

// Dispatchable reports whether a delivery attempt may start from s.
func (s Status) Dispatchable() bool {
	return s.in(dispatchable)
}

// Excluded returns the statuses never selected by a drain cycle.
func Excluded() []Status {
	return []Status{StatusCanceled, StatusSent, StatusRead, StatusSending}
}

func (s Status) in(set []Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}

	return false
}
