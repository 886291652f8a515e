package realtime

import "time"

// State is the lifecycle state of a Client connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting // a reconnect timer is pending
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Tests substitute a manual scheduler.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// backoffDelay returns base × 2^attempt.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<uint(attempt))
}
