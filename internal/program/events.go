package program

import "time"

// EventType captures lifecycle notifications emitted by a Program.
type EventType string

const (
	EventStarting         EventType = "starting"
	EventRunning          EventType = "running"
	EventExited           EventType = "exited"
	EventStopped          EventType = "stopped"
	EventSpawnFailed      EventType = "spawn_failed"
	EventRestartScheduled EventType = "restart_scheduled"
)

// Event represents a single lifecycle notification.
type Event struct {
	Timestamp time.Time
	Program   string
	Type      EventType
	PID       int
	// Attempt is the restart count at the time of the event.
	Attempt int
	Delay   time.Duration
	// Uptime is how long the process ran, set on exited and stopped events.
	Uptime  time.Duration
	Err     error
	Message string
}

// Emit delivers ev without blocking. Events are dropped when the consumer
// falls behind.
func Emit(events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case events <- ev:
	default:
	}
}
