// internal/types/events.go
package types

// ToolStarted is an advisory progress event emitted just before a tool in
// a batch begins executing. It is never persisted; consumers that miss it
// lose nothing of record.
type ToolStarted struct {
	Name string
}

// EventSink carries progress events for one turn. A nil sink is valid and
// means no observer is attached (scheduled turns pass none).
type EventSink chan ToolStarted

// Emit delivers the event without ever blocking the sender. Events to a
// full or absent sink are dropped.
func (s EventSink) Emit(ev ToolStarted) {
	if s == nil {
		return
	}
	select {
	case s <- ev:
	default:
	}
}
