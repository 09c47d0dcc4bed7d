package service

// Event types carried over the live feed. Display surfaces receive
// EventTokenRotated and EventSessionClosed; the instructor dashboard
// additionally receives EventScanAccepted and EventRotationStalled.
const (
	EventTokenRotated    = "token_rotated"
	EventSessionClosed   = "session_closed"
	EventScanAccepted    = "scan_accepted"
	EventRotationStalled = "rotation_stalled"
)

// Broadcaster pushes live events to connected clients. Implemented by the
// WebSocket hub; services receive it via SetBroadcaster so the transport
// layer stays out of the dependency graph.
type Broadcaster interface {
	BroadcastToDisplays(sessionID string, msgType string, payload interface{})
	BroadcastToInstructor(sessionID string, msgType string, payload interface{})
}
