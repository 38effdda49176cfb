package subprocess

import "time"

// NotificationKind classifies a diagnostic notification from the child's stderr.
type NotificationKind int

const (
	// KindStreamData carries a chunk of text the child wrote to stderr.
	KindStreamData NotificationKind = iota
	// KindStreamError reports a read failure on stderr.
	KindStreamError
	// KindStreamClosed reports that stderr reached end of stream.
	KindStreamClosed
)

func (k NotificationKind) String() string {
	switch k {
	case KindStreamData:
		return "data"
	case KindStreamError:
		return "error"
	case KindStreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Notification is a diagnostic event from the child's stderr.
//
// Stderr output is not interpreted: a panic trace and routine log lines both
// arrive as KindStreamData.
type Notification struct {
	Kind   NotificationKind
	Stream string
	Text   string
	Err    error
	Time   time.Time
}
